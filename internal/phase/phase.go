// Package phase owns the game phase sequence and host-driven transitions.
package phase

import (
	"errors"
	"time"

	"conclave.org/internal/game"
	"conclave.org/internal/store"
)

// Flags are the game settings the sequence depends on.
type Flags struct {
	Tutorial        bool
	Day             int
	IncludeOutreach bool
}

// FlagsOf reads the flags from g.
func FlagsOf(g game.Game) Flags {
	return Flags{Tutorial: g.Tutorial, Day: g.Day, IncludeOutreach: g.IncludeOutreach}
}

// Next returns the phase that follows p. Paused and Finished have no successor.
func Next(p game.Phase, f Flags) (game.Phase, bool) {
	switch p {
	case game.PhaseLobby:
		return game.PhaseRoleReveal, true
	case game.PhaseRoleReveal:
		if f.Tutorial {
			return game.PhaseTutorial, true
		}
		return game.PhaseReflectionMiniGame, true
	case game.PhaseTutorial:
		return game.PhaseReflectionMiniGame, true
	case game.PhaseReflectionMiniGame:
		return game.PhaseReflectionMiniGameResult, true
	case game.PhaseReflectionMiniGameResult:
		if f.Day == 1 {
			return game.PhaseElectionsChairperson, true
		}
		return afterElections(f), true
	case game.PhaseElectionsChairperson:
		return game.PhaseElectionsSecretary, true
	case game.PhaseElectionsSecretary:
		return game.PhaseElectionsResult, true
	case game.PhaseElectionsResult:
		return afterElections(f), true
	case game.PhaseOutreach:
		return game.PhaseConsultationDiscussion, true
	case game.PhaseConsultationDiscussion:
		return game.PhaseConsultationTreasurer, true
	case game.PhaseConsultationTreasurer:
		return game.PhaseConsultationVoting, true
	case game.PhaseConsultationVoting:
		return game.PhaseConsultationVotingCount, true
	case game.PhaseConsultationVotingCount:
		return game.PhaseConsultationVotingResults, true
	case game.PhaseConsultationVotingResults:
		return game.PhaseReflectionRoleActions, true
	case game.PhaseReflectionRoleActions:
		return game.PhaseReflectionMiniGame, true
	default:
		return "", false
	}
}

func afterElections(f Flags) game.Phase {
	if f.IncludeOutreach {
		return game.PhaseOutreach
	}
	return game.PhaseConsultationDiscussion
}

// Hook runs inside the transition's transaction after g has moved to its new
// phase. A hook may redirect g.Phase (the day rollover finishing a game does).
type Hook func(tx store.Tx, g *game.Game) error

// Transition describes a committed phase change.
type Transition struct {
	From game.Phase `json:"from"`
	To   game.Phase `json:"to"`
	Game game.Game  `json:"game"`
}

type Machine struct {
	hooks map[game.Phase][]Hook
	now   func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func New(opts ...Option) *Machine {
	m := &Machine{
		hooks: make(map[game.Phase][]Hook),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnEnter registers h to run whenever a game enters p. Hooks run in
// registration order.
func (m *Machine) OnEnter(p game.Phase, h Hook) {
	m.hooks[p] = append(m.hooks[p], h)
}

// Advance moves the game to its next phase on behalf of the host. From a
// terminal phase it returns the unchanged game with ErrInvalidTransition.
func (m *Machine) Advance(tx store.Tx, code, actorID string) (Transition, error) {
	g, err := load(tx, code)
	if err != nil {
		return Transition{}, err
	}
	if g.HostPlayerID != actorID {
		return Transition{From: g.Phase, To: g.Phase, Game: g}, game.ErrNotHost
	}
	next, ok := Next(g.Phase, FlagsOf(g))
	if !ok {
		return Transition{From: g.Phase, To: g.Phase, Game: g}, game.ErrInvalidTransition
	}
	return m.enter(tx, g, next)
}

// Pause stops the game; it stays paused.
func (m *Machine) Pause(tx store.Tx, code, actorID string) (Transition, error) {
	return m.jump(tx, code, actorID, game.PhasePaused)
}

// Finish ends the game.
func (m *Machine) Finish(tx store.Tx, code, actorID string) (Transition, error) {
	return m.jump(tx, code, actorID, game.PhaseFinished)
}

func (m *Machine) jump(tx store.Tx, code, actorID string, to game.Phase) (Transition, error) {
	g, err := load(tx, code)
	if err != nil {
		return Transition{}, err
	}
	if g.HostPlayerID != actorID {
		return Transition{From: g.Phase, To: g.Phase, Game: g}, game.ErrNotHost
	}
	if g.Phase.Terminal() {
		return Transition{From: g.Phase, To: g.Phase, Game: g}, game.ErrInvalidTransition
	}
	return m.enter(tx, g, to)
}

func (m *Machine) enter(tx store.Tx, g game.Game, to game.Phase) (Transition, error) {
	from := g.Phase
	seq := g.PhaseSeq

	if to == game.PhaseReflectionMiniGame {
		if from == game.PhaseReflectionRoleActions {
			g.Day++
		} else {
			g.Day = 1
		}
	}
	g.Phase = to
	g.PhaseSeq++
	g.LastPhaseChangeAt = m.now()

	for _, h := range m.hooks[to] {
		if err := h(tx, &g); err != nil {
			return Transition{}, err
		}
		if g.Phase != to {
			break
		}
	}
	if err := tx.UpdateGame(g, seq); err != nil {
		return Transition{}, err
	}
	return Transition{From: from, To: g.Phase, Game: g}, nil
}

func load(tx store.Tx, code string) (game.Game, error) {
	g, err := tx.Game(code)
	if errors.Is(err, store.ErrNotFound) {
		return game.Game{}, game.ErrGameNotFound
	}
	return g, err
}
