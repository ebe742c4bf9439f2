package sim

import (
	"context"
	"errors"
	"fmt"

	"conclave.org/internal/election"
	"conclave.org/internal/engine"
	"conclave.org/internal/game"
)

const maxSteps = 500

// Runner drives one game from Lobby to Finished through the engine API, with
// the first scenario player as creator.
type Runner struct {
	engine *engine.Engine
	gen    *Generator
	logf   func(format string, args ...any)
}

func NewRunner(e *engine.Engine, gen *Generator, logf func(format string, args ...any)) *Runner {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Runner{engine: e, gen: gen, logf: logf}
}

// Run plays sc and returns the game code with what happened.
func (r *Runner) Run(ctx context.Context, sc Scenario) (string, Counter, error) {
	var c Counter
	if len(sc.Players) < 2 {
		return "", c, errors.New("sim: scenario needs at least two players")
	}
	seat, err := r.engine.CreateGame(ctx, engine.CreateRequest{
		HostName:        sc.Players[0],
		Tutorial:        sc.Tutorial,
		IncludeOutreach: sc.IncludeOutreach,
	})
	if err != nil {
		return "", c, fmt.Errorf("create: %w", err)
	}
	code, creator := seat.Game.Code, seat.Player.ID
	for _, name := range sc.Players[1:] {
		if _, err := r.engine.Join(ctx, code, name); err != nil {
			return code, c, fmt.Errorf("join %s: %w", name, err)
		}
	}
	r.logf("%s: game %s with %d players", sc.Name, code, len(sc.Players))

	for step := 0; step < maxSteps; step++ {
		v, err := r.engine.State(ctx, code, creator)
		if err != nil {
			return code, c, err
		}
		g := v.Game
		c.Final, c.Days = g.Phase, g.Day
		if g.Phase == game.PhaseFinished {
			return code, c, nil
		}

		if sc.Days > 0 && g.Day > sc.Days {
			if _, err := r.engine.Finish(ctx, code, g.HostPlayerID); err != nil {
				return code, c, fmt.Errorf("finish: %w", err)
			}
			r.logf("day %d: host ends the game", g.Day)
			continue
		}

		if err := r.play(ctx, g, v.Players, &c); err != nil {
			return code, c, err
		}

		tr, err := r.engine.Advance(ctx, code, g.HostPlayerID)
		if err != nil {
			return code, c, fmt.Errorf("advance from %s: %w", g.Phase, err)
		}
		c.Phases++
		r.logf("day %d: %s -> %s", tr.Game.Day, tr.From, tr.To)

		after, err := r.engine.State(ctx, code, creator)
		if err != nil {
			return code, c, err
		}
		c.Events = append(c.Events, changes(v.Players, after.Players)...)
	}
	return code, c, fmt.Errorf("sim: game %s did not finish in %d steps", code, maxSteps)
}

func (r *Runner) play(ctx context.Context, g game.Game, table []game.Player, c *Counter) error {
	switch g.Phase {
	case game.PhaseReflectionRoleActions:
		for _, p := range table {
			if !p.Alive() {
				continue
			}
			// only the player's own view carries their role
			own, err := r.engine.State(ctx, g.Code, p.ID)
			if err != nil {
				return err
			}
			self, _ := find(own.Players, p.ID)
			inv, ok := r.gen.Invocation(self, own.Players)
			if !ok {
				continue
			}
			_, err = r.engine.Execute(ctx, g.Code, p.ID, inv)
			if done, err := r.tally(err, c); err != nil {
				return err
			} else if done {
				c.Abilities++
			}
		}

	case game.PhaseReflectionMiniGame:
		for _, p := range table {
			if !p.Alive() {
				continue
			}
			out, err := r.engine.SubmitGuesses(ctx, g.Code, p.ID, r.gen.Guesses(p, table))
			if _, err := r.tally(err, c); err != nil {
				return err
			}
			c.Guesses += len(out)
		}

	case game.PhaseReflectionMiniGameResult:
		for _, p := range table {
			if !p.Alive() {
				continue
			}
			rank, err := r.engine.AwaitRank(ctx, g.Code, p.ID)
			if done, err := r.tally(err, c); err != nil {
				return err
			} else if done {
				r.logf("day %d: %s ranked %d", g.Day, p.Name, rank)
			}
		}

	case game.PhaseElectionsChairperson, game.PhaseElectionsSecretary, game.PhaseConsultationVoting:
		role, _ := election.RoleForPhase(g.Phase)
		cands, err := r.engine.Candidates(ctx, g.Code, role)
		if err != nil {
			return err
		}
		for _, p := range table {
			if !p.Alive() {
				continue
			}
			id, ok := r.gen.Ballot(p.ID, cands)
			if !ok {
				continue
			}
			_, err := r.engine.Vote(ctx, g.Code, p.ID, id)
			if done, err := r.tally(err, c); err != nil {
				return err
			} else if done {
				c.Votes++
			}
		}

	case game.PhaseConsultationTreasurer:
		if g.TreasurerPlayerID == "" {
			return nil
		}
		to, amount, ok := r.gen.Grant(table, g.GroupPoints)
		if !ok {
			return nil
		}
		_, err := r.engine.TreasuryGrant(ctx, g.Code, g.TreasurerPlayerID, to, amount)
		if done, err := r.tally(err, c); err != nil {
			return err
		} else if done {
			c.Grants++
			c.Granted += amount
		}
	}
	return nil
}

// tally folds engine refusals into c. It returns done when the call succeeded
// and err only for failures a bot cannot cause.
func (r *Runner) tally(err error, c *Counter) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, engine.ErrStillWaiting) {
		return false, nil
	}
	if code, ok := game.CodeOf(err); ok {
		c.Reject(code)
		return false, nil
	}
	return false, err
}

func changes(before, after []game.Player) []string {
	var out []string
	for _, p := range after {
		old, ok := find(before, p.ID)
		if !ok || old.Status == p.Status {
			continue
		}
		out = append(out, fmt.Sprintf("%s became %s", p.Name, p.Status))
	}
	return out
}

func find(players []game.Player, id string) (game.Player, bool) {
	for _, p := range players {
		if p.ID == id {
			return p, true
		}
	}
	return game.Player{}, false
}
