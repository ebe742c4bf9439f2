package ability

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"conclave.org/internal/catalog"
	"conclave.org/internal/effects"
	"conclave.org/internal/game"
	"conclave.org/internal/ids"
	"conclave.org/internal/store"
)

// execution carries one invocation through its handler. Player rows are edited
// in memory and written back by flush.
type execution struct {
	tx      store.Tx
	game    game.Game
	catalog *catalog.Catalog
	action  catalog.Action
	inv     Invocation
	fx      effects.Ledger
	now     time.Time

	actor     *game.Player
	target    *game.Player
	secondary *game.Player

	details game.Details
	extra   []game.PlayerAction
	players map[string]*game.Player
	changed map[string]bool
}

func (e *execution) player(id string) (*game.Player, error) {
	if p, ok := e.players[id]; ok {
		return p, nil
	}
	p, err := loadPlayer(e.tx, e.game.Code, id, game.ErrInvalidTarget)
	if err != nil {
		return nil, err
	}
	e.players[id] = &p
	return &p, nil
}

func (e *execution) touch(p *game.Player) { e.changed[p.ID] = true }

func (e *execution) resolveTargets() error {
	rule := e.action.Target
	switch rule {
	case catalog.TargetNone:
		return nil
	case catalog.TargetTier:
		if !e.inv.TargetTier.Playable() {
			return invalidTarget("a tier between S and D is required")
		}
		return nil
	}

	if e.inv.TargetID == "" {
		return invalidTarget("target is required")
	}
	if e.inv.TargetID == e.actor.ID && !e.action.AllowSelf {
		return invalidTarget("cannot target yourself")
	}
	t, err := e.player(e.inv.TargetID)
	if err != nil {
		return err
	}
	switch rule {
	case catalog.TargetAlive:
		if t.Status != game.StatusAlive {
			return invalidTarget("target must be alive")
		}
	case catalog.TargetDead:
		if t.Status != game.StatusDead {
			return invalidTarget("target must be dead")
		}
	case catalog.TargetImprisoned:
		if t.Status != game.StatusImprisoned {
			return invalidTarget("target must be imprisoned")
		}
	}
	e.target = t

	if e.action.Secondary {
		id := e.inv.SecondaryTargetID
		if id == "" || id == e.actor.ID || id == t.ID {
			return invalidTarget("a second, different player is required")
		}
		s, err := e.player(id)
		if err != nil {
			return err
		}
		if s.Status != game.StatusAlive {
			return invalidTarget("second target must be alive")
		}
		e.secondary = s
	}
	return nil
}

func invalidTarget(msg string) error {
	return game.WithMetadata(game.CodeInvalidTarget, msg, nil)
}

// flush writes every touched player back and returns them sorted by join order.
func (e *execution) flush() ([]game.Player, error) {
	out := make([]game.Player, 0, len(e.changed))
	for id := range e.changed {
		p := e.players[id]
		if err := e.tx.UpdatePlayer(*p); err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinSeq < out[j].JoinSeq })
	return out, nil
}

// kill marks p dead and hands its role to a chosen successor if one is alive.
func (e *execution) kill(p *game.Player) error {
	p.Status = game.StatusDead
	e.touch(p)

	choices, err := e.tx.Inheritances(e.game.Code, p.ID)
	if err != nil {
		return err
	}
	for i := len(choices) - 1; i >= 0; i-- {
		heir, err := e.player(choices[i].SuccessorID)
		if err != nil {
			continue
		}
		if heir.Status != game.StatusAlive {
			continue
		}
		from := heir.CurrentRole
		heir.CurrentRole = p.CurrentRole
		e.touch(heir)
		e.details["inherited_by"] = heir.ID
		e.extra = append(e.extra, game.PlayerAction{
			ID:         ids.New(),
			GameCode:   e.game.Code,
			Day:        e.game.Day,
			ActorID:    heir.ID,
			RoleName:   p.CurrentRole,
			ActionType: game.EffectInheritRoleOnDeath,
			TargetID:   p.ID,
			Successful: true,
			Details:    game.Details{"previous_role": from},
			CreatedAt:  e.now,
		})
		return nil
	}
	return nil
}

// prisonVotes returns the prison ballots cast against p. For a prisoner that is
// the consultation that sent them to prison, for anyone else today's.
func (e *execution) prisonVotes(p *game.Player) ([]game.Vote, error) {
	day := e.game.Day
	if p.Status == game.StatusImprisoned {
		var err error
		if day, err = e.imprisonedOn(p.ID); err != nil {
			return nil, err
		}
	}
	return e.tx.Votes(store.VoteFilter{
		GameCode:     e.game.Code,
		Day:          day,
		ElectionRole: game.ElectionPrison,
		CandidateID:  p.ID,
	})
}

// imprisonedOn finds the latest day whose announcement named candidateID.
func (e *execution) imprisonedOn(candidateID string) (int, error) {
	for day := e.game.Day; day >= 1; day-- {
		a, err := e.tx.Announcement(e.game.Code, day)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if a.CandidateID == candidateID {
			return day, nil
		}
	}
	return e.game.Day, nil
}

func voters(votes []game.Vote) []string {
	out := make([]string, 0, len(votes))
	for _, v := range votes {
		out = append(out, v.VoterID)
	}
	return out
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
