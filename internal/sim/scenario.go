// Package sim plays whole games with bot players, for smoke runs and load.
package sim

import (
	"math/rand"
	"time"

	"conclave.org/internal/ability"
	"conclave.org/internal/catalog"
	"conclave.org/internal/game"
	"conclave.org/internal/minigame"
)

type Scenario struct {
	Name    string
	Players []string
	// Days caps the run; the host finishes the game after this many days.
	Days            int
	Tutorial        bool
	IncludeOutreach bool
}

func CouncilScenario() Scenario {
	return Scenario{
		Name:    "Council",
		Players: []string{"Amara", "Bastien", "Chiara", "Dmitri", "Esme", "Farid", "Greta", "Hiro"},
		Days:    3,
	}
}

// Generator makes the bots' choices. It is not safe for concurrent use.
type Generator struct {
	catalog *catalog.Catalog
	rnd     *rand.Rand
}

func NewGenerator(c *catalog.Catalog, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{catalog: c, rnd: rand.New(rand.NewSource(seed))}
}

// Invocation picks one of self's actions and a target the action's rule accepts.
// ok is false when the role has nothing usable on this table.
func (g *Generator) Invocation(self game.Player, table []game.Player) (ability.Invocation, bool) {
	role, found := g.catalog.Role(self.CurrentRole)
	if !found || len(role.Actions) == 0 {
		return ability.Invocation{}, false
	}
	effect := role.Actions[g.rnd.Intn(len(role.Actions))]
	act, _ := g.catalog.Action(role.Name, effect)
	inv := ability.Invocation{ActionType: effect}

	switch act.Target {
	case catalog.TargetNone:
		return inv, true
	case catalog.TargetTier:
		tiers := []game.Tier{game.TierA, game.TierB, game.TierC, game.TierD}
		inv.TargetTier = tiers[g.rnd.Intn(len(tiers))]
		return inv, true
	}

	targets := g.pick(table, func(p game.Player) bool {
		if p.ID == self.ID && !act.AllowSelf {
			return false
		}
		switch act.Target {
		case catalog.TargetAlive:
			return p.Alive()
		case catalog.TargetDead:
			return p.Status == game.StatusDead
		case catalog.TargetImprisoned:
			return p.Status == game.StatusImprisoned
		default:
			return true
		}
	})
	if len(targets) == 0 {
		return ability.Invocation{}, false
	}
	inv.TargetID = targets[0].ID
	if act.Secondary {
		for _, p := range targets[1:] {
			if p.Alive() && p.ID != self.ID {
				inv.SecondaryTargetID = p.ID
				break
			}
		}
		if inv.SecondaryTargetID == "" {
			return ability.Invocation{}, false
		}
	}
	return inv, true
}

// Guesses returns up to three guesses at other players' roles.
func (g *Generator) Guesses(self game.Player, table []game.Player) []minigame.Submission {
	others := g.pick(table, func(p game.Player) bool { return p.ID != self.ID })
	if len(others) > 3 {
		others = others[:3]
	}
	roles := g.catalog.Roles()
	out := make([]minigame.Submission, 0, len(others))
	for _, p := range others {
		out = append(out, minigame.Submission{TargetID: p.ID, Role: roles[g.rnd.Intn(len(roles))].Name})
	}
	return out
}

// Ballot picks a candidate, preferring someone other than the voter.
func (g *Generator) Ballot(voterID string, candidates []game.Player) (string, bool) {
	others := g.pick(candidates, func(p game.Player) bool { return p.ID != voterID })
	if len(others) > 0 {
		return others[0].ID, true
	}
	if len(candidates) > 0 {
		return candidates[0].ID, true
	}
	return "", false
}

// Grant picks a recipient and an amount no larger than pool.
func (g *Generator) Grant(table []game.Player, pool int64) (string, int64, bool) {
	alive := g.pick(table, game.Player.Alive)
	if len(alive) == 0 || pool <= 0 {
		return "", 0, false
	}
	amount := int64(g.rnd.Intn(10) + 1)
	if amount > pool {
		amount = pool
	}
	return alive[0].ID, amount, true
}

// pick filters players and shuffles the result.
func (g *Generator) pick(players []game.Player, keep func(game.Player) bool) []game.Player {
	var out []game.Player
	for _, p := range players {
		if keep(p) {
			out = append(out, p)
		}
	}
	g.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
