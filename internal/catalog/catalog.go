package catalog

import (
	"errors"
	"fmt"
	"sort"

	"conclave.org/internal/game"
)

// CostClass selects the cost formula of an action.
type CostClass int

const (
	CostFree CostClass = iota
	CostBase
	CostHeavy
	CostTiered
)

func (c CostClass) String() string {
	switch c {
	case CostFree:
		return "free"
	case CostBase:
		return "base"
	case CostHeavy:
		return "heavy"
	case CostTiered:
		return "tiered"
	default:
		return fmt.Sprintf("CostClass(%d)", int(c))
	}
}

// TargetRule constrains the primary target of an action.
type TargetRule int

const (
	TargetNone TargetRule = iota
	TargetAlive
	TargetDead
	TargetImprisoned
	TargetAnyPlayer
	TargetTier
)

// Action is the data that drives one (role, effect) pair in the resolver.
type Action struct {
	Effect game.EffectType
	Label  string
	Cost   CostClass
	Target TargetRule
	// AllowSelf lets the actor target themselves.
	AllowSelf bool
	// Secondary requires an additional Alive player other than the actor and target.
	Secondary bool
}

// Entry binds a role to the actions it exposes.
type Entry struct {
	Role    game.Role
	Actions []Action
}

type actionKey struct {
	role   string
	effect game.EffectType
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	order   []string
	roles   map[string]game.Role
	actions map[actionKey]Action
}

var ErrDuplicateRole = errors.New("catalog: duplicate role")

// New builds a catalog from entries. Role.Actions is derived from the entry actions.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		roles:   make(map[string]game.Role, len(entries)),
		actions: make(map[actionKey]Action),
	}
	for _, e := range entries {
		name := e.Role.Name
		if name == "" {
			return nil, errors.New("catalog: role name is required")
		}
		if _, ok := c.roles[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, name)
		}
		role := e.Role
		role.Actions = nil
		for _, a := range e.Actions {
			if _, dup := c.actions[actionKey{name, a.Effect}]; dup {
				return nil, fmt.Errorf("catalog: role %s declares %s twice", name, a.Effect)
			}
			c.actions[actionKey{name, a.Effect}] = a
			role.Actions = append(role.Actions, a.Effect)
		}
		c.roles[name] = role
		c.order = append(c.order, name)
	}
	return c, nil
}

func (c *Catalog) Role(name string) (game.Role, bool) {
	r, ok := c.roles[name]
	return r, ok
}

// Action looks up the definition of effect for role.
func (c *Catalog) Action(role string, effect game.EffectType) (Action, bool) {
	a, ok := c.actions[actionKey{role, effect}]
	return a, ok
}

// Roles returns every role in declaration order.
func (c *Catalog) Roles() []game.Role {
	out := make([]game.Role, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.roles[name])
	}
	return out
}

// Assignable splits randomly assignable roles into unique roles, ordered by tier
// priority (declaration order within a tier), and fillers.
func (c *Catalog) Assignable() (unique, fillers []game.Role) {
	for _, r := range c.Roles() {
		if !r.RandomlyAssignable {
			continue
		}
		if r.Unique {
			unique = append(unique, r)
		} else {
			fillers = append(fillers, r)
		}
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Tier.Priority() < unique[j].Tier.Priority()
	})
	return unique, fillers
}

// Filler returns the non-unique assignable role of faction.
func (c *Catalog) Filler(f game.Faction) (game.Role, bool) {
	_, fillers := c.Assignable()
	for _, r := range fillers {
		if r.Faction == f {
			return r, true
		}
	}
	return game.Role{}, false
}

// Faction of a role name; Neutral for unknown names.
func (c *Catalog) Faction(role string) game.Faction {
	if r, ok := c.roles[role]; ok {
		return r.Faction
	}
	return game.FactionNeutral
}

// tierTenths holds the tiered-reveal multipliers in tenths.
var tierTenths = map[game.Tier]int64{
	game.TierS: 35,
	game.TierA: 30,
	game.TierB: 25,
	game.TierC: 20,
	game.TierD: 10,
}

var ErrTierRequired = errors.New("catalog: tiered action requires a tier S-D")

// Cost prices an action for a game whose daily cap is m. tier is only read
// for tiered actions.
func Cost(a Action, m int64, tier game.Tier) (int64, error) {
	if m < 0 {
		return 0, fmt.Errorf("catalog: negative daily cap %d", m)
	}
	switch a.Cost {
	case CostFree:
		return 0, nil
	case CostBase:
		return m, nil
	case CostHeavy:
		return 2 * m, nil
	case CostTiered:
		t, ok := tierTenths[tier]
		if !ok {
			return 0, ErrTierRequired
		}
		return m * t / 10, nil
	default:
		return 0, fmt.Errorf("catalog: unknown cost class %v", a.Cost)
	}
}
