// Package ability validates and executes role abilities during Reflection_RoleActions.
package ability

import (
	"errors"
	"time"

	"conclave.org/internal/catalog"
	"conclave.org/internal/effects"
	"conclave.org/internal/game"
	"conclave.org/internal/ids"
	"conclave.org/internal/ledger"
	"conclave.org/internal/store"
)

// Invocation is a player's request to use an ability.
type Invocation struct {
	ActionType        game.EffectType `json:"action_type"`
	TargetID          string          `json:"target_player_id,omitempty"`
	SecondaryTargetID string          `json:"secondary_target_id,omitempty"`
	TargetTier        game.Tier       `json:"target_tier,omitempty"`
}

// Outcome is what a successful execution wrote.
type Outcome struct {
	Action  game.PlayerAction `json:"action"`
	Changed []game.Player     `json:"-"`
	Entries []ledger.Entry    `json:"-"`
}

// Resolver executes invocations against the catalog's action table.
type Resolver struct {
	catalog  *catalog.Catalog
	now      func() time.Time
	handlers map[game.EffectType]handler
}

type Option func(*Resolver)

// WithClock overrides the time source used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func New(c *catalog.Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:  c,
		now:      func() time.Time { return time.Now().UTC() },
		handlers: defaultHandlers(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// protectedBy lists which protection blocks an effect.
var protectedBy = map[game.EffectType]game.EffectKind{
	game.EffectKill:                game.KindMurderIntoxication,
	game.EffectHospitalize:         game.KindMurderIntoxication,
	game.EffectConvertVirtueToVice: game.KindHouseOfWorship,
}

// Execute validates inv for actorID and applies it inside tx. Validation failures
// return a *game.Error before anything is written; the caller's transaction
// discards partial writes on any other error.
func (r *Resolver) Execute(tx store.Tx, g game.Game, actorID string, inv Invocation) (Outcome, error) {
	if g.Phase != game.PhaseReflectionRoleActions {
		return Outcome{}, game.ErrWrongPhase
	}
	actor, err := loadPlayer(tx, g.Code, actorID, game.ErrPlayerNotFound)
	if err != nil {
		return Outcome{}, err
	}
	if actor.Status != game.StatusAlive {
		return Outcome{}, game.ErrActorIncapacitated
	}
	if actor.ActedToday {
		return Outcome{}, game.ErrAlreadyActed
	}
	action, ok := r.catalog.Action(actor.CurrentRole, inv.ActionType)
	if !ok {
		return Outcome{}, game.WithMetadata(game.CodeInvalidActionForRole, "action not available to this role",
			map[string]string{"role": actor.CurrentRole, "action": string(inv.ActionType)})
	}
	h, ok := r.handlers[inv.ActionType]
	if !ok {
		return Outcome{}, game.ErrInvalidActionForRole
	}

	e := &execution{
		tx:      tx,
		game:    g,
		catalog: r.catalog,
		action:  action,
		inv:     inv,
		fx:      effects.New(tx, g.Code),
		details: game.Details{},
		players: map[string]*game.Player{actor.ID: &actor},
		changed: map[string]bool{},
		now:     r.now(),
	}
	e.actor = &actor
	if err := e.resolveTargets(); err != nil {
		return Outcome{}, err
	}

	cost, err := catalog.Cost(action, g.DailyCap, inv.TargetTier)
	if err != nil {
		return Outcome{}, game.Wrap(game.CodeInvalidTarget, "invalid target tier", err)
	}
	if cost > actor.Points {
		return Outcome{}, game.WithMetadata(game.CodeInsufficientPoints, "insufficient points",
			map[string]string{"cost": itoa(cost), "balance": itoa(actor.Points)})
	}
	if kind, ok := protectedBy[inv.ActionType]; ok && e.target != nil {
		protected, err := e.fx.IsActive(e.target.ID, kind, g.Day)
		if err != nil {
			return Outcome{}, err
		}
		if protected {
			return Outcome{}, game.WithMetadata(game.CodeTargetProtected, "target is protected",
				map[string]string{"protection": string(kind)})
		}
	}

	// a kill can hand the actor a new role; the record keeps the one used
	roleUsed := actor.CurrentRole
	if err := h(e); err != nil {
		return Outcome{}, err
	}

	econ := ledger.New(tx, g.Code)
	bal, err := econ.Debit(actor.ID, cost, string(inv.ActionType))
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return Outcome{}, game.ErrInsufficientPoints
		}
		return Outcome{}, err
	}

	e.actor.Points = bal
	e.actor.ActedToday = true
	e.touch(e.actor)
	rec := game.PlayerAction{
		ID:          ids.New(),
		GameCode:    g.Code,
		Day:         g.Day,
		ActorID:     actor.ID,
		RoleName:    roleUsed,
		ActionType:  inv.ActionType,
		TargetTier:  inv.TargetTier,
		PointsSpent: cost,
		Successful:  true,
		Details:     e.details,
		CreatedAt:   e.now,
	}
	if e.target != nil {
		rec.TargetID = e.target.ID
	}
	if e.secondary != nil {
		rec.SecondaryTargetID = e.secondary.ID
	}
	if err := tx.InsertAction(rec); err != nil {
		return Outcome{}, err
	}
	for _, extra := range e.extra {
		if err := tx.InsertAction(extra); err != nil {
			return Outcome{}, err
		}
	}

	changed, err := e.flush()
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: rec, Changed: changed, Entries: econ.Entries()}, nil
}

// Preview returns the price of inv for actorID without validating phase or targets.
func (r *Resolver) Preview(tx store.Tx, g game.Game, actorID string, inv Invocation) (int64, error) {
	actor, err := loadPlayer(tx, g.Code, actorID, game.ErrPlayerNotFound)
	if err != nil {
		return 0, err
	}
	action, ok := r.catalog.Action(actor.CurrentRole, inv.ActionType)
	if !ok {
		return 0, game.ErrInvalidActionForRole
	}
	return catalog.Cost(action, g.DailyCap, inv.TargetTier)
}

// Available lists the actions actorID's current role exposes.
func (r *Resolver) Available(p game.Player) []catalog.Action {
	role, ok := r.catalog.Role(p.CurrentRole)
	if !ok {
		return nil
	}
	out := make([]catalog.Action, 0, len(role.Actions))
	for _, effect := range role.Actions {
		if a, ok := r.catalog.Action(role.Name, effect); ok {
			out = append(out, a)
		}
	}
	return out
}

func loadPlayer(tx store.Tx, code, id string, missing error) (game.Player, error) {
	p, err := tx.Player(code, id)
	if errors.Is(err, store.ErrNotFound) {
		return game.Player{}, missing
	}
	return p, err
}
