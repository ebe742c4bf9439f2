// Package effects tracks timed status effects and protections. Records are never
// deleted; a record is in force while its expires_at_day is >= the current day.
package effects

import (
	"conclave.org/internal/game"
	"conclave.org/internal/ids"
	"conclave.org/internal/store"
)

// Ledger reads and writes effect rows inside a store transaction.
type Ledger struct {
	tx   store.Tx
	code string
}

func New(tx store.Tx, gameCode string) Ledger {
	return Ledger{tx: tx, code: gameCode}
}

// ExpiresAt is the last day an effect applied on day for duration days is in force.
func ExpiresAt(day, duration int) int { return day + duration }

// IsActive reports whether target has an effect or protection of kind in force on day.
func (l Ledger) IsActive(targetID string, kind game.EffectKind, day int) (bool, error) {
	f := store.EffectFilter{GameCode: l.code, TargetID: targetID, Kind: kind, ActiveOn: day}
	effects, err := l.tx.Effects(f)
	if err != nil {
		return false, err
	}
	if len(effects) > 0 {
		return true, nil
	}
	protections, err := l.tx.Protections(f)
	if err != nil {
		return false, err
	}
	return len(protections) > 0, nil
}

// Active lists the effects on target in force on day.
func (l Ledger) Active(targetID string, day int) ([]game.ActiveEffect, error) {
	return l.tx.Effects(store.EffectFilter{GameCode: l.code, TargetID: targetID, ActiveOn: day})
}

// Apply records an effect on target starting on day.
func (l Ledger) Apply(source game.Player, targetID string, kind game.EffectKind, day, duration int) (game.ActiveEffect, error) {
	e := game.ActiveEffect{
		ID:             ids.New(),
		GameCode:       l.code,
		TargetID:       targetID,
		SourcePlayerID: source.ID,
		SourceRole:     source.CurrentRole,
		Kind:           kind,
		AppliedDay:     day,
		ExpiresAtDay:   ExpiresAt(day, duration),
	}
	if err := l.tx.InsertEffect(e); err != nil {
		return game.ActiveEffect{}, err
	}
	return e, nil
}

// Protect records a protection on target starting on day.
func (l Ledger) Protect(protector game.Player, targetID string, kind game.EffectKind, day, duration int) (game.Protection, error) {
	p := game.Protection{
		ID:           ids.New(),
		GameCode:     l.code,
		ProtectorID:  protector.ID,
		ProtectedID:  targetID,
		Kind:         kind,
		AppliedDay:   day,
		ExpiresAtDay: ExpiresAt(day, duration),
	}
	if err := l.tx.InsertProtection(p); err != nil {
		return game.Protection{}, err
	}
	return p, nil
}
