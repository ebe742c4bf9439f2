package ledger

import (
	"errors"

	"conclave.org/internal/store"
)

// Economy owns point balances for one game within a single store transaction.
// Nothing it does is visible until the surrounding transaction commits.
type Economy struct {
	tx      store.Tx
	code    string
	entries []Entry
}

func New(tx store.Tx, gameCode string) *Economy {
	return &Economy{tx: tx, code: gameCode}
}

func (e *Economy) Balance(playerID string) (int64, error) {
	p, err := e.tx.Player(e.code, playerID)
	if err != nil {
		return 0, mapErr(err)
	}
	return p.Points, nil
}

// Debit removes amount from the player. A zero amount is a no-op.
func (e *Economy) Debit(playerID string, amount int64, reason string) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	if amount == 0 {
		return e.Balance(playerID)
	}
	bal, err := e.tx.AddPoints(e.code, playerID, -amount)
	if err != nil {
		return 0, mapErr(err)
	}
	e.record(playerID, -amount, bal, reason)
	return bal, nil
}

func (e *Economy) Credit(playerID string, amount int64, reason string) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	if amount == 0 {
		return e.Balance(playerID)
	}
	bal, err := e.tx.AddPoints(e.code, playerID, amount)
	if err != nil {
		return 0, mapErr(err)
	}
	e.record(playerID, amount, bal, reason)
	return bal, nil
}

func (e *Economy) GroupBalance() (int64, error) {
	g, err := e.tx.Game(e.code)
	if err != nil {
		return 0, mapErr(err)
	}
	return g.GroupPoints, nil
}

// Grant moves amount from the group pool to the player.
func (e *Economy) Grant(playerID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := e.tx.Player(e.code, playerID); err != nil {
		return 0, mapErr(err)
	}
	pool, err := e.tx.AddGroupPoints(e.code, -amount)
	if err != nil {
		return 0, mapErr(err)
	}
	e.record("", -amount, pool, reason)
	return e.Credit(playerID, amount, reason)
}

// Entries returns the movements applied so far.
func (e *Economy) Entries() []Entry {
	return append([]Entry(nil), e.entries...)
}

func (e *Economy) record(playerID string, delta, balance int64, reason string) {
	e.entries = append(e.entries, Entry{
		GameCode: e.code,
		PlayerID: playerID,
		Delta:    delta,
		Balance:  balance,
		Reason:   reason,
	})
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNegativeBalance):
		return ErrInsufficientFunds
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}
