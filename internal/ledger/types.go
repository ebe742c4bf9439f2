package ledger

import "errors"

// Points are whole units. No floats.

// Entry is one balance movement applied inside a transaction.
type Entry struct {
	GameCode string `json:"game_code"`
	// PlayerID is empty for the group pool.
	PlayerID string `json:"player_id,omitempty"`
	Delta    int64  `json:"delta"`
	Balance  int64  `json:"balance"`
	Reason   string `json:"reason"`
}

func (e Entry) Group() bool { return e.PlayerID == "" }

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount (must be >= 0)")
)
