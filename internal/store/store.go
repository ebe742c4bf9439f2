// Package store defines the transactional persistence contract the engine runs on.
package store

import (
	"context"
	"errors"

	"conclave.org/internal/game"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrDuplicate       = errors.New("store: duplicate")
	ErrConflict        = errors.New("store: concurrent update")
	ErrNegativeBalance = errors.New("store: balance would go negative")
)

// Store runs fn atomically: either every write made through tx is committed or none is.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is bound to the context passed to InTx.
type Tx interface {
	CreateGame(g game.Game) error
	Game(code string) (game.Game, error)
	// UpdateGame writes g only if the stored PhaseSeq still equals expectedSeq.
	// Group points are not written; use AddGroupPoints.
	UpdateGame(g game.Game, expectedSeq int64) error
	AddGroupPoints(code string, delta int64) (int64, error)

	InsertPlayer(p game.Player) error
	Player(code, id string) (game.Player, error)
	// Players are returned in join order.
	Players(code string) ([]game.Player, error)
	// UpdatePlayer writes every field except Points.
	UpdatePlayer(p game.Player) error
	AddPoints(code, playerID string, delta int64) (int64, error)

	InsertAction(a game.PlayerAction) error
	Actions(code string, day int) ([]game.PlayerAction, error)

	InsertEffect(e game.ActiveEffect) error
	Effects(f EffectFilter) ([]game.ActiveEffect, error)
	InsertProtection(p game.Protection) error
	Protections(f EffectFilter) ([]game.Protection, error)

	// InsertVote assigns Seq. ErrDuplicate when (game, voter, day, phase) exists.
	InsertVote(v game.Vote) (game.Vote, error)
	// Votes are returned in insertion order.
	Votes(f VoteFilter) ([]game.Vote, error)

	InsertGuess(g game.Guess) error
	Guesses(code string, day int) ([]game.Guess, error)

	// Claim records a one-shot token. ErrDuplicate when it was already claimed.
	Claim(code, kind, key string) error

	InsertInheritance(c game.RoleInheritanceChoice) error
	Inheritances(code, playerID string) ([]game.RoleInheritanceChoice, error)
	InsertConversion(c game.RoleConversion) error
	InsertVengeanceGuess(v game.VengeanceGuess) error
	InsertAnnouncement(a game.SecretaryVoteAnnouncement) error
	Announcement(code string, day int) (game.SecretaryVoteAnnouncement, error)
	InsertTreasuryTransaction(t game.TreasuryTransaction) error
	TreasuryTransactions(code string) ([]game.TreasuryTransaction, error)
}

// EffectFilter selects effect and protection rows. Zero fields match everything;
// ActiveOn > 0 keeps rows with expires_at_day >= ActiveOn.
type EffectFilter struct {
	GameCode string
	TargetID string
	Kind     game.EffectKind
	ActiveOn int
}

// Match reports whether a row satisfies the filter.
func (f EffectFilter) Match(code, target string, kind game.EffectKind, expiresAt int) bool {
	if f.GameCode != "" && f.GameCode != code {
		return false
	}
	if f.TargetID != "" && f.TargetID != target {
		return false
	}
	if f.Kind != "" && f.Kind != kind {
		return false
	}
	if f.ActiveOn > 0 && !game.ActiveOn(expiresAt, f.ActiveOn) {
		return false
	}
	return true
}

type VoteFilter struct {
	GameCode     string
	Day          int
	Phase        game.Phase
	ElectionRole game.ElectionRole
	CandidateID  string
}

func (f VoteFilter) Match(v game.Vote) bool {
	if f.GameCode != "" && f.GameCode != v.GameCode {
		return false
	}
	if f.Day != 0 && f.Day != v.Day {
		return false
	}
	if f.Phase != "" && f.Phase != v.Phase {
		return false
	}
	if f.ElectionRole != "" && f.ElectionRole != v.ElectionRole {
		return false
	}
	if f.CandidateID != "" && f.CandidateID != v.CandidateID {
		return false
	}
	return true
}
