// Package minigame grades the daily role-guessing round and pays out decayed rewards.
package minigame

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"conclave.org/internal/effects"
	"conclave.org/internal/game"
	"conclave.org/internal/ids"
	"conclave.org/internal/ledger"
	"conclave.org/internal/store"
)

const (
	// MaxGuesses per player per day.
	MaxGuesses = 3
	decay      = 0.93
	floorShare = 0.25
)

// Score is one player's correct-guess count for the day.
type Score struct {
	PlayerID string
	Correct  int
}

type Result struct {
	PlayerID string `json:"player_id"`
	Correct  int    `json:"correct"`
	Rank     int    `json:"rank"`
	Points   int64  `json:"points"`
}

// Award is the payout for rank r with daily cap m: m decayed once per position,
// never below a quarter of m.
func Award(r int, m int64) int64 {
	points := float64(m)
	for i := 0; i < r; i++ {
		points *= decay
	}
	floor := int64(math.Round(floorShare * float64(m)))
	award := int64(math.Round(points))
	if award < floor {
		return floor
	}
	return award
}

// Rank orders scores by correct guesses, best first. Equal counts keep input order
// and share the rank of the first of them.
func Rank(scores []Score, m int64) []Result {
	sorted := append([]Score(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Correct > sorted[j].Correct })

	out := make([]Result, len(sorted))
	for i, s := range sorted {
		r := i
		if i > 0 && s.Correct == sorted[i-1].Correct {
			r = out[i-1].Rank
		}
		out[i] = Result{PlayerID: s.PlayerID, Correct: s.Correct, Rank: r, Points: Award(r, m)}
	}
	return out
}

// Submission is one guess of a target's role.
type Submission struct {
	TargetID string `json:"target_id"`
	Role     string `json:"role"`
}

// Submit grades and stores a player's guesses for the day. Correctness is fixed
// against the target's role at submission time.
func Submit(tx store.Tx, g game.Game, guesserID string, subs []Submission, now time.Time) ([]game.Guess, error) {
	if g.Phase != game.PhaseReflectionMiniGame {
		return nil, game.ErrWrongPhase
	}
	if len(subs) == 0 || len(subs) > MaxGuesses {
		return nil, game.WithMetadata(game.CodeInvalidInput, "between 1 and 3 guesses required", nil)
	}
	guesser, err := tx.Player(g.Code, guesserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, game.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	if !guesser.Alive() {
		return nil, game.ErrActorIncapacitated
	}
	prior, err := tx.Guesses(g.Code, g.Day)
	if err != nil {
		return nil, err
	}
	for _, p := range prior {
		if p.GuesserID == guesserID {
			return nil, game.ErrAlreadyDone
		}
	}

	seen := make(map[string]bool, len(subs))
	out := make([]game.Guess, 0, len(subs))
	for _, s := range subs {
		if s.TargetID == guesserID || seen[s.TargetID] {
			return nil, game.ErrInvalidTarget
		}
		seen[s.TargetID] = true
		target, err := tx.Player(g.Code, s.TargetID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, game.ErrInvalidTarget
		}
		if err != nil {
			return nil, err
		}
		out = append(out, game.Guess{
			ID:          ids.New(),
			GameCode:    g.Code,
			Day:         g.Day,
			GuesserID:   guesserID,
			TargetID:    target.ID,
			GuessedRole: strings.TrimSpace(s.Role),
			Correct:     target.CurrentRole != "" && strings.EqualFold(strings.TrimSpace(s.Role), target.CurrentRole),
			CreatedAt:   now,
		})
	}
	for _, guess := range out {
		if err := tx.InsertGuess(guess); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, game.ErrAlreadyDone
			}
			return nil, err
		}
	}
	return out, nil
}

// Apply scores the day for every living player, credits the rewards and stores
// each player's rank. Players who could not play lose their previous rank. A player under minigame_disrupt scores zero.
func Apply(tx store.Tx, g game.Game) ([]Result, error) {
	players, err := tx.Players(g.Code)
	if err != nil {
		return nil, err
	}
	guesses, err := tx.Guesses(g.Code, g.Day)
	if err != nil {
		return nil, err
	}
	correct := make(map[string]int)
	for _, gs := range guesses {
		if gs.Correct {
			correct[gs.GuesserID]++
		}
	}

	fx := effects.New(tx, g.Code)
	var scores []Score
	byID := make(map[string]game.Player, len(players))
	for _, p := range players {
		if !p.Alive() {
			// sat the day out; yesterday's rank is not today's result
			if p.LastMiniGameRank != nil {
				p.LastMiniGameRank = nil
				if err := tx.UpdatePlayer(p); err != nil {
					return nil, err
				}
			}
			continue
		}
		byID[p.ID] = p
		n := correct[p.ID]
		disrupted, err := fx.IsActive(p.ID, game.KindMiniGameDisrupt, g.Day)
		if err != nil {
			return nil, err
		}
		if disrupted {
			n = 0
		}
		scores = append(scores, Score{PlayerID: p.ID, Correct: n})
	}

	results := Rank(scores, g.DailyCap)
	econ := ledger.New(tx, g.Code)
	for _, r := range results {
		if _, err := econ.Credit(r.PlayerID, r.Points, "minigame"); err != nil {
			return nil, err
		}
		p := byID[r.PlayerID]
		rank := r.Rank
		p.LastMiniGameRank = &rank
		if err := tx.UpdatePlayer(p); err != nil {
			return nil, err
		}
	}
	return results, nil
}
