package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"conclave.org/internal/catalog"
	"conclave.org/internal/game"
	"conclave.org/internal/ids"
	"conclave.org/internal/ledger"
	"conclave.org/internal/minigame"
	"conclave.org/internal/obs"
	"conclave.org/internal/store"
	"conclave.org/internal/stream"
)

// phaseDurations are the advisory timers shown to players. The host still advances.
var phaseDurations = map[game.Phase]time.Duration{
	game.PhaseRoleReveal:             30 * time.Second,
	game.PhaseTutorial:               2 * time.Minute,
	game.PhaseReflectionRoleActions:  90 * time.Second,
	game.PhaseReflectionMiniGame:     90 * time.Second,
	game.PhaseElectionsChairperson:   time.Minute,
	game.PhaseElectionsSecretary:     time.Minute,
	game.PhaseOutreach:               2 * time.Minute,
	game.PhaseConsultationDiscussion: 3 * time.Minute,
	game.PhaseConsultationTreasurer:  time.Minute,
	game.PhaseConsultationVoting:     time.Minute,
}

// SubmitGuesses stores a player's minigame guesses. Correctness stays hidden until scoring.
func (e *Engine) SubmitGuesses(ctx context.Context, code, guesserID string, subs []minigame.Submission) ([]game.Guess, error) {
	ctx, span := start(ctx, "engine.SubmitGuesses", attribute.String("game.code", code), attribute.String("player.id", guesserID))
	defer span.End()

	var out []game.Guess
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		g, err := loadGame(tx, code)
		if err != nil {
			return err
		}
		out, err = minigame.Submit(tx, g, guesserID, subs, e.now())
		return err
	})
	if err != nil {
		return nil, finish(span, err)
	}
	for i := range out {
		out[i].Correct = false
	}
	return out, nil
}

// TreasuryGrant moves amount from the group pool to recipientID. The treasurer
// grants once per day.
func (e *Engine) TreasuryGrant(ctx context.Context, code, treasurerID, recipientID string, amount int64) (game.TreasuryTransaction, error) {
	ctx, span := start(ctx, "engine.TreasuryGrant", attribute.String("game.code", code), attribute.String("player.id", treasurerID))
	defer span.End()

	var (
		t         game.TreasuryTransaction
		recipient game.Player
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		g, err := loadGame(tx, code)
		if err != nil {
			return err
		}
		if g.Phase != game.PhaseConsultationTreasurer {
			return game.ErrWrongPhase
		}
		if g.TreasurerPlayerID == "" || g.TreasurerPlayerID != treasurerID {
			return game.ErrInvalidActionForRole
		}
		treasurer, err := tx.Player(code, treasurerID)
		if errors.Is(err, store.ErrNotFound) {
			return game.ErrPlayerNotFound
		}
		if err != nil {
			return err
		}
		if !treasurer.Alive() {
			return game.ErrActorIncapacitated
		}
		if _, ok := e.catalog.Action(catalog.Treasurer, game.EffectManageGroupPoints); !ok {
			return game.ErrCatalogMisconfigured
		}
		if amount <= 0 {
			return game.WithMetadata(game.CodeInvalidInput, "amount must be positive", nil)
		}
		recipient, err = tx.Player(code, recipientID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !recipient.Alive()) {
			return game.ErrInvalidTarget
		}
		if err != nil {
			return err
		}
		ok, err := claim(tx, &g, claimTreasury, strconv.Itoa(g.Day))
		if err != nil {
			return err
		}
		if !ok {
			return game.ErrAlreadyDone
		}
		bal, err := ledger.New(tx, code).Grant(recipientID, amount, "treasury")
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return game.WithMetadata(game.CodeInsufficientPoints, "group pool is too small", nil)
		}
		if err != nil {
			return err
		}
		recipient.Points = bal
		t = game.TreasuryTransaction{
			ID:          ids.New(),
			GameCode:    code,
			Day:         g.Day,
			TreasurerID: treasurerID,
			RecipientID: recipientID,
			Amount:      amount,
			CreatedAt:   e.now(),
		}
		return tx.InsertTreasuryTransaction(t)
	})
	if err != nil {
		return game.TreasuryTransaction{}, finish(span, err)
	}
	obs.PointsMoved("grant", amount)
	obs.Info("treasury_grant", map[string]any{
		"game_code": code, "player_id": treasurerID, "recipient_id": recipientID, "amount": amount,
	})
	e.feed.Publish(stream.PlayerChanged(public(recipient)))
	return t, nil
}

// View is a game as one player may see it.
type View struct {
	Game    game.Game     `json:"game"`
	Players []game.Player `json:"players"`
	// Remaining is the advisory countdown of the current phase; zero when untimed.
	Remaining time.Duration `json:"remaining_ns"`
}

// State returns the game for viewerID. Roles stay hidden except the viewer's own
// until the game is Finished.
func (e *Engine) State(ctx context.Context, code, viewerID string) (View, error) {
	ctx, span := start(ctx, "engine.State", attribute.String("game.code", code))
	defer span.End()

	var v View
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		g, err := loadGame(tx, code)
		if err != nil {
			return err
		}
		players, err := tx.Players(code)
		if err != nil {
			return err
		}
		v.Game = g
		v.Players = make([]game.Player, 0, len(players))
		for _, p := range players {
			if g.Phase != game.PhaseFinished && p.ID != viewerID {
				p = public(p)
			}
			v.Players = append(v.Players, p)
		}
		if d, ok := phaseDurations[g.Phase]; ok {
			v.Remaining = g.Remaining(d, e.now())
		}
		return nil
	})
	if err != nil {
		return View{}, finish(span, err)
	}
	return v, nil
}

// AwaitRank waits for playerID's minigame rank of the current day. It wakes on
// feed events and rechecks on a fixed poll; ErrStillWaiting once the polls run out.
func (e *Engine) AwaitRank(ctx context.Context, code, playerID string) (int, error) {
	ctx, span := start(ctx, "engine.AwaitRank", attribute.String("game.code", code), attribute.String("player.id", playerID))
	defer span.End()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := e.feed.Subscribe(subCtx, code)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for attempt := 0; ; {
		rank, ok, err := e.rank(ctx, code, playerID)
		if err != nil {
			return 0, finish(span, err)
		}
		if ok {
			return rank, nil
		}
		select {
		case <-ctx.Done():
			return 0, finish(span, ctx.Err())
		case <-events:
		case <-ticker.C:
			attempt++
			if attempt >= e.pollAttempts {
				return 0, ErrStillWaiting
			}
		}
	}
}

func (e *Engine) rank(ctx context.Context, code, playerID string) (int, bool, error) {
	var (
		rank  int
		ready bool
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		g, err := loadGame(tx, code)
		if err != nil {
			return err
		}
		p, err := tx.Player(code, playerID)
		if errors.Is(err, store.ErrNotFound) {
			return game.ErrPlayerNotFound
		}
		if err != nil {
			return err
		}
		switch g.Phase {
		case game.PhaseLobby, game.PhaseRoleReveal, game.PhaseTutorial, game.PhaseReflectionMiniGame:
			return nil
		}
		if p.LastMiniGameRank == nil {
			if !p.Alive() {
				return game.WithMetadata(game.CodeActorIncapacitated, "no minigame result today",
					map[string]string{"status": string(p.Status)})
			}
			return nil
		}
		rank, ready = *p.LastMiniGameRank, true
		return nil
	})
	return rank, ready, err
}
