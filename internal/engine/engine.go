// Package engine is the authoritative game service: every host and player intent
// runs through it inside one store transaction, and committed changes are pushed
// to the change feed.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"conclave.org/internal/ability"
	"conclave.org/internal/assign"
	"conclave.org/internal/catalog"
	"conclave.org/internal/election"
	"conclave.org/internal/game"
	"conclave.org/internal/ids"
	"conclave.org/internal/narrator"
	"conclave.org/internal/obs"
	"conclave.org/internal/phase"
	"conclave.org/internal/store"
	"conclave.org/internal/stream"
)

// ErrStillWaiting is returned when host-computed results did not show up in time.
var ErrStillWaiting = errors.New("engine: still waiting for results")

const (
	defaultDailyCap = 100
	// group pool per game, in daily caps
	defaultPoolDays  = 5
	codeAttempts     = 5
	narrationTimeout = 30 * time.Second
)

// Narrator tells the story of a recap. *narrator.Narrator satisfies it.
type Narrator interface {
	Narrate(ctx context.Context, r narrator.Recap, onChunk func(string)) (string, error)
}

type Engine struct {
	store    store.Store
	catalog  *catalog.Catalog
	machine  *phase.Machine
	resolver *ability.Resolver
	feed     *stream.Stream
	narrator Narrator
	now      func() time.Time
	shuffle  func() assign.Shuffler
	dailyCap int64

	pollInterval time.Duration
	pollAttempts int
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithFeed(s *stream.Stream) Option {
	return func(e *Engine) {
		if s != nil {
			e.feed = s
		}
	}
}

func WithNarrator(n Narrator) Option {
	return func(e *Engine) { e.narrator = n }
}

// WithShuffler fixes the role shuffle, mostly for tests and simulations.
func WithShuffler(s assign.Shuffler) Option {
	return func(e *Engine) {
		if s != nil {
			e.shuffle = func() assign.Shuffler { return s }
		}
	}
}

// WithDailyCap sets the cap used when CreateGame is given none.
func WithDailyCap(m int64) Option {
	return func(e *Engine) {
		if m > 0 {
			e.dailyCap = m
		}
	}
}

// WithPolling sets the AwaitRank fallback poll.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.pollInterval = interval
		}
		if attempts > 0 {
			e.pollAttempts = attempts
		}
	}
}

func New(s store.Store, c *catalog.Catalog, opts ...Option) *Engine {
	if c == nil {
		c = catalog.Default()
	}
	e := &Engine{
		store:        s,
		catalog:      c,
		feed:         stream.New(),
		now:          func() time.Time { return time.Now().UTC() },
		shuffle:      func() assign.Shuffler { return assign.RandomShuffler(time.Now().UnixNano()) },
		dailyCap:     defaultDailyCap,
		pollInterval: time.Second,
		pollAttempts: 30,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.machine = phase.New(phase.WithClock(e.now))
	e.resolver = ability.New(c, ability.WithClock(e.now))
	e.registerHooks()
	return e
}

// Feed is the change feed the engine publishes to.
func (e *Engine) Feed() *stream.Stream { return e.feed }

// Catalog is the role table the engine resolves against.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error { return e.store.Ping(ctx) }

// CreateRequest configures a new game.
type CreateRequest struct {
	HostName        string `json:"host_name"`
	DailyCap        int64  `json:"daily_cap,omitempty"`
	GroupPoints     int64  `json:"group_points,omitempty"`
	Tutorial        bool   `json:"tutorial,omitempty"`
	IncludeOutreach bool   `json:"include_outreach,omitempty"`
}

// Seat is a player's place in a game.
type Seat struct {
	Game   game.Game   `json:"game"`
	Player game.Player `json:"player"`
}

// CreateGame opens a Lobby game with the creator as host.
func (e *Engine) CreateGame(ctx context.Context, req CreateRequest) (Seat, error) {
	ctx, span := start(ctx, "engine.CreateGame")
	defer span.End()

	name := strings.TrimSpace(req.HostName)
	if name == "" {
		return Seat{}, finish(span, game.WithMetadata(game.CodeInvalidInput, "host name is required", nil))
	}
	if req.DailyCap < 0 || req.GroupPoints < 0 {
		return Seat{}, finish(span, game.WithMetadata(game.CodeInvalidInput, "amounts must not be negative", nil))
	}
	m := req.DailyCap
	if m == 0 {
		m = e.dailyCap
	}
	pool := req.GroupPoints
	if pool == 0 {
		pool = m * defaultPoolDays
	}

	now := e.now()
	host := game.Player{ID: ids.New(), Name: name, Status: game.StatusAlive, JoinedAt: now}
	var seat Seat
	var err error
	for attempt := 0; attempt < codeAttempts; attempt++ {
		g := game.Game{
			Code:              ids.GameCode(),
			Phase:             game.PhaseLobby,
			HostPlayerID:      host.ID,
			GroupPoints:       pool,
			DailyCap:          m,
			Tutorial:          req.Tutorial,
			IncludeOutreach:   req.IncludeOutreach,
			LastPhaseChangeAt: now,
			CreatedAt:         now,
		}
		host.GameCode = g.Code
		err = e.store.InTx(ctx, func(tx store.Tx) error {
			if err := tx.CreateGame(g); err != nil {
				return err
			}
			return tx.InsertPlayer(host)
		})
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		seat = Seat{Game: g, Player: host}
		break
	}
	if err != nil {
		return Seat{}, finish(span, err)
	}
	span.SetAttributes(attribute.String("game.code", seat.Game.Code))
	obs.Info("game_created", map[string]any{"game_code": seat.Game.Code, "player_id": host.ID, "daily_cap": m})
	e.feed.Publish(stream.GameChanged(seat.Game))
	return seat, nil
}

// Join adds a player to a game still in the Lobby.
func (e *Engine) Join(ctx context.Context, code, name string) (Seat, error) {
	ctx, span := start(ctx, "engine.Join", attribute.String("game.code", code))
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return Seat{}, finish(span, game.WithMetadata(game.CodeInvalidInput, "name is required", nil))
	}
	var seat Seat
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		g, err := loadGame(tx, code)
		if err != nil {
			return err
		}
		if g.Phase != game.PhaseLobby {
			return game.ErrWrongPhase
		}
		players, err := tx.Players(code)
		if err != nil {
			return err
		}
		p := game.Player{
			ID:       ids.New(),
			GameCode: code,
			Name:     name,
			Status:   game.StatusAlive,
			JoinSeq:  len(players),
			JoinedAt: e.now(),
		}
		if err := tx.InsertPlayer(p); err != nil {
			return err
		}
		seat = Seat{Game: g, Player: p}
		return nil
	})
	if err != nil {
		return Seat{}, finish(span, err)
	}
	e.feed.Publish(stream.PlayerChanged(public(seat.Player)))
	return seat, nil
}

// Advance moves the game to its next phase. Only the host may call it.
func (e *Engine) Advance(ctx context.Context, code, actorID string) (phase.Transition, error) {
	return e.transition(ctx, "engine.Advance", code, actorID, e.machine.Advance)
}

// Pause moves the game to Paused.
func (e *Engine) Pause(ctx context.Context, code, actorID string) (phase.Transition, error) {
	return e.transition(ctx, "engine.Pause", code, actorID, e.machine.Pause)
}

// Finish ends the game.
func (e *Engine) Finish(ctx context.Context, code, actorID string) (phase.Transition, error) {
	return e.transition(ctx, "engine.Finish", code, actorID, e.machine.Finish)
}

type move func(tx store.Tx, code, actorID string) (phase.Transition, error)

func (e *Engine) transition(ctx context.Context, name, code, actorID string, fn move) (phase.Transition, error) {
	ctx, span := start(ctx, name, attribute.String("game.code", code), attribute.String("player.id", actorID))
	defer span.End()

	var (
		tr      phase.Transition
		players []game.Player
		before  []game.Player
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if before, err = tx.Players(code); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		tr, err = fn(tx, code, actorID)
		if err != nil {
			return err
		}
		players, err = tx.Players(code)
		return err
	})
	if err != nil {
		if errors.Is(err, game.ErrInvalidTransition) {
			// terminal phases answer with the unchanged game
			return tr, finish(span, err)
		}
		return phase.Transition{}, finish(span, err)
	}

	span.SetAttributes(attribute.String("phase.from", string(tr.From)), attribute.String("phase.to", string(tr.To)))
	obs.PhaseEntered(string(tr.To))
	obs.Info("phase_changed", map[string]any{
		"game_code": code, "from": tr.From, "to": tr.To, "day": tr.Game.Day, "seq": tr.Game.PhaseSeq,
	})
	e.feed.Publish(stream.GameChanged(tr.Game))
	for _, p := range players {
		e.feed.Publish(stream.PlayerChanged(public(p)))
	}
	e.narrate(ctx, recap(tr, before, players))
	return tr, nil
}

// Execute runs an ability for actorID.
func (e *Engine) Execute(ctx context.Context, code, actorID string, inv ability.Invocation) (ability.Outcome, error) {
	ctx, span := start(ctx, "engine.Execute",
		attribute.String("game.code", code),
		attribute.String("player.id", actorID),
		attribute.String("ability.action", string(inv.ActionType)))
	defer span.End()

	var out ability.Outcome
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		g, err := loadGame(tx, code)
		if err != nil {
			return err
		}
		out, err = e.resolver.Execute(tx, g, actorID, inv)
		return err
	})
	if err != nil {
		outcome := "error"
		if c, ok := game.CodeOf(err); ok {
			outcome = string(c)
			obs.Info("ability_rejected", map[string]any{
				"game_code": code, "player_id": actorID, "action": inv.ActionType, "code": c,
			})
		}
		obs.AbilityExecuted(string(inv.ActionType), outcome)
		return ability.Outcome{}, finish(span, err)
	}

	obs.AbilityExecuted(string(inv.ActionType), "ok")
	obs.PointsMoved("debit", out.Action.PointsSpent)
	obs.Info("ability_executed", map[string]any{
		"game_code": code, "player_id": actorID, "action": inv.ActionType, "cost": out.Action.PointsSpent,
	})
	for _, p := range out.Changed {
		e.feed.Publish(stream.PlayerChanged(public(p)))
	}
	return out, nil
}

// Vote records a ballot in the election of the current phase.
func (e *Engine) Vote(ctx context.Context, code, voterID, candidateID string) (game.Vote, error) {
	ctx, span := start(ctx, "engine.Vote", attribute.String("game.code", code), attribute.String("player.id", voterID))
	defer span.End()

	var v game.Vote
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		g, err := loadGame(tx, code)
		if err != nil {
			return err
		}
		v, err = election.RecordVote(tx, g, voterID, candidateID, e.now())
		return err
	})
	if err != nil {
		return game.Vote{}, finish(span, err)
	}
	obs.VoteRecorded(string(v.ElectionRole))
	return v, nil
}

// Candidates lists who may be voted for in role's election right now.
func (e *Engine) Candidates(ctx context.Context, code string, role game.ElectionRole) ([]game.Player, error) {
	ctx, span := start(ctx, "engine.Candidates", attribute.String("game.code", code))
	defer span.End()

	var out []game.Player
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		g, err := loadGame(tx, code)
		if err != nil {
			return err
		}
		pool, err := candidates(tx, g, role)
		if err != nil {
			return err
		}
		for _, p := range pool {
			out = append(out, public(p))
		}
		return nil
	})
	return out, finish(span, err)
}

func start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return obs.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish records err on span and returns it unchanged.
func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func loadGame(tx store.Tx, code string) (game.Game, error) {
	g, err := tx.Game(code)
	if errors.Is(err, store.ErrNotFound) {
		return game.Game{}, game.ErrGameNotFound
	}
	return g, err
}

// public strips what other players must not see.
func public(p game.Player) game.Player {
	p.CurrentRole = ""
	p.OriginalRole = ""
	p.EffectiveIdentityID = ""
	return p
}
