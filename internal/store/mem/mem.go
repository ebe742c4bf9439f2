// Package mem is an in-process store. Transactions are serialized and work on a
// copy of the data that replaces the committed state only when fn succeeds.
package mem

import (
	"context"
	"sort"
	"sync"

	"conclave.org/internal/game"
	"conclave.org/internal/store"
)

type data struct {
	games        map[string]game.Game
	players      map[string]map[string]game.Player // code -> id -> player
	actions      []game.PlayerAction
	effects      []game.ActiveEffect
	protections  []game.Protection
	votes        []game.Vote
	voteSeq      int64
	guesses      []game.Guess
	claims       map[string]struct{}
	inheritances []game.RoleInheritanceChoice
	conversions  []game.RoleConversion
	vengeance    []game.VengeanceGuess
	announcement []game.SecretaryVoteAnnouncement
	treasury     []game.TreasuryTransaction
}

func newData() *data {
	return &data{
		games:   make(map[string]game.Game),
		players: make(map[string]map[string]game.Player),
		claims:  make(map[string]struct{}),
	}
}

func (d *data) clone() *data {
	out := &data{
		games:        make(map[string]game.Game, len(d.games)),
		players:      make(map[string]map[string]game.Player, len(d.players)),
		actions:      append([]game.PlayerAction(nil), d.actions...),
		effects:      append([]game.ActiveEffect(nil), d.effects...),
		protections:  append([]game.Protection(nil), d.protections...),
		votes:        append([]game.Vote(nil), d.votes...),
		voteSeq:      d.voteSeq,
		guesses:      append([]game.Guess(nil), d.guesses...),
		claims:       make(map[string]struct{}, len(d.claims)),
		inheritances: append([]game.RoleInheritanceChoice(nil), d.inheritances...),
		conversions:  append([]game.RoleConversion(nil), d.conversions...),
		vengeance:    append([]game.VengeanceGuess(nil), d.vengeance...),
		announcement: append([]game.SecretaryVoteAnnouncement(nil), d.announcement...),
		treasury:     append([]game.TreasuryTransaction(nil), d.treasury...),
	}
	for k, v := range d.games {
		out.games[k] = v
	}
	for code, ps := range d.players {
		m := make(map[string]game.Player, len(ps))
		for id, p := range ps {
			m[id] = p
		}
		out.players[code] = m
	}
	for k := range d.claims {
		out.claims[k] = struct{}{}
	}
	return out
}

// Store implements store.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *data
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: newData()}
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(&tx{d: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type tx struct {
	d *data
}

func (t *tx) CreateGame(g game.Game) error {
	if _, ok := t.d.games[g.Code]; ok {
		return store.ErrDuplicate
	}
	t.d.games[g.Code] = g
	t.d.players[g.Code] = make(map[string]game.Player)
	return nil
}

func (t *tx) Game(code string) (game.Game, error) {
	g, ok := t.d.games[code]
	if !ok {
		return game.Game{}, store.ErrNotFound
	}
	return g, nil
}

func (t *tx) UpdateGame(g game.Game, expectedSeq int64) error {
	cur, ok := t.d.games[g.Code]
	if !ok {
		return store.ErrNotFound
	}
	if cur.PhaseSeq != expectedSeq {
		return store.ErrConflict
	}
	g.GroupPoints = cur.GroupPoints
	g.CreatedAt = cur.CreatedAt
	t.d.games[g.Code] = g
	return nil
}

func (t *tx) AddGroupPoints(code string, delta int64) (int64, error) {
	g, ok := t.d.games[code]
	if !ok {
		return 0, store.ErrNotFound
	}
	if g.GroupPoints+delta < 0 {
		return g.GroupPoints, store.ErrNegativeBalance
	}
	g.GroupPoints += delta
	t.d.games[code] = g
	return g.GroupPoints, nil
}

func (t *tx) InsertPlayer(p game.Player) error {
	ps, ok := t.d.players[p.GameCode]
	if !ok {
		return store.ErrNotFound
	}
	if _, dup := ps[p.ID]; dup {
		return store.ErrDuplicate
	}
	ps[p.ID] = p
	return nil
}

func (t *tx) Player(code, id string) (game.Player, error) {
	p, ok := t.d.players[code][id]
	if !ok {
		return game.Player{}, store.ErrNotFound
	}
	return clonePlayer(p), nil
}

func (t *tx) Players(code string) ([]game.Player, error) {
	ps, ok := t.d.players[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]game.Player, 0, len(ps))
	for _, p := range ps {
		out = append(out, clonePlayer(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinSeq < out[j].JoinSeq })
	return out, nil
}

func (t *tx) UpdatePlayer(p game.Player) error {
	cur, ok := t.d.players[p.GameCode][p.ID]
	if !ok {
		return store.ErrNotFound
	}
	p.Points = cur.Points
	t.d.players[p.GameCode][p.ID] = clonePlayer(p)
	return nil
}

func (t *tx) AddPoints(code, playerID string, delta int64) (int64, error) {
	p, ok := t.d.players[code][playerID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if p.Points+delta < 0 {
		return p.Points, store.ErrNegativeBalance
	}
	p.Points += delta
	t.d.players[code][playerID] = p
	return p.Points, nil
}

func (t *tx) InsertAction(a game.PlayerAction) error {
	a.Details = a.Details.Clone()
	t.d.actions = append(t.d.actions, a)
	return nil
}

func (t *tx) Actions(code string, day int) ([]game.PlayerAction, error) {
	var out []game.PlayerAction
	for _, a := range t.d.actions {
		if a.GameCode == code && (day == 0 || a.Day == day) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *tx) InsertEffect(e game.ActiveEffect) error {
	t.d.effects = append(t.d.effects, e)
	return nil
}

func (t *tx) Effects(f store.EffectFilter) ([]game.ActiveEffect, error) {
	var out []game.ActiveEffect
	for _, e := range t.d.effects {
		if f.Match(e.GameCode, e.TargetID, e.Kind, e.ExpiresAtDay) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) InsertProtection(p game.Protection) error {
	t.d.protections = append(t.d.protections, p)
	return nil
}

func (t *tx) Protections(f store.EffectFilter) ([]game.Protection, error) {
	var out []game.Protection
	for _, p := range t.d.protections {
		if f.Match(p.GameCode, p.ProtectedID, p.Kind, p.ExpiresAtDay) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *tx) InsertVote(v game.Vote) (game.Vote, error) {
	for _, existing := range t.d.votes {
		if existing.GameCode == v.GameCode && existing.VoterID == v.VoterID &&
			existing.Day == v.Day && existing.Phase == v.Phase {
			return game.Vote{}, store.ErrDuplicate
		}
	}
	t.d.voteSeq++
	v.Seq = t.d.voteSeq
	t.d.votes = append(t.d.votes, v)
	return v, nil
}

func (t *tx) Votes(f store.VoteFilter) ([]game.Vote, error) {
	var out []game.Vote
	for _, v := range t.d.votes {
		if f.Match(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (t *tx) InsertGuess(g game.Guess) error {
	for _, existing := range t.d.guesses {
		if existing.GameCode == g.GameCode && existing.Day == g.Day &&
			existing.GuesserID == g.GuesserID && existing.TargetID == g.TargetID {
			return store.ErrDuplicate
		}
	}
	t.d.guesses = append(t.d.guesses, g)
	return nil
}

func (t *tx) Guesses(code string, day int) ([]game.Guess, error) {
	var out []game.Guess
	for _, g := range t.d.guesses {
		if g.GameCode == code && g.Day == day {
			out = append(out, g)
		}
	}
	return out, nil
}

func (t *tx) Claim(code, kind, key string) error {
	k := code + "\x00" + kind + "\x00" + key
	if _, ok := t.d.claims[k]; ok {
		return store.ErrDuplicate
	}
	t.d.claims[k] = struct{}{}
	return nil
}

func (t *tx) InsertInheritance(c game.RoleInheritanceChoice) error {
	t.d.inheritances = append(t.d.inheritances, c)
	return nil
}

func (t *tx) Inheritances(code, playerID string) ([]game.RoleInheritanceChoice, error) {
	var out []game.RoleInheritanceChoice
	for _, c := range t.d.inheritances {
		if c.GameCode == code && c.PlayerID == playerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *tx) InsertConversion(c game.RoleConversion) error {
	t.d.conversions = append(t.d.conversions, c)
	return nil
}

func (t *tx) InsertVengeanceGuess(v game.VengeanceGuess) error {
	t.d.vengeance = append(t.d.vengeance, v)
	return nil
}

func (t *tx) InsertAnnouncement(a game.SecretaryVoteAnnouncement) error {
	for _, existing := range t.d.announcement {
		if existing.GameCode == a.GameCode && existing.Day == a.Day {
			return store.ErrDuplicate
		}
	}
	a.Tally = a.Tally.Clone()
	t.d.announcement = append(t.d.announcement, a)
	return nil
}

func (t *tx) Announcement(code string, day int) (game.SecretaryVoteAnnouncement, error) {
	for _, a := range t.d.announcement {
		if a.GameCode == code && a.Day == day {
			return a, nil
		}
	}
	return game.SecretaryVoteAnnouncement{}, store.ErrNotFound
}

func (t *tx) InsertTreasuryTransaction(tr game.TreasuryTransaction) error {
	t.d.treasury = append(t.d.treasury, tr)
	return nil
}

func (t *tx) TreasuryTransactions(code string) ([]game.TreasuryTransaction, error) {
	var out []game.TreasuryTransaction
	for _, tr := range t.d.treasury {
		if tr.GameCode == code {
			out = append(out, tr)
		}
	}
	return out, nil
}

func clonePlayer(p game.Player) game.Player {
	if p.LastMiniGameRank != nil {
		r := *p.LastMiniGameRank
		p.LastMiniGameRank = &r
	}
	return p
}
