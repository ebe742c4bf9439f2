// Package stream is the per-game change feed pushed to SSE and websocket clients.
package stream

import (
	"context"
	"sync"
	"time"

	"conclave.org/internal/game"
	"conclave.org/internal/obs"
)

// Event types.
const (
	TypeGame      = "game"
	TypePlayer    = "player"
	TypeAction    = "action"
	TypeNarration = "narration"
)

// Event is one change to a game. Exactly one of Game, Player, Action or Text is set.
type Event struct {
	Type      string             `json:"type"`
	GameCode  string             `json:"game_code"`
	Game      *game.Game         `json:"game,omitempty"`
	Player    *game.Player       `json:"player,omitempty"`
	Action    *game.PlayerAction `json:"action,omitempty"`
	Text      string             `json:"text,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// GameChanged builds a game event.
func GameChanged(g game.Game) Event {
	return Event{Type: TypeGame, GameCode: g.Code, Game: &g, Timestamp: time.Now().UTC()}
}

// PlayerChanged builds a player event.
func PlayerChanged(p game.Player) Event {
	return Event{Type: TypePlayer, GameCode: p.GameCode, Player: &p, Timestamp: time.Now().UTC()}
}

type subscriber struct {
	code string
	ch   chan Event
}

// Stream fans events out to subscribers of the event's game. Slow subscribers
// miss events rather than block publishers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers for events of gameCode; an empty code receives every game.
// The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, gameCode string) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{code: gameCode, ch: ch}
	s.mu.Unlock()
	obs.FeedSubscribed()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
		obs.FeedUnsubscribed()
	}()

	return ch
}

func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.code != "" && sub.code != evt.GameCode {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribers reports the number of open subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
