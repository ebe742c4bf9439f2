package stream

import (
	"context"
	"testing"
	"time"

	"conclave.org/internal/game"
)

func TestPublishFiltersByGame(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := s.Subscribe(ctx, "AAA111")
	all := s.Subscribe(ctx, "")

	s.Publish(GameChanged(game.Game{Code: "BBB222", Phase: game.PhaseLobby}))
	s.Publish(PlayerChanged(game.Player{ID: "p1", GameCode: "AAA111"}))

	select {
	case evt := <-mine:
		if evt.Type != TypePlayer || evt.Player.ID != "p1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected player event")
	}
	select {
	case evt := <-mine:
		t.Fatalf("foreign game leaked: %+v", evt)
	default:
	}
	for i := 0; i < 2; i++ {
		select {
		case <-all:
		case <-time.After(time.Second):
			t.Fatal("wildcard subscriber missed an event")
		}
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, "AAA111")
	for i := 0; i < 100; i++ {
		s.Publish(Event{Type: TypeNarration, GameCode: "AAA111", Text: "x"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer should be full, has %d", len(ch))
	}
	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if s.Subscribers() != 0 {
					t.Fatalf("subscriber not removed")
				}
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}
