package auth

import (
	"context"
	"strings"
)

// Player identifies the authenticated caller.
type Player struct {
	GameCode string
	PlayerID string
}

type playerContextKey struct{}
type tokenContextKey struct{}

// ContextWithPlayer attaches the authenticated player to the context.
func ContextWithPlayer(ctx context.Context, gameCode, playerID string) context.Context {
	p := Player{GameCode: strings.TrimSpace(gameCode), PlayerID: strings.TrimSpace(playerID)}
	return context.WithValue(ctx, playerContextKey{}, p)
}

// PlayerFromContext extracts the authenticated player from the context.
func PlayerFromContext(ctx context.Context) (Player, bool) {
	if ctx == nil {
		return Player{}, false
	}
	p, ok := ctx.Value(playerContextKey{}).(Player)
	if !ok || p.PlayerID == "" {
		return Player{}, false
	}
	return p, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
