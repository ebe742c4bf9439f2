package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"conclave.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withPlayer requires a player token for the game in the path. Browsers cannot
// set headers on EventSource or WebSocket, so GET requests may pass ?token=.
func (a *API) withPlayer(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil && r.Method == http.MethodGet {
			if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
				token, err = q, nil
			}
		}
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				unauthorized(w, r, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if !strings.EqualFold(claims.GameCode, pathCode(r)) {
			writeError(w, r, http.StatusForbidden, "token is for another game")
			return
		}

		ctx := auth.ContextWithPlayer(r.Context(), strings.ToUpper(claims.GameCode), claims.PlayerID())
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="conclave"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// caller returns the authenticated player id; withPlayer guarantees one.
func caller(r *http.Request) string {
	p, _ := auth.PlayerFromContext(r.Context())
	return p.PlayerID
}
