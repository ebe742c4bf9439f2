// Package httpapi exposes the game engine over HTTP, SSE and websockets.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"conclave.org/internal/engine"
	"conclave.org/internal/game"
	"conclave.org/internal/obs"
	"conclave.org/internal/store"
)

const serviceName = "conclave-api"

// ReadyProbe reports whether the backing store answers.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP surface. Zero values fall back to defaults.
type Options struct {
	Version      string
	TokenTTL     time.Duration
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
	CORSOrigins  []string
}

type API struct {
	mux     *http.ServeMux
	engine  *engine.Engine
	ready   ReadyProbe
	version string

	tokenTTL    time.Duration
	rateBurst   int
	ratePerSec  int
	maxBody     int64
	corsOrigins []string
}

func New(eng *engine.Engine, ready ReadyProbe, opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		engine:      eng,
		ready:       ready,
		version:     opts.Version,
		tokenTTL:    opts.TokenTTL,
		rateBurst:   opts.RateBurst,
		ratePerSec:  opts.RatePerSec,
		maxBody:     opts.MaxBodyBytes,
		corsOrigins: opts.CORSOrigins,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 24 * time.Hour
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	if a.maxBody <= 0 {
		a.maxBody = 64 << 10
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/games", a.createGame)
	a.mux.HandleFunc("POST /v1/games/{code}/players", a.joinGame)

	a.mux.Handle("GET /v1/games/{code}", a.withPlayer(a.getState))
	a.mux.Handle("POST /v1/games/{code}/advance", a.withPlayer(a.advance))
	a.mux.Handle("POST /v1/games/{code}/pause", a.withPlayer(a.pause))
	a.mux.Handle("POST /v1/games/{code}/finish", a.withPlayer(a.finish))
	a.mux.Handle("POST /v1/games/{code}/abilities", a.withPlayer(a.execute))
	a.mux.Handle("POST /v1/games/{code}/votes", a.withPlayer(a.vote))
	a.mux.Handle("GET /v1/games/{code}/elections/{role}/candidates", a.withPlayer(a.candidates))
	a.mux.Handle("POST /v1/games/{code}/guesses", a.withPlayer(a.guesses))
	a.mux.Handle("POST /v1/games/{code}/treasury", a.withPlayer(a.treasury))
	a.mux.Handle("GET /v1/games/{code}/rank", a.withPlayer(a.rank))
	a.mux.Handle("GET /v1/games/{code}/stream", a.withPlayer(a.Stream))
	a.mux.Handle("GET /v1/games/{code}/ws", a.withPlayer(a.WebSocket))

	return a
}

// Handler wraps the mux in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorBody(w, r, code, map[string]any{"error": msg})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, code int, payload map[string]any) {
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// statusFor maps validation codes onto HTTP statuses.
func statusFor(c game.Code) int {
	switch c {
	case game.CodeInvalidInput, game.CodeInvalidTarget, game.CodeInvalidActionForRole:
		return http.StatusBadRequest
	case game.CodeNotHost:
		return http.StatusForbidden
	case game.CodeGameNotFound, game.CodePlayerNotFound:
		return http.StatusNotFound
	case game.CodeDuplicateVote, game.CodeAlreadyDone, game.CodeAlreadyActed:
		return http.StatusConflict
	case game.CodeWrongPhase, game.CodeActorIncapacitated, game.CodeTargetProtected,
		game.CodeInsufficientPoints, game.CodeInvalidTransition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// handleEngineError writes err. Validation failures carry their code; anything
// else came from the store and may be retried.
func handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var ge *game.Error
	switch {
	case errors.As(err, &ge):
		body := map[string]any{"error": ge.Message, "code": ge.Code}
		if len(ge.Metadata) > 0 {
			body["metadata"] = ge.Metadata
		}
		writeErrorBody(w, r, statusFor(ge.Code), body)
	case errors.Is(err, engine.ErrStillWaiting):
		writeErrorBody(w, r, http.StatusAccepted, map[string]any{"status": "waiting", "error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		obs.Error("request_failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()), "path": r.URL.Path, "error": err,
		})
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, "temporarily unavailable")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func pathCode(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("code")))
}
