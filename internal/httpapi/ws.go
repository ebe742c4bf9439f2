package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"conclave.org/internal/obs"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 4 << 10
)

// wsRequest is a client message. Only "state" is understood; everything else
// goes through the REST endpoints.
type wsRequest struct {
	Action string `json:"action"`
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla allows one concurrent writer
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (a *API) upgrader() *websocket.Upgrader {
	allowed := make(map[string]bool, len(a.corsOrigins))
	for _, o := range a.corsOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 || allowed["*"] {
				return true
			}
			return allowed[origin]
		},
	}
}

// WebSocket sends the caller's view of the game, then every feed event.
func (a *API) WebSocket(w http.ResponseWriter, r *http.Request) {
	code, playerID := pathCode(r), caller(r)
	view, err := a.engine.State(r.Context(), code, playerID)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}

	conn, err := a.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		obs.Warn("ws_upgrade_failed", map[string]any{"game_code": code, "error": err})
		return
	}
	c := &wsConn{conn: conn}
	defer conn.Close()

	// r.Context is not cancelled after hijack; the reader owns the lifetime.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := a.engine.Feed().Subscribe(ctx, code)

	if err := c.writeJSON(map[string]any{"type": "state", "state": view}); err != nil {
		return
	}
	obs.Info("ws_connected", map[string]any{"game_code": code, "player_id": playerID})

	go func() {
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			switch req.Action {
			case "state":
				v, err := a.engine.State(ctx, code, playerID)
				if err != nil {
					_ = c.writeJSON(map[string]any{"type": "error", "error": err.Error()})
					continue
				}
				_ = c.writeJSON(map[string]any{"type": "state", "state": v})
			default:
				_ = c.writeJSON(map[string]any{"type": "error", "error": "unknown action"})
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			obs.Info("ws_disconnected", map[string]any{"game_code": code, "player_id": playerID})
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := c.writeJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
