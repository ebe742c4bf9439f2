package httpapi

import (
	"context"
	"net/http"
	"strings"

	"conclave.org/internal/ability"
	"conclave.org/internal/audit"
	"conclave.org/internal/auth"
	"conclave.org/internal/engine"
	"conclave.org/internal/game"
	"conclave.org/internal/minigame"
	"conclave.org/internal/obs"
	"conclave.org/internal/phase"
)

type seatResponse struct {
	Game   game.Game   `json:"game"`
	Player game.Player `json:"player"`
	Token  string      `json:"token"`
}

func (a *API) seat(w http.ResponseWriter, r *http.Request, s engine.Seat, event string) {
	token, err := auth.GenerateToken(s.Game.Code, s.Player.ID, a.tokenTTL)
	if err != nil {
		obs.Error("token_issue_failed", map[string]any{"game_code": s.Game.Code, "error": err})
		writeError(w, r, http.StatusInternalServerError, "could not issue token")
		return
	}
	ctx := auth.ContextWithPlayer(r.Context(), s.Game.Code, s.Player.ID)
	_ = audit.LogEvent(ctx, event, map[string]any{"name": s.Player.Name})
	writeJSON(w, http.StatusCreated, seatResponse{Game: s.Game, Player: s.Player, Token: token})
}

func (a *API) createGame(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s, err := a.engine.CreateGame(r.Context(), req)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	a.seat(w, r, s, "game.created")
}

func (a *API) joinGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s, err := a.engine.Join(r.Context(), pathCode(r), req.Name)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	a.seat(w, r, s, "player.joined")
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	v, err := a.engine.State(r.Context(), pathCode(r), caller(r))
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type hostMove func(ctx context.Context, code, actorID string) (phase.Transition, error)

func (a *API) advance(w http.ResponseWriter, r *http.Request) {
	a.move(w, r, "phase.advanced", a.engine.Advance)
}

func (a *API) pause(w http.ResponseWriter, r *http.Request) {
	a.move(w, r, "game.paused", a.engine.Pause)
}

func (a *API) finish(w http.ResponseWriter, r *http.Request) {
	a.move(w, r, "game.finished", a.engine.Finish)
}

func (a *API) move(w http.ResponseWriter, r *http.Request, event string, fn hostMove) {
	tr, err := fn(r.Context(), pathCode(r), caller(r))
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"from": tr.From, "to": tr.To, "day": tr.Game.Day,
	})
	writeJSON(w, http.StatusOK, tr)
}

func (a *API) execute(w http.ResponseWriter, r *http.Request) {
	var inv ability.Invocation
	if err := decodeJSON(r, &inv); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.engine.Execute(r.Context(), pathCode(r), caller(r), inv)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "ability.executed", map[string]any{
		"action_type": inv.ActionType,
		"target_id":   inv.TargetID,
		"action_id":   out.Action.ID,
	})
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) vote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.engine.Vote(r.Context(), pathCode(r), caller(r), req.CandidateID)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "vote.cast", map[string]any{
		"election": v.ElectionRole, "day": v.Day,
	})
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) candidates(w http.ResponseWriter, r *http.Request) {
	role := game.ElectionRole(strings.ToLower(r.PathValue("role")))
	players, err := a.engine.Candidates(r.Context(), pathCode(r), role)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"election": role, "candidates": players})
}

func (a *API) guesses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Guesses []minigame.Submission `json:"guesses"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.engine.SubmitGuesses(r.Context(), pathCode(r), caller(r), req.Guesses)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"guesses": out})
}

func (a *API) treasury(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientID string `json:"recipient_id"`
		Amount      int64  `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	txn, err := a.engine.TreasuryGrant(r.Context(), pathCode(r), caller(r), req.RecipientID, req.Amount)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "treasury.granted", map[string]any{
		"recipient_id": req.RecipientID, "amount": req.Amount,
	})
	writeJSON(w, http.StatusCreated, txn)
}

// rank blocks until the caller's minigame rank is published, or answers 202.
func (a *API) rank(w http.ResponseWriter, r *http.Request) {
	n, err := a.engine.AwaitRank(r.Context(), pathCode(r), caller(r))
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rank": n})
}
