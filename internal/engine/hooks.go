package engine

import (
	"context"
	"errors"
	"strconv"

	"conclave.org/internal/assign"
	"conclave.org/internal/effects"
	"conclave.org/internal/election"
	"conclave.org/internal/game"
	"conclave.org/internal/minigame"
	"conclave.org/internal/narrator"
	"conclave.org/internal/obs"
	"conclave.org/internal/phase"
	"conclave.org/internal/store"
	"conclave.org/internal/stream"
)

// Claim kinds.
const (
	claimAssign   = "assign"
	claimMinigame = "minigame"
	claimTreasury = "treasury"
)

func (e *Engine) registerHooks() {
	e.machine.OnEnter(game.PhaseRoleReveal, e.assignRoles)
	e.machine.OnEnter(game.PhaseReflectionMiniGame, e.rollover)
	e.machine.OnEnter(game.PhaseReflectionMiniGameResult, e.scoreMinigame)
	e.machine.OnEnter(game.PhaseElectionsResult, e.commitOfficers)
	e.machine.OnEnter(game.PhaseConsultationVotingCount, e.countPrisonVote)
	e.machine.OnEnter(game.PhaseConsultationVotingResults, e.imprison)
}

// claim takes the one-shot token for kind/key. ok is false when another
// transition already did the work.
func claim(tx store.Tx, g *game.Game, kind, key string) (bool, error) {
	err := tx.Claim(g.Code, kind, key)
	if errors.Is(err, store.ErrDuplicate) {
		obs.ClaimConflict(kind)
		return false, nil
	}
	return err == nil, err
}

func (e *Engine) assignRoles(tx store.Tx, g *game.Game) error {
	ok, err := claim(tx, g, claimAssign, "roles")
	if err != nil || !ok {
		return err
	}
	players, err := tx.Players(g.Code)
	if err != nil {
		return err
	}
	dealt, err := assign.Assign(players, e.catalog, e.shuffle())
	if err != nil {
		return err
	}
	for _, p := range dealt {
		if err := tx.UpdatePlayer(p); err != nil {
			return err
		}
	}
	return nil
}

// rollover starts a new day: abilities recharge, expired hospital stays end and
// the game finishes once a side has nobody left.
func (e *Engine) rollover(tx store.Tx, g *game.Game) error {
	players, err := tx.Players(g.Code)
	if err != nil {
		return err
	}
	fx := effects.New(tx, g.Code)
	for _, p := range players {
		changed := p.ActedToday
		p.ActedToday = false
		if p.Status == game.StatusHospitalized {
			still, err := fx.IsActive(p.ID, game.KindHospitalized, g.Day)
			if err != nil {
				return err
			}
			if !still {
				p.Status = game.StatusAlive
				changed = true
			}
		}
		if changed {
			if err := tx.UpdatePlayer(p); err != nil {
				return err
			}
		}
	}
	if g.Day > 1 {
		if _, over := e.winner(players); over {
			g.Phase = game.PhaseFinished
		}
	}
	return nil
}

// winner reports the surviving faction once the other one is gone.
func (e *Engine) winner(players []game.Player) (game.Faction, bool) {
	counts := map[game.Faction]int{}
	for _, p := range players {
		if p.Status == game.StatusDead {
			continue
		}
		counts[e.catalog.Faction(p.CurrentRole)]++
	}
	vice, virtue := counts[game.FactionVice], counts[game.FactionVirtue]
	switch {
	case vice == 0 && virtue == 0:
		return game.FactionNeutral, true
	case vice == 0:
		return game.FactionVirtue, true
	case virtue == 0:
		return game.FactionVice, true
	}
	return "", false
}

func (e *Engine) scoreMinigame(tx store.Tx, g *game.Game) error {
	ok, err := claim(tx, g, claimMinigame, strconv.Itoa(g.Day))
	if err != nil || !ok {
		return err
	}
	results, err := minigame.Apply(tx, *g)
	if err != nil {
		return err
	}
	for _, r := range results {
		obs.PointsMoved("credit", r.Points)
	}
	return nil
}

func (e *Engine) commitOfficers(tx store.Tx, g *game.Game) error {
	chair, secretary, treasurer, err := election.Officers(tx, *g)
	if err != nil {
		return err
	}
	if chair != "" {
		g.HostPlayerID = chair
	}
	g.SecretaryPlayerID = secretary
	g.TreasurerPlayerID = treasurer
	return nil
}

func (e *Engine) countPrisonVote(tx store.Tx, g *game.Game) error {
	_, err := election.Announce(tx, *g, e.now())
	if errors.Is(err, store.ErrDuplicate) {
		obs.ClaimConflict("announcement")
		return nil
	}
	return err
}

func (e *Engine) imprison(tx store.Tx, g *game.Game) error {
	a, err := tx.Announcement(g.Code, g.Day)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil || a.CandidateID == "" {
		return err
	}
	p, err := tx.Player(g.Code, a.CandidateID)
	if err != nil {
		return err
	}
	if !p.Alive() {
		return nil
	}
	p.Status = game.StatusImprisoned
	return tx.UpdatePlayer(p)
}

func candidates(tx store.Tx, g game.Game, role game.ElectionRole) ([]game.Player, error) {
	switch role {
	case game.ElectionChairperson, game.ElectionSecretary, game.ElectionTreasurer, game.ElectionPrison:
	default:
		return nil, game.WithMetadata(game.CodeInvalidInput, "unknown election", map[string]string{"election": string(role)})
	}
	return election.Pool(tx, g, role)
}

// recap describes what a transition did to the table, by player name.
func recap(tr phase.Transition, before, after []game.Player) narrator.Recap {
	r := narrator.Recap{GameCode: tr.Game.Code, Day: tr.Game.Day, Phase: string(tr.To)}
	prev := make(map[string]game.Player, len(before))
	for _, p := range before {
		prev[p.ID] = p
	}
	for _, p := range after {
		old, ok := prev[p.ID]
		if !ok || old.Status == p.Status {
			continue
		}
		switch p.Status {
		case game.StatusDead:
			r.Events = append(r.Events, p.Name+" was found dead")
		case game.StatusImprisoned:
			r.Events = append(r.Events, p.Name+" was sent to prison by the council")
		case game.StatusAlive:
			if old.Status == game.StatusHospitalized {
				r.Events = append(r.Events, p.Name+" left the hospital")
			}
		}
	}
	if tr.To == game.PhaseElectionsResult {
		for _, p := range after {
			if p.ID == tr.Game.HostPlayerID {
				r.Events = append(r.Events, p.Name+" was elected chairperson")
			}
		}
	}
	if tr.To == game.PhaseFinished && tr.From != game.PhaseFinished {
		r.Events = append(r.Events, "the game is over")
	}
	return r
}

// narrate tells r on the feed in the background. It does nothing without a narrator.
func (e *Engine) narrate(ctx context.Context, r narrator.Recap) {
	if e.narrator == nil || r.Empty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), narrationTimeout)
	go func() {
		defer cancel()
		text, err := e.narrator.Narrate(ctx, r, nil)
		if err != nil {
			obs.Warn("narration_failed", map[string]any{"game_code": r.GameCode, "error": err})
			return
		}
		if text == "" {
			return
		}
		e.feed.Publish(stream.Event{Type: stream.TypeNarration, GameCode: r.GameCode, Text: text})
	}()
}
