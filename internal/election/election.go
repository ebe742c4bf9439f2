// Package election records ballots and decides officer and prison votes.
package election

import (
	"errors"
	"sort"
	"time"

	"conclave.org/internal/effects"
	"conclave.org/internal/game"
	"conclave.org/internal/ids"
	"conclave.org/internal/store"
)

// OfficerPoolSize is the number of best-ranked players eligible for office.
const OfficerPoolSize = 3

// RoleForPhase maps a voting phase to the election it decides.
func RoleForPhase(p game.Phase) (game.ElectionRole, bool) {
	switch p {
	case game.PhaseElectionsChairperson:
		return game.ElectionChairperson, true
	case game.PhaseElectionsSecretary:
		return game.ElectionSecretary, true
	case game.PhaseConsultationVoting:
		return game.ElectionPrison, true
	default:
		return "", false
	}
}

// OfficerPool returns the alive players with the best minigame ranks, best first.
// Ties keep join order.
func OfficerPool(players []game.Player) []game.Player {
	var ranked []game.Player
	for _, p := range players {
		if p.Alive() && p.LastMiniGameRank != nil {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].LastMiniGameRank < *ranked[j].LastMiniGameRank
	})
	if len(ranked) > OfficerPoolSize {
		ranked = ranked[:OfficerPoolSize]
	}
	return ranked
}

// Candidates returns the pool for role. Officer pools drop the ids in exclude.
func Candidates(role game.ElectionRole, players []game.Player, exclude ...string) []game.Player {
	if role == game.ElectionPrison {
		var alive []game.Player
		for _, p := range players {
			if p.Alive() {
				alive = append(alive, p)
			}
		}
		return alive
	}
	var out []game.Player
	for _, p := range OfficerPool(players) {
		if !contains(exclude, p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// Result of counting one election.
type Result struct {
	Winner  string         `json:"winner"`
	Counts  map[string]int `json:"counts"`
	Max     int            `json:"max"`
	Ballots int            `json:"ballots"`
}

// Tally counts weighted votes given in insertion order. On a tie the winner is
// the candidate whose running count reached the final maximum first.
func Tally(votes []game.Vote) (Result, bool) {
	if len(votes) == 0 {
		return Result{Counts: map[string]int{}}, false
	}
	ordered := append([]game.Vote(nil), votes...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	res := Result{Counts: make(map[string]int)}
	for _, v := range ordered {
		res.Counts[v.CandidateID] += v.Weight()
		res.Ballots += v.Weight()
	}
	for _, c := range res.Counts {
		if c > res.Max {
			res.Max = c
		}
	}
	running := make(map[string]int, len(res.Counts))
	for _, v := range ordered {
		running[v.CandidateID] += v.Weight()
		if running[v.CandidateID] >= res.Max {
			res.Winner = v.CandidateID
			break
		}
	}
	return res, true
}

// RecordVote stores voterID's ballot for the election of the current phase.
func RecordVote(tx store.Tx, g game.Game, voterID, candidateID string, now time.Time) (game.Vote, error) {
	role, ok := RoleForPhase(g.Phase)
	if !ok {
		return game.Vote{}, game.ErrWrongPhase
	}
	players, err := tx.Players(g.Code)
	if err != nil {
		return game.Vote{}, err
	}
	voter, ok := find(players, voterID)
	if !ok {
		return game.Vote{}, game.ErrPlayerNotFound
	}
	if !voter.Alive() {
		return game.Vote{}, game.ErrActorIncapacitated
	}

	eligible, err := pool(tx, g, role, players)
	if err != nil {
		return game.Vote{}, err
	}
	if _, ok := find(eligible, candidateID); !ok {
		return game.Vote{}, game.WithMetadata(game.CodeInvalidTarget, "candidate is not eligible",
			map[string]string{"candidate": candidateID, "election": string(role)})
	}

	double, err := effects.New(tx, g.Code).IsActive(voterID, game.KindDoubleVote, g.Day)
	if err != nil {
		return game.Vote{}, err
	}
	v, err := tx.InsertVote(game.Vote{
		ID:           ids.New(),
		GameCode:     g.Code,
		Day:          g.Day,
		Phase:        g.Phase,
		VoterID:      voterID,
		CandidateID:  candidateID,
		ElectionRole: role,
		DoubleVote:   double,
		CreatedAt:    now,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return game.Vote{}, game.ErrDuplicateVote
	}
	return v, err
}

// Officers decides chairperson, secretary and treasurer for the current day.
// Rounds without ballots fall back to the best-ranked remaining candidate.
func Officers(tx store.Tx, g game.Game) (chair, secretary, treasurer string, err error) {
	players, err := tx.Players(g.Code)
	if err != nil {
		return "", "", "", err
	}
	pool := OfficerPool(players)
	if len(pool) == 0 {
		return "", "", "", nil
	}
	if chair, err = chairLeader(tx, g, players); err != nil {
		return "", "", "", err
	}

	rest := Candidates(game.ElectionSecretary, players, chair)
	votes, err := tx.Votes(store.VoteFilter{GameCode: g.Code, Day: g.Day, ElectionRole: game.ElectionSecretary})
	if err != nil {
		return "", "", "", err
	}
	secretary = leader(votes, rest)

	for _, p := range pool {
		if p.ID != chair && p.ID != secretary {
			treasurer = p.ID
			break
		}
	}
	return chair, secretary, treasurer, nil
}

// Announce tallies the day's prison vote and records the secretary's announcement.
func Announce(tx store.Tx, g game.Game, now time.Time) (game.SecretaryVoteAnnouncement, error) {
	votes, err := tx.Votes(store.VoteFilter{GameCode: g.Code, Day: g.Day, ElectionRole: game.ElectionPrison})
	if err != nil {
		return game.SecretaryVoteAnnouncement{}, err
	}
	res, _ := Tally(votes)
	tally := game.Details{}
	for id, c := range res.Counts {
		tally[id] = c
	}
	a := game.SecretaryVoteAnnouncement{
		ID:          ids.New(),
		GameCode:    g.Code,
		Day:         g.Day,
		SecretaryID: g.SecretaryPlayerID,
		CandidateID: res.Winner,
		Votes:       res.Max,
		Tally:       tally,
		CreatedAt:   now,
	}
	if err := tx.InsertAnnouncement(a); err != nil {
		return game.SecretaryVoteAnnouncement{}, err
	}
	return a, nil
}

// Pool returns the candidates currently eligible in role's election. The
// secretary pool leaves out whoever leads the chairperson vote.
func Pool(tx store.Tx, g game.Game, role game.ElectionRole) ([]game.Player, error) {
	players, err := tx.Players(g.Code)
	if err != nil {
		return nil, err
	}
	return pool(tx, g, role, players)
}

func pool(tx store.Tx, g game.Game, role game.ElectionRole, players []game.Player) ([]game.Player, error) {
	var exclude []string
	if role == game.ElectionSecretary {
		chair, err := chairLeader(tx, g, players)
		if err != nil {
			return nil, err
		}
		exclude = append(exclude, chair)
	}
	return Candidates(role, players, exclude...), nil
}

func chairLeader(tx store.Tx, g game.Game, players []game.Player) (string, error) {
	votes, err := tx.Votes(store.VoteFilter{GameCode: g.Code, Day: g.Day, ElectionRole: game.ElectionChairperson})
	if err != nil {
		return "", err
	}
	return leader(votes, OfficerPool(players)), nil
}

// leader tallies votes cast for members of pool; without any it picks pool[0].
func leader(votes []game.Vote, pool []game.Player) string {
	if len(pool) == 0 {
		return ""
	}
	var eligible []game.Vote
	for _, v := range votes {
		if _, ok := find(pool, v.CandidateID); ok {
			eligible = append(eligible, v)
		}
	}
	if res, ok := Tally(eligible); ok {
		return res.Winner
	}
	return pool[0].ID
}

func find(players []game.Player, id string) (game.Player, bool) {
	for _, p := range players {
		if p.ID == id {
			return p, true
		}
	}
	return game.Player{}, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
