package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"conclave.org/internal/game"
	"conclave.org/internal/store"
)

type tx struct {
	ctx context.Context
	tx  *sqlx.Tx
}

func (t *tx) exec(query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(t.ctx, t.tx.Rebind(query), args...)
	return res, mapErr(err)
}

func (t *tx) get(dest any, query string, args ...any) error {
	return mapErr(t.tx.GetContext(t.ctx, dest, t.tx.Rebind(query), args...))
}

func (t *tx) selectAll(dest any, query string, args ...any) error {
	return mapErr(t.tx.SelectContext(t.ctx, dest, t.tx.Rebind(query), args...))
}

func (t *tx) exists(query string, args ...any) (bool, error) {
	var one int
	err := t.get(&one, query, args...)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

const gameColumns = `code, phase, phase_seq, day, host_player_id, secretary_player_id, treasurer_player_id,
	group_points, daily_cap, tutorial, include_outreach, last_phase_change_at, created_at`

func (t *tx) CreateGame(g game.Game) error {
	_, err := t.exec(`insert into games(`+gameColumns+`) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Code, g.Phase, g.PhaseSeq, g.Day, g.HostPlayerID, g.SecretaryPlayerID, g.TreasurerPlayerID,
		g.GroupPoints, g.DailyCap, g.Tutorial, g.IncludeOutreach, g.LastPhaseChangeAt, g.CreatedAt)
	return err
}

func (t *tx) Game(code string) (game.Game, error) {
	var g game.Game
	err := t.get(&g, `select `+gameColumns+` from games where code = ?`, code)
	return g, err
}

func (t *tx) UpdateGame(g game.Game, expectedSeq int64) error {
	res, err := t.exec(`
		update games set phase = ?, phase_seq = ?, day = ?, host_player_id = ?, secretary_player_id = ?,
			treasurer_player_id = ?, daily_cap = ?, tutorial = ?, include_outreach = ?, last_phase_change_at = ?
		where code = ? and phase_seq = ?`,
		g.Phase, g.PhaseSeq, g.Day, g.HostPlayerID, g.SecretaryPlayerID,
		g.TreasurerPlayerID, g.DailyCap, g.Tutorial, g.IncludeOutreach, g.LastPhaseChangeAt,
		g.Code, expectedSeq)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	ok, err := t.exists(`select 1 from games where code = ?`, g.Code)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (t *tx) AddGroupPoints(code string, delta int64) (int64, error) {
	var bal int64
	err := t.get(&bal, `update games set group_points = group_points + ?
		where code = ? and group_points + ? >= 0 returning group_points`, delta, code, delta)
	if !errors.Is(err, store.ErrNotFound) {
		return bal, err
	}
	ok, err := t.exists(`select 1 from games where code = ?`, code)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, store.ErrNotFound
	}
	return 0, store.ErrNegativeBalance
}

const playerColumns = `id, game_code, name, status, current_role, original_role, points, last_mini_game_rank,
	acted_today, effective_identity_id, join_seq, joined_at`

func (t *tx) InsertPlayer(p game.Player) error {
	_, err := t.exec(`insert into players(`+playerColumns+`) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GameCode, p.Name, p.Status, p.CurrentRole, p.OriginalRole, p.Points, p.LastMiniGameRank,
		p.ActedToday, p.EffectiveIdentityID, p.JoinSeq, p.JoinedAt)
	return err
}

func (t *tx) Player(code, id string) (game.Player, error) {
	var p game.Player
	err := t.get(&p, `select `+playerColumns+` from players where game_code = ? and id = ?`, code, id)
	return p, err
}

func (t *tx) Players(code string) ([]game.Player, error) {
	var ps []game.Player
	err := t.selectAll(&ps, `select `+playerColumns+` from players where game_code = ? order by join_seq`, code)
	return ps, err
}

func (t *tx) UpdatePlayer(p game.Player) error {
	res, err := t.exec(`
		update players set name = ?, status = ?, current_role = ?, original_role = ?, last_mini_game_rank = ?,
			acted_today = ?, effective_identity_id = ?, join_seq = ?
		where game_code = ? and id = ?`,
		p.Name, p.Status, p.CurrentRole, p.OriginalRole, p.LastMiniGameRank,
		p.ActedToday, p.EffectiveIdentityID, p.JoinSeq, p.GameCode, p.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) AddPoints(code, playerID string, delta int64) (int64, error) {
	var bal int64
	err := t.get(&bal, `update players set points = points + ?
		where game_code = ? and id = ? and points + ? >= 0 returning points`, delta, code, playerID, delta)
	if !errors.Is(err, store.ErrNotFound) {
		return bal, err
	}
	ok, err := t.exists(`select 1 from players where game_code = ? and id = ?`, code, playerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, store.ErrNotFound
	}
	return 0, store.ErrNegativeBalance
}

const actionColumns = `id, game_code, day, actor_id, role_name, action_type, target_id, secondary_target_id,
	target_tier, points_spent, successful, details, created_at`

func (t *tx) InsertAction(a game.PlayerAction) error {
	_, err := t.exec(`insert into player_actions(`+actionColumns+`) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.GameCode, a.Day, a.ActorID, a.RoleName, a.ActionType, a.TargetID, a.SecondaryTargetID,
		a.TargetTier, a.PointsSpent, a.Successful, a.Details, a.CreatedAt)
	return err
}

func (t *tx) Actions(code string, day int) ([]game.PlayerAction, error) {
	var out []game.PlayerAction
	err := t.selectAll(&out, `select `+actionColumns+` from player_actions where game_code = ? and day = ? order by created_at, id`, code, day)
	return out, err
}

func (t *tx) InsertEffect(e game.ActiveEffect) error {
	_, err := t.exec(`insert into active_effects(id, game_code, target_id, source_player_id, source_role, kind, applied_day, expires_at_day)
		values (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GameCode, e.TargetID, e.SourcePlayerID, e.SourceRole, e.Kind, e.AppliedDay, e.ExpiresAtDay)
	return err
}

func (t *tx) Effects(f store.EffectFilter) ([]game.ActiveEffect, error) {
	where, args := effectWhere(f, "target_id")
	var out []game.ActiveEffect
	err := t.selectAll(&out, `select id, game_code, target_id, source_player_id, source_role, kind, applied_day, expires_at_day
		from active_effects`+where+` order by applied_day, id`, args...)
	return out, err
}

func (t *tx) InsertProtection(p game.Protection) error {
	_, err := t.exec(`insert into protections(id, game_code, protector_id, protected_id, kind, applied_day, expires_at_day)
		values (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GameCode, p.ProtectorID, p.ProtectedID, p.Kind, p.AppliedDay, p.ExpiresAtDay)
	return err
}

func (t *tx) Protections(f store.EffectFilter) ([]game.Protection, error) {
	where, args := effectWhere(f, "protected_id")
	var out []game.Protection
	err := t.selectAll(&out, `select id, game_code, protector_id, protected_id, kind, applied_day, expires_at_day
		from protections`+where+` order by applied_day, id`, args...)
	return out, err
}

func effectWhere(f store.EffectFilter, targetColumn string) (string, []any) {
	var conds []string
	var args []any
	if f.GameCode != "" {
		conds = append(conds, "game_code = ?")
		args = append(args, f.GameCode)
	}
	if f.TargetID != "" {
		conds = append(conds, targetColumn+" = ?")
		args = append(args, f.TargetID)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.ActiveOn > 0 {
		conds = append(conds, "expires_at_day >= ?")
		args = append(args, f.ActiveOn)
	}
	return where(conds), args
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " where " + strings.Join(conds, " and ")
}

const voteColumns = `seq, id, game_code, day, phase, voter_id, candidate_id, election_role, double_vote, created_at`

func (t *tx) InsertVote(v game.Vote) (game.Vote, error) {
	err := t.get(&v.Seq, `insert into votes(id, game_code, day, phase, voter_id, candidate_id, election_role, double_vote, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?) returning seq`,
		v.ID, v.GameCode, v.Day, v.Phase, v.VoterID, v.CandidateID, v.ElectionRole, v.DoubleVote, v.CreatedAt)
	if err != nil {
		return game.Vote{}, err
	}
	return v, nil
}

func (t *tx) Votes(f store.VoteFilter) ([]game.Vote, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.GameCode != "" {
		add("game_code = ?", f.GameCode)
	}
	if f.Day != 0 {
		add("day = ?", f.Day)
	}
	if f.Phase != "" {
		add("phase = ?", f.Phase)
	}
	if f.ElectionRole != "" {
		add("election_role = ?", f.ElectionRole)
	}
	if f.CandidateID != "" {
		add("candidate_id = ?", f.CandidateID)
	}
	var out []game.Vote
	err := t.selectAll(&out, `select `+voteColumns+` from votes`+where(conds)+` order by seq`, args...)
	return out, err
}

func (t *tx) InsertGuess(g game.Guess) error {
	_, err := t.exec(`insert into guesses(id, game_code, day, guesser_id, target_id, guessed_role, correct, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.GameCode, g.Day, g.GuesserID, g.TargetID, g.GuessedRole, g.Correct, g.CreatedAt)
	return err
}

func (t *tx) Guesses(code string, day int) ([]game.Guess, error) {
	var out []game.Guess
	err := t.selectAll(&out, `select id, game_code, day, guesser_id, target_id, guessed_role, correct, created_at
		from guesses where game_code = ? and day = ? order by created_at, id`, code, day)
	return out, err
}

func (t *tx) Claim(code, kind, key string) error {
	return t.insertOnce(`insert into claims(game_code, kind, claim_key) values (?, ?, ?)
		on conflict (game_code, kind, claim_key) do nothing`, code, kind, key)
}

// insertOnce runs an "on conflict do nothing" insert and reports a skipped row
// as ErrDuplicate. A raised unique violation would abort a Postgres transaction.
func (t *tx) insertOnce(query string, args ...any) error {
	res, err := t.exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrDuplicate
	}
	return nil
}

func (t *tx) InsertInheritance(c game.RoleInheritanceChoice) error {
	_, err := t.exec(`insert into role_inheritances(id, game_code, day, player_id, successor_id, created_at)
		values (?, ?, ?, ?, ?, ?)`, c.ID, c.GameCode, c.Day, c.PlayerID, c.SuccessorID, c.CreatedAt)
	return err
}

func (t *tx) Inheritances(code, playerID string) ([]game.RoleInheritanceChoice, error) {
	var out []game.RoleInheritanceChoice
	err := t.selectAll(&out, `select id, game_code, day, player_id, successor_id, created_at
		from role_inheritances where game_code = ? and player_id = ? order by created_at, id`, code, playerID)
	return out, err
}

func (t *tx) InsertConversion(c game.RoleConversion) error {
	_, err := t.exec(`insert into role_conversions(id, game_code, day, converter_id, target_id, from_role, to_role, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.GameCode, c.Day, c.ConverterID, c.TargetID, c.FromRole, c.ToRole, c.CreatedAt)
	return err
}

func (t *tx) InsertVengeanceGuess(v game.VengeanceGuess) error {
	_, err := t.exec(`insert into vengeance_guesses(id, game_code, day, guesser_id, imprisoned_id, guessed_voter_id, correct, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.GameCode, v.Day, v.GuesserID, v.ImprisonedID, v.GuessedVoterID, v.Correct, v.CreatedAt)
	return err
}

func (t *tx) InsertAnnouncement(a game.SecretaryVoteAnnouncement) error {
	return t.insertOnce(`insert into vote_announcements(id, game_code, day, secretary_id, candidate_id, votes, tally, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?)
		on conflict (game_code, day) do nothing`,
		a.ID, a.GameCode, a.Day, a.SecretaryID, a.CandidateID, a.Votes, a.Tally, a.CreatedAt)
}

func (t *tx) Announcement(code string, day int) (game.SecretaryVoteAnnouncement, error) {
	var a game.SecretaryVoteAnnouncement
	err := t.get(&a, `select id, game_code, day, secretary_id, candidate_id, votes, tally, created_at
		from vote_announcements where game_code = ? and day = ?`, code, day)
	return a, err
}

func (t *tx) InsertTreasuryTransaction(tr game.TreasuryTransaction) error {
	_, err := t.exec(`insert into treasury_transactions(id, game_code, day, treasurer_id, recipient_id, amount, created_at)
		values (?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.GameCode, tr.Day, tr.TreasurerID, tr.RecipientID, tr.Amount, tr.CreatedAt)
	return err
}

func (t *tx) TreasuryTransactions(code string) ([]game.TreasuryTransaction, error) {
	var out []game.TreasuryTransaction
	err := t.selectAll(&out, `select id, game_code, day, treasurer_id, recipient_id, amount, created_at
		from treasury_transactions where game_code = ? order by created_at, id`, code)
	return out, err
}
