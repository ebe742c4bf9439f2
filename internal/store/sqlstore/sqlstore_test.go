package sqlstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"conclave.org/internal/game"
	"conclave.org/internal/store"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	s, err := Open(DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	applied, err := s.Migrate(context.Background())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0001_init.up.sql" {
		t.Fatalf("applied = %v", applied)
	}
	return s
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		if err := tx.CreateGame(game.Game{
			Code: "ABCD12", Phase: game.PhaseLobby, HostPlayerID: "p1", GroupPoints: 50, DailyCap: 10,
			LastPhaseChangeAt: t0, CreatedAt: t0,
		}); err != nil {
			return err
		}
		for i, id := range []string{"p1", "p2"} {
			p := game.Player{ID: id, GameCode: "ABCD12", Name: id, Status: game.StatusAlive, Points: 10, JoinSeq: i, JoinedAt: t0}
			if err := tx.InsertPlayer(p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMigrationsPerDriver(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverSQLite} {
		fsys, err := Migrations(driver)
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		if _, err := fsys.Open("0001_init.up.sql"); err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
	}
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := openSQLite(t)
	seed(t, s)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.Tx) error {
		g, err := tx.Game("ABCD12")
		if err != nil {
			return err
		}
		if g.HostPlayerID != "p1" || g.GroupPoints != 50 || !g.LastPhaseChangeAt.Equal(t0) {
			t.Fatalf("unexpected game: %+v", g)
		}
		g.Phase = game.PhaseRoleReveal
		g.PhaseSeq = 1
		if err := tx.UpdateGame(g, 0); err != nil {
			return err
		}

		p, err := tx.Player("ABCD12", "p2")
		if err != nil {
			return err
		}
		rank := 2
		p.CurrentRole = "Justice"
		p.LastMiniGameRank = &rank
		p.ActedToday = true
		if err := tx.UpdatePlayer(p); err != nil {
			return err
		}
		return tx.InsertAction(game.PlayerAction{
			ID: "a1", GameCode: "ABCD12", Day: 1, ActorID: "p2", RoleName: "Justice",
			ActionType: game.EffectKill, TargetID: "p1", Successful: true,
			Details: game.Details{"killed": "p1"}, CreatedAt: t0,
		})
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	err = s.InTx(ctx, func(tx store.Tx) error {
		g, err := tx.Game("ABCD12")
		if err != nil {
			return err
		}
		if g.Phase != game.PhaseRoleReveal || g.PhaseSeq != 1 {
			t.Fatalf("game not updated: %+v", g)
		}
		ps, err := tx.Players("ABCD12")
		if err != nil {
			return err
		}
		if len(ps) != 2 || ps[0].ID != "p1" {
			t.Fatalf("players out of join order: %+v", ps)
		}
		if ps[1].CurrentRole != "Justice" || ps[1].LastMiniGameRank == nil || *ps[1].LastMiniGameRank != 2 || !ps[1].ActedToday {
			t.Fatalf("player not updated: %+v", ps[1])
		}
		if ps[0].LastMiniGameRank != nil {
			t.Fatal("rank should stay null")
		}
		actions, err := tx.Actions("ABCD12", 1)
		if err != nil {
			return err
		}
		if len(actions) != 1 || actions[0].Details["killed"] != "p1" || !actions[0].Successful {
			t.Fatalf("unexpected actions: %+v", actions)
		}
		if _, err := tx.Player("ABCD12", "nobody"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestSQLiteBalances(t *testing.T) {
	s := openSQLite(t)
	seed(t, s)
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		bal, err := tx.AddPoints("ABCD12", "p1", -4)
		if err != nil || bal != 6 {
			t.Fatalf("AddPoints = %d, %v", bal, err)
		}
		if _, err := tx.AddPoints("ABCD12", "p1", -7); !errors.Is(err, store.ErrNegativeBalance) {
			t.Fatalf("expected negative balance, got %v", err)
		}
		if _, err := tx.AddPoints("ABCD12", "ghost", 1); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		pool, err := tx.AddGroupPoints("ABCD12", -20)
		if err != nil || pool != 30 {
			t.Fatalf("AddGroupPoints = %d, %v", pool, err)
		}
		if _, err := tx.AddGroupPoints("ABCD12", -31); !errors.Is(err, store.ErrNegativeBalance) {
			t.Fatalf("expected negative pool, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestSQLiteRollback(t *testing.T) {
	s := openSQLite(t)
	seed(t, s)
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		if _, err := tx.AddPoints("ABCD12", "p1", 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = s.InTx(context.Background(), func(tx store.Tx) error {
		p, err := tx.Player("ABCD12", "p1")
		if err != nil {
			t.Fatalf("player: %v", err)
		}
		if p.Points != 10 {
			t.Fatalf("points = %d, rollback did not happen", p.Points)
		}
		return nil
	})
}

func TestSQLiteOptimisticConcurrency(t *testing.T) {
	s := openSQLite(t)
	seed(t, s)
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		g, err := tx.Game("ABCD12")
		if err != nil {
			return err
		}
		g.PhaseSeq = 5
		if err := tx.UpdateGame(g, 3); !errors.Is(err, store.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		g.Code = "NOPE00"
		if err := tx.UpdateGame(g, 0); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestSQLiteVotesAndClaims(t *testing.T) {
	s := openSQLite(t)
	seed(t, s)
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		mk := func(id, voter, candidate string) game.Vote {
			return game.Vote{
				ID: id, GameCode: "ABCD12", Day: 1, Phase: game.PhaseElectionsChairperson,
				VoterID: voter, CandidateID: candidate, ElectionRole: game.ElectionChairperson, CreatedAt: t0,
			}
		}
		v1, err := tx.InsertVote(mk("v1", "p1", "p2"))
		if err != nil {
			return err
		}
		v2, err := tx.InsertVote(mk("v2", "p2", "p2"))
		if err != nil {
			return err
		}
		if v2.Seq <= v1.Seq {
			t.Fatalf("seq not increasing: %d then %d", v1.Seq, v2.Seq)
		}
		if _, err := tx.InsertVote(mk("v3", "p1", "p1")); !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("expected duplicate, got %v", err)
		}
		votes, err := tx.Votes(store.VoteFilter{GameCode: "ABCD12", ElectionRole: game.ElectionChairperson, CandidateID: "p2"})
		if err != nil {
			return err
		}
		if len(votes) != 2 || votes[0].ID != "v1" {
			t.Fatalf("unexpected votes: %+v", votes)
		}

		if err := tx.Claim("ABCD12", "minigame", "1"); err != nil {
			return err
		}
		if err := tx.Claim("ABCD12", "minigame", "1"); !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("expected duplicate claim, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestSQLiteEffectFilters(t *testing.T) {
	s := openSQLite(t)
	seed(t, s)
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		for _, e := range []game.ActiveEffect{
			{ID: "e1", GameCode: "ABCD12", TargetID: "p2", SourcePlayerID: "p1", Kind: game.KindHospitalized, AppliedDay: 1, ExpiresAtDay: 2},
			{ID: "e2", GameCode: "ABCD12", TargetID: "p2", SourcePlayerID: "p1", Kind: game.KindDoubleVote, AppliedDay: 1, ExpiresAtDay: 1},
		} {
			if err := tx.InsertEffect(e); err != nil {
				return err
			}
		}
		active, err := tx.Effects(store.EffectFilter{GameCode: "ABCD12", TargetID: "p2", ActiveOn: 2})
		if err != nil {
			return err
		}
		if len(active) != 1 || active[0].ID != "e1" {
			t.Fatalf("unexpected active effects: %+v", active)
		}
		if err := tx.InsertProtection(game.Protection{
			ID: "pr1", GameCode: "ABCD12", ProtectorID: "p1", ProtectedID: "p2",
			Kind: game.KindMurderIntoxication, AppliedDay: 2, ExpiresAtDay: 3,
		}); err != nil {
			return err
		}
		prot, err := tx.Protections(store.EffectFilter{GameCode: "ABCD12", TargetID: "p2", Kind: game.KindMurderIntoxication, ActiveOn: 3})
		if err != nil {
			return err
		}
		if len(prot) != 1 {
			t.Fatalf("unexpected protections: %+v", prot)
		}
		if err := tx.InsertAnnouncement(game.SecretaryVoteAnnouncement{
			ID: "an1", GameCode: "ABCD12", Day: 2, CandidateID: "p2", Votes: 2,
			Tally: game.Details{"p2": 2}, CreatedAt: t0,
		}); err != nil {
			return err
		}
		a, err := tx.Announcement("ABCD12", 2)
		if err != nil {
			return err
		}
		if a.CandidateID != "p2" || a.Tally["p2"] != float64(2) {
			t.Fatalf("unexpected announcement: %+v", a)
		}
		if _, err := tx.Announcement("ABCD12", 3); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestPostgresErrorMapping(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := New(sqlx.NewDb(db, DriverPostgres))

	mock.ExpectBegin()
	mock.ExpectExec("insert into guesses").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "guesses_game_code_day_guesser_id_target_id_key"})
	mock.ExpectRollback()

	err = s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertGuess(game.Guess{ID: "g1", GameCode: "ABCD12", Day: 1, GuesserID: "p1", TargetID: "p2", CreatedAt: t0})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUsesDollarPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := New(sqlx.NewDb(db, DriverPostgres))

	mock.ExpectBegin()
	mock.ExpectExec(`insert into claims(game_code, kind, claim_key) values ($1, $2, $3)
		on conflict (game_code, kind, claim_key) do nothing`).
		WithArgs("ABCD12", "minigame", "2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.Claim("ABCD12", "minigame", "2")
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRepeatedClaimLeavesTransactionUsable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := New(sqlx.NewDb(db, DriverPostgres))

	mock.ExpectBegin()
	mock.ExpectExec("insert into claims.*on conflict.*do nothing").
		WithArgs("ABCD12", "assign", "roles").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into vote_announcements.*on conflict.*do nothing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("update games set phase").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.InTx(context.Background(), func(tx store.Tx) error {
		if err := tx.Claim("ABCD12", "assign", "roles"); !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("expected duplicate claim, got %v", err)
		}
		err := tx.InsertAnnouncement(game.SecretaryVoteAnnouncement{ID: "an1", GameCode: "ABCD12", Day: 1, Tally: game.Details{}, CreatedAt: t0})
		if !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("expected duplicate announcement, got %v", err)
		}
		return tx.UpdateGame(game.Game{Code: "ABCD12", Phase: game.PhaseRoleReveal, PhaseSeq: 1}, 0)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSerializationFailureIsConflict(t *testing.T) {
	if err := mapErr(&pgconn.PgError{Code: "40001"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mapErr(nil); err != nil {
		t.Fatalf("nil maps to %v", err)
	}
}
