package ability

import (
	"context"
	"errors"
	"testing"

	"conclave.org/internal/catalog"
	"conclave.org/internal/effects"
	"conclave.org/internal/game"
	"conclave.org/internal/store"
	"conclave.org/internal/store/mem"
)

const cap10 = 10

// seed opens day 2 of G1 with a fixed table plus extra.
func seed(t *testing.T, extra ...game.Player) *mem.Store {
	t.Helper()
	s := mem.New()
	players := []game.Player{
		{ID: "murder", CurrentRole: catalog.Murder},
		{ID: "justice", CurrentRole: catalog.Justice},
		{ID: "temperance", CurrentRole: catalog.Temperance},
		{ID: "corruption", CurrentRole: catalog.Corruption},
		{ID: "seeker", CurrentRole: catalog.VirtueSeeker},
		{ID: "vengeance", CurrentRole: catalog.Vengeance},
		{ID: "prisoner", CurrentRole: catalog.Envy, Status: game.StatusImprisoned},
		{ID: "ghost", CurrentRole: catalog.Hope, Status: game.StatusDead},
		{ID: "charity", CurrentRole: catalog.Charity},
		{ID: "sacrifice", CurrentRole: catalog.Sacrifice},
		{ID: "certainty", CurrentRole: catalog.Certainty, Points: 20},
		{ID: "faith", CurrentRole: catalog.Faith},
	}
	players = append(players, extra...)
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		if err := tx.CreateGame(game.Game{Code: "G1", Phase: game.PhaseReflectionRoleActions, Day: 2, DailyCap: cap10}); err != nil {
			return err
		}
		for i, p := range players {
			p.GameCode = "G1"
			p.JoinSeq = i
			if p.Status == "" {
				p.Status = game.StatusAlive
			}
			if p.Points == 0 {
				p.Points = 50
			}
			if err := tx.InsertPlayer(p); err != nil {
				return err
			}
		}
		for _, voter := range []string{"seeker", "corruption"} {
			_, err := tx.InsertVote(game.Vote{
				ID: voter, GameCode: "G1", Day: 2, Phase: game.PhaseConsultationVoting,
				VoterID: voter, CandidateID: "prisoner", ElectionRole: game.ElectionPrison,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func execute(s *mem.Store, r *Resolver, actor string, inv Invocation) (Outcome, error) {
	var out Outcome
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		g, err := tx.Game("G1")
		if err != nil {
			return err
		}
		out, err = r.Execute(tx, g, actor, inv)
		return err
	})
	return out, err
}

func player(t *testing.T, s *mem.Store, id string) game.Player {
	t.Helper()
	var p game.Player
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		p, err = tx.Player("G1", id)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProtectedKillKeepsBalance(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	if _, err := execute(s, r, "temperance", Invocation{ActionType: game.EffectProtect, TargetID: "justice"}); err != nil {
		t.Fatalf("protect: %v", err)
	}
	_, err := execute(s, r, "murder", Invocation{ActionType: game.EffectKill, TargetID: "justice"})
	if !errors.Is(err, game.ErrTargetProtected) {
		t.Fatalf("expected ErrTargetProtected, got %v", err)
	}
	m := player(t, s, "murder")
	if m.Points != 50 || m.ActedToday {
		t.Fatalf("rejected kill changed the actor: %+v", m)
	}
	if j := player(t, s, "justice"); j.Status != game.StatusAlive {
		t.Fatalf("protected target died: %s", j.Status)
	}
}

func TestSecondExecuteAlreadyActed(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	out, err := execute(s, r, "murder", Invocation{ActionType: game.EffectKill, TargetID: "seeker"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.PointsSpent != cap10 || !out.Action.Successful {
		t.Fatalf("unexpected record: %+v", out.Action)
	}
	if m := player(t, s, "murder"); m.Points != 40 || !m.ActedToday {
		t.Fatalf("actor after kill: %+v", m)
	}
	if v := player(t, s, "seeker"); v.Status != game.StatusDead {
		t.Fatalf("victim status %s", v.Status)
	}
	_, err = execute(s, r, "murder", Invocation{ActionType: game.EffectKill, TargetID: "justice"})
	if !errors.Is(err, game.ErrAlreadyActed) {
		t.Fatalf("expected ErrAlreadyActed, got %v", err)
	}
}

func TestCheckOrder(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	cases := []struct {
		name  string
		phase game.Phase
		actor string
		inv   Invocation
		want  error
	}{
		{"wrong phase beats everything", game.PhaseOutreach, "ghost", Invocation{ActionType: game.EffectKill}, game.ErrWrongPhase},
		{"unknown actor", "", "nobody", Invocation{ActionType: game.EffectKill}, game.ErrPlayerNotFound},
		{"dead actor", "", "ghost", Invocation{ActionType: game.EffectRevealFactionCount}, game.ErrActorIncapacitated},
		{"imprisoned actor", "", "prisoner", Invocation{ActionType: game.EffectSwapIdentity, TargetID: "murder"}, game.ErrActorIncapacitated},
		{"action of another role", "", "murder", Invocation{ActionType: game.EffectProtect, TargetID: "justice"}, game.ErrInvalidActionForRole},
		{"self target", "", "murder", Invocation{ActionType: game.EffectKill, TargetID: "murder"}, game.ErrInvalidTarget},
		{"dead target", "", "murder", Invocation{ActionType: game.EffectKill, TargetID: "ghost"}, game.ErrInvalidTarget},
		{"missing target", "", "murder", Invocation{ActionType: game.EffectKill}, game.ErrInvalidTarget},
		{"resuscitate living", "", "charity", Invocation{ActionType: game.EffectResuscitatePlayer, TargetID: "murder"}, game.ErrInvalidTarget},
		{"tier missing", "", "certainty", Invocation{ActionType: game.EffectRevealTierPlayers}, game.ErrInvalidTarget},
		{"too poor", "", "certainty", Invocation{ActionType: game.EffectRevealTierPlayers, TargetTier: game.TierS}, game.ErrInsufficientPoints},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.InTx(context.Background(), func(tx store.Tx) error {
				g, _ := tx.Game("G1")
				if tc.phase != "" {
					g.Phase = tc.phase
				}
				_, err := r.Execute(tx, g, tc.actor, tc.inv)
				return err
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestHeavyAndTieredCosts(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	if _, err := execute(s, r, "justice", Invocation{ActionType: game.EffectKill, TargetID: "corruption"}); err != nil {
		t.Fatal(err)
	}
	if j := player(t, s, "justice"); j.Points != 30 {
		t.Fatalf("heavy kill should cost 2M, balance %d", j.Points)
	}
	out, err := execute(s, r, "certainty", Invocation{ActionType: game.EffectRevealTierPlayers, TargetTier: game.TierD})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.PointsSpent != cap10 {
		t.Fatalf("tier D costs M, spent %d", out.Action.PointsSpent)
	}
	found, _ := out.Action.Details["players"].([]string)
	if len(found) != 1 || found[0] != "seeker" {
		t.Fatalf("tier D players: %v", out.Action.Details["players"])
	}
}

func TestSacrificeAndInheritance(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	if _, err := execute(s, r, "murder", Invocation{ActionType: game.EffectChooseRoleInheritance, TargetID: "corruption"}); err != nil {
		t.Fatal(err)
	}
	out, err := execute(s, r, "sacrifice", Invocation{ActionType: game.EffectSacrificeWithTarget, TargetID: "murder"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.PointsSpent != 0 {
		t.Fatalf("sacrifice is free, spent %d", out.Action.PointsSpent)
	}
	if p := player(t, s, "sacrifice"); p.Status != game.StatusDead {
		t.Fatalf("sacrificer status %s", p.Status)
	}
	if p := player(t, s, "murder"); p.Status != game.StatusDead {
		t.Fatalf("target status %s", p.Status)
	}
	heir := player(t, s, "corruption")
	if heir.CurrentRole != catalog.Murder || heir.OriginalRole == catalog.Murder {
		t.Fatalf("successor did not inherit: %+v", heir)
	}
	if out.Action.Details["inherited_by"] != "corruption" {
		t.Fatalf("details: %v", out.Action.Details)
	}
	_ = s.InTx(context.Background(), func(tx store.Tx) error {
		actions, _ := tx.Actions("G1", 2)
		var inherited bool
		for _, a := range actions {
			if a.ActionType == game.EffectInheritRoleOnDeath && a.ActorID == "corruption" {
				inherited = true
			}
		}
		if !inherited {
			t.Fatalf("no inheritance record in %+v", actions)
		}
		return nil
	})
}

func TestConversions(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	out, err := execute(s, r, "corruption", Invocation{ActionType: game.EffectConvertVirtueToVice, TargetID: "seeker"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.Details["converted"] != true {
		t.Fatalf("details: %v", out.Action.Details)
	}
	if p := player(t, s, "seeker"); p.CurrentRole != catalog.ViceWorshipper {
		t.Fatalf("role after conversion: %s", p.CurrentRole)
	}

	// converting a player of the wrong faction spends the action silently
	s = seed(t)
	out, err = execute(s, r, "corruption", Invocation{ActionType: game.EffectConvertVirtueToVice, TargetID: "murder"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.Details["converted"] != false || player(t, s, "murder").CurrentRole != catalog.Murder {
		t.Fatalf("vice target must not change: %v", out.Action.Details)
	}
	if player(t, s, "corruption").Points != 40 {
		t.Fatal("a spent conversion still costs points")
	}
}

func TestHouseOfWorshipBlocksCorruption(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	if _, err := execute(s, r, "faith", Invocation{ActionType: game.EffectBuildHouseOfWorship}); err != nil {
		t.Fatal(err)
	}
	_, err := execute(s, r, "corruption", Invocation{ActionType: game.EffectConvertVirtueToVice, TargetID: "faith"})
	if !errors.Is(err, game.ErrTargetProtected) {
		t.Fatalf("expected ErrTargetProtected, got %v", err)
	}
	if player(t, s, "corruption").Points != 50 {
		t.Fatal("blocked conversion must not debit")
	}
}

func TestVengeanceGuess(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	out, err := execute(s, r, "vengeance", Invocation{
		ActionType:        game.EffectGuessVoterForHospitalization,
		TargetID:          "prisoner",
		SecondaryTargetID: "seeker",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.Details["correct"] != true || out.Action.SecondaryTargetID != "seeker" {
		t.Fatalf("unexpected action: %+v", out.Action)
	}
	if p := player(t, s, "seeker"); p.Status != game.StatusHospitalized {
		t.Fatalf("voter status %s", p.Status)
	}
	_ = s.InTx(context.Background(), func(tx store.Tx) error {
		on, _ := effects.New(tx, "G1").IsActive("seeker", game.KindHospitalized, 3)
		if !on {
			t.Fatal("hospitalization should last into the next day")
		}
		return nil
	})

	_, err = execute(seed(t), r, "vengeance", Invocation{
		ActionType: game.EffectGuessVoterForHospitalization, TargetID: "prisoner", SecondaryTargetID: "prisoner",
	})
	if !errors.Is(err, game.ErrInvalidTarget) {
		t.Fatalf("secondary equal to target: %v", err)
	}
}

func TestRevealAndSupportEffects(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())

	if _, err := execute(s, r, "charity", Invocation{ActionType: game.EffectResuscitatePlayer, TargetID: "ghost"}); err != nil {
		t.Fatal(err)
	}
	if p := player(t, s, "ghost"); p.Status != game.StatusAlive {
		t.Fatalf("resuscitated status %s", p.Status)
	}

	out, err := execute(s, r, "ghost", Invocation{ActionType: game.EffectRevealFactionCount})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.Details["vice"] != 2 || out.Action.Details["neutral"] != 1 {
		t.Fatalf("faction counts: %v", out.Action.Details)
	}
}

func TestAvailable(t *testing.T) {
	r := New(catalog.Default())
	got := r.Available(game.Player{CurrentRole: catalog.Murder})
	if len(got) != 2 || got[0].Effect != game.EffectKill {
		t.Fatalf("murder actions: %+v", got)
	}
	if got := r.Available(game.Player{CurrentRole: catalog.ViceWorshipper}); len(got) != 0 {
		t.Fatalf("fillers have no actions: %+v", got)
	}
}

func TestKillerInheritingVictimRoleKeepsUsedRoleOnRecord(t *testing.T) {
	s := seed(t)
	r := New(catalog.Default())
	if _, err := execute(s, r, "murder", Invocation{ActionType: game.EffectChooseRoleInheritance, TargetID: "justice"}); err != nil {
		t.Fatal(err)
	}
	out, err := execute(s, r, "justice", Invocation{ActionType: game.EffectKill, TargetID: "murder"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.RoleName != catalog.Justice || out.Action.PointsSpent != 2*cap10 {
		t.Fatalf("recorded %q spending %d", out.Action.RoleName, out.Action.PointsSpent)
	}
	if j := player(t, s, "justice"); j.CurrentRole != catalog.Murder {
		t.Fatalf("killer should inherit Murder, has %q", j.CurrentRole)
	}
	_ = s.InTx(context.Background(), func(tx store.Tx) error {
		actions, _ := tx.Actions("G1", 2)
		for _, a := range actions {
			if a.ActionType == game.EffectKill && a.RoleName != catalog.Justice {
				t.Fatalf("stored kill under role %q", a.RoleName)
			}
		}
		return nil
	})
}

func active(t *testing.T, s *mem.Store, id string, kind game.EffectKind, day int) bool {
	t.Helper()
	var on bool
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		on, err = effects.New(tx, "G1").IsActive(id, kind, day)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return on
}

func TestEffectOutcomes(t *testing.T) {
	extra := []game.Player{
		{ID: "wrath", CurrentRole: catalog.Wrath},
		{ID: "envy", CurrentRole: catalog.Envy},
		{ID: "mercy", CurrentRole: catalog.Mercy},
		{ID: "pride", CurrentRole: catalog.Pride},
		{ID: "torment", CurrentRole: catalog.Torment},
		{ID: "empathy", CurrentRole: catalog.Empathy},
		{ID: "truth", CurrentRole: catalog.Truthfulness},
	}
	r := New(catalog.Default())
	cases := []struct {
		name  string
		actor string
		inv   Invocation
		check func(t *testing.T, s *mem.Store, out Outcome)
	}{
		{"hospitalize", "wrath", Invocation{ActionType: game.EffectHospitalize, TargetID: "corruption"}, func(t *testing.T, s *mem.Store, out Outcome) {
			if p := player(t, s, "corruption"); p.Status != game.StatusHospitalized {
				t.Fatalf("status %s", p.Status)
			}
			if !active(t, s, "corruption", game.KindHospitalized, 3) || active(t, s, "corruption", game.KindHospitalized, 4) {
				t.Fatal("hospital stay should end after one more day")
			}
			if p := player(t, s, "wrath"); p.Points != 40 {
				t.Fatalf("wrath balance %d", p.Points)
			}
		}},
		{"swap identity", "envy", Invocation{ActionType: game.EffectSwapIdentity, TargetID: "murder"}, func(t *testing.T, s *mem.Store, out Outcome) {
			if p := player(t, s, "envy"); p.EffectiveIdentityID != "murder" {
				t.Fatalf("envy identity %q", p.EffectiveIdentityID)
			}
			if p := player(t, s, "murder"); p.EffectiveIdentityID != "envy" {
				t.Fatalf("murder identity %q", p.EffectiveIdentityID)
			}
		}},
		{"free prisoner", "mercy", Invocation{ActionType: game.EffectFreePlayerFromPrison, TargetID: "prisoner"}, func(t *testing.T, s *mem.Store, out Outcome) {
			if p := player(t, s, "prisoner"); p.Status != game.StatusAlive {
				t.Fatalf("status %s", p.Status)
			}
		}},
		{"double vote", "pride", Invocation{ActionType: game.EffectDoubleVote}, func(t *testing.T, s *mem.Store, out Outcome) {
			if !active(t, s, "pride", game.KindDoubleVote, 2) {
				t.Fatal("double vote not active")
			}
		}},
		{"minigame disrupt", "torment", Invocation{ActionType: game.EffectMiniGameDisrupt, TargetID: "justice"}, func(t *testing.T, s *mem.Store, out Outcome) {
			if !active(t, s, "justice", game.KindMiniGameDisrupt, 2) {
				t.Fatal("disrupt not active")
			}
			if out.Action.PointsSpent != 0 {
				t.Fatalf("torment is free, spent %d", out.Action.PointsSpent)
			}
		}},
		{"votes on target", "empathy", Invocation{ActionType: game.EffectRevealVotesOnTarget, TargetID: "prisoner"}, func(t *testing.T, s *mem.Store, out Outcome) {
			got, _ := out.Action.Details["voters"].([]string)
			if len(got) != 2 || got[0] != "seeker" || got[1] != "corruption" {
				t.Fatalf("voters %v", out.Action.Details["voters"])
			}
		}},
		{"votes on every prisoner", "truth", Invocation{ActionType: game.EffectRevealAllVotesOnImprisoned}, func(t *testing.T, s *mem.Store, out Outcome) {
			got, _ := out.Action.Details["votes"].(map[string][]string)
			if len(got) != 1 || len(got["prisoner"]) != 2 {
				t.Fatalf("votes %v", out.Action.Details["votes"])
			}
			if out.Action.PointsSpent != 2*cap10 {
				t.Fatalf("heavy reveal spent %d", out.Action.PointsSpent)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := seed(t, extra...)
			out, err := execute(s, r, tc.actor, tc.inv)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if out.Action.RoleName != player(t, s, tc.actor).CurrentRole || !out.Action.Successful {
				t.Fatalf("record: %+v", out.Action)
			}
			tc.check(t, s, out)
		})
	}
}

func TestProtectedHospitalizeKeepsBalance(t *testing.T) {
	s := seed(t, game.Player{ID: "wrath", CurrentRole: catalog.Wrath})
	r := New(catalog.Default())
	if _, err := execute(s, r, "temperance", Invocation{ActionType: game.EffectProtect, TargetID: "justice"}); err != nil {
		t.Fatalf("protect: %v", err)
	}
	_, err := execute(s, r, "wrath", Invocation{ActionType: game.EffectHospitalize, TargetID: "justice"})
	if !errors.Is(err, game.ErrTargetProtected) {
		t.Fatalf("expected ErrTargetProtected, got %v", err)
	}
	if w := player(t, s, "wrath"); w.Points != 50 || w.ActedToday {
		t.Fatalf("rejected hospitalize changed the actor: %+v", w)
	}
	if j := player(t, s, "justice"); j.Status != game.StatusAlive {
		t.Fatalf("protected target status %s", j.Status)
	}
}

// prisoner was sent away on day 1 by justice alone; the day 2 ballots
// against them never led to an announcement.
func imprisonedYesterday(t *testing.T) *mem.Store {
	t.Helper()
	s := seed(t)
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		if _, err := tx.InsertVote(game.Vote{
			ID: "justice-1", GameCode: "G1", Day: 1, Phase: game.PhaseConsultationVoting,
			VoterID: "justice", CandidateID: "prisoner", ElectionRole: game.ElectionPrison,
		}); err != nil {
			return err
		}
		return tx.InsertAnnouncement(game.SecretaryVoteAnnouncement{
			ID: "an1", GameCode: "G1", Day: 1, CandidateID: "prisoner", Votes: 1, Tally: game.Details{"prisoner": 1},
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVengeanceReadsImprisonmentDay(t *testing.T) {
	r := New(catalog.Default())
	out, err := execute(imprisonedYesterday(t), r, "vengeance", Invocation{
		ActionType: game.EffectGuessVoterForHospitalization, TargetID: "prisoner", SecondaryTargetID: "justice",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.Details["correct"] != true {
		t.Fatalf("yesterday's voter not found: %v", out.Action.Details)
	}

	out, err = execute(imprisonedYesterday(t), r, "vengeance", Invocation{
		ActionType: game.EffectGuessVoterForHospitalization, TargetID: "prisoner", SecondaryTargetID: "seeker",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action.Details["correct"] != false {
		t.Fatalf("ballot from a later day counted: %v", out.Action.Details)
	}
}
