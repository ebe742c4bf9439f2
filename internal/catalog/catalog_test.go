package catalog

import (
	"errors"
	"testing"

	"conclave.org/internal/game"
)

func TestCostTable(t *testing.T) {
	c := Default()
	cases := []struct {
		role   string
		effect game.EffectType
		m      int64
		tier   game.Tier
		want   int64
	}{
		{Murder, game.EffectKill, 10, "", 10},
		{Justice, game.EffectKill, 10, "", 20},
		{Truthfulness, game.EffectRevealAllVotesOnImprisoned, 7, "", 14},
		{Certainty, game.EffectRevealTierPlayers, 10, game.TierS, 35},
		{Certainty, game.EffectRevealTierPlayers, 10, game.TierA, 30},
		{Certainty, game.EffectRevealTierPlayers, 10, game.TierB, 25},
		{Certainty, game.EffectRevealTierPlayers, 10, game.TierC, 20},
		{Certainty, game.EffectRevealTierPlayers, 10, game.TierD, 10},
		{Certainty, game.EffectRevealTierPlayers, 3, game.TierS, 10},
		{Certainty, game.EffectRevealTierPlayers, 3, game.TierB, 7},
		{Empathy, game.EffectRevealVotesOnTarget, 10, "", 0},
		{Torment, game.EffectMiniGameDisrupt, 10, "", 0},
		{Sacrifice, game.EffectSacrificeWithTarget, 10, "", 0},
		{Wrath, game.EffectHospitalize, 10, "", 10},
	}
	for _, tc := range cases {
		a, ok := c.Action(tc.role, tc.effect)
		if !ok {
			t.Fatalf("%s/%s not in catalog", tc.role, tc.effect)
		}
		got, err := Cost(a, tc.m, tc.tier)
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.role, tc.effect, err)
		}
		if got != tc.want {
			t.Fatalf("%s/%s M=%d tier=%s: got %d want %d", tc.role, tc.effect, tc.m, tc.tier, got, tc.want)
		}
	}
}

func TestCostNeverNegative(t *testing.T) {
	c := Default()
	for _, r := range c.Roles() {
		for _, effect := range r.Actions {
			a, _ := c.Action(r.Name, effect)
			for _, tier := range []game.Tier{game.TierS, game.TierA, game.TierB, game.TierC, game.TierD} {
				cost, err := Cost(a, 50, tier)
				if err != nil {
					t.Fatalf("%s/%s: %v", r.Name, effect, err)
				}
				if cost < 0 {
					t.Fatalf("%s/%s negative cost %d", r.Name, effect, cost)
				}
			}
		}
	}
}

func TestTieredCostRequiresTier(t *testing.T) {
	a, _ := Default().Action(Certainty, game.EffectRevealTierPlayers)
	if _, err := Cost(a, 10, game.TierOfficial); !errors.Is(err, ErrTierRequired) {
		t.Fatalf("expected ErrTierRequired, got %v", err)
	}
}

func TestMurderExposesTwoActions(t *testing.T) {
	r, ok := Default().Role(Murder)
	if !ok {
		t.Fatal("Murder missing")
	}
	if !r.Has(game.EffectKill) || !r.Has(game.EffectChooseRoleInheritance) {
		t.Fatalf("unexpected actions: %v", r.Actions)
	}
	if r.Has(game.EffectHospitalize) {
		t.Fatalf("Murder must not hospitalize")
	}
}

func TestAssignableOrdering(t *testing.T) {
	unique, fillers := Default().Assignable()
	if len(fillers) != 2 {
		t.Fatalf("expected 2 fillers, got %d", len(fillers))
	}
	for i := 1; i < len(unique); i++ {
		if unique[i-1].Tier.Priority() > unique[i].Tier.Priority() {
			t.Fatalf("unique roles out of tier order at %d: %s(%s) before %s(%s)",
				i, unique[i-1].Name, unique[i-1].Tier, unique[i].Name, unique[i].Tier)
		}
		if !unique[i].RandomlyAssignable || unique[i].Faction == game.FactionOfficial {
			t.Fatalf("official role %s leaked into assignable set", unique[i].Name)
		}
	}
	if unique[0].Tier != game.TierS {
		t.Fatalf("first role should be tier S, got %s", unique[0].Tier)
	}
}

func TestFiller(t *testing.T) {
	c := Default()
	if r, ok := c.Filler(game.FactionVice); !ok || r.Name != ViceWorshipper {
		t.Fatalf("vice filler=%v,%v", r.Name, ok)
	}
	if r, ok := c.Filler(game.FactionVirtue); !ok || r.Name != VirtueSeeker {
		t.Fatalf("virtue filler=%v,%v", r.Name, ok)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	e := Entry{Role: game.Role{Name: "X"}}
	if _, err := New(e, e); !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected duplicate role error, got %v", err)
	}
}
