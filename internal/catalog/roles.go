package catalog

import "conclave.org/internal/game"

// Role names.
const (
	Murder       = "Murder"
	Wrath        = "Wrath"
	Corruption   = "Corruption"
	Envy         = "Envy"
	Pride        = "Pride"
	Torment      = "Torment"
	Justice      = "Justice"
	Temperance   = "Temperance"
	Truthfulness = "Truthfulness"
	Redemption   = "Redemption"
	Certainty    = "Certainty"
	Charity      = "Charity"
	Faith        = "Faith"
	Empathy      = "Empathy"
	Mercy        = "Mercy"
	Sacrifice    = "Sacrifice"
	Hope         = "Hope"
	Vengeance    = "Vengeance"

	ViceWorshipper = "vice worshipper"
	VirtueSeeker   = "virtue seeker"

	Chairperson = "Chairperson"
	Secretary   = "Secretary"
	Treasurer   = "Treasurer"
)

func playable(name string, f game.Faction, t game.Tier, actions ...Action) Entry {
	return Entry{
		Role:    game.Role{Name: name, Faction: f, Tier: t, RandomlyAssignable: true, Unique: true},
		Actions: actions,
	}
}

func official(name string, actions ...Action) Entry {
	return Entry{
		Role:    game.Role{Name: name, Faction: game.FactionOfficial, Tier: game.TierOfficial, Unique: true},
		Actions: actions,
	}
}

func filler(name string, f game.Faction) Entry {
	return Entry{Role: game.Role{Name: name, Faction: f, Tier: game.TierD, RandomlyAssignable: true}}
}

// Entries is the standard role table.
func Entries() []Entry {
	return []Entry{
		playable(Murder, game.FactionVice, game.TierS,
			Action{Effect: game.EffectKill, Label: "kill", Cost: CostBase, Target: TargetAlive},
			Action{Effect: game.EffectChooseRoleInheritance, Label: "select successor", Cost: CostFree, Target: TargetAlive},
		),
		playable(Justice, game.FactionVirtue, game.TierS,
			Action{Effect: game.EffectKill, Label: "execute", Cost: CostHeavy, Target: TargetAlive},
		),
		playable(Wrath, game.FactionVice, game.TierA,
			Action{Effect: game.EffectHospitalize, Label: "hospitalize", Cost: CostBase, Target: TargetAlive},
		),
		playable(Temperance, game.FactionVirtue, game.TierA,
			Action{Effect: game.EffectProtect, Label: "protect", Cost: CostBase, Target: TargetAlive, AllowSelf: true},
		),
		playable(Truthfulness, game.FactionVirtue, game.TierA,
			Action{Effect: game.EffectRevealAllVotesOnImprisoned, Label: "reveal prison votes", Cost: CostHeavy, Target: TargetNone},
		),
		playable(Corruption, game.FactionVice, game.TierA,
			Action{Effect: game.EffectConvertVirtueToVice, Label: "corrupt", Cost: CostBase, Target: TargetAlive},
		),
		playable(Redemption, game.FactionVirtue, game.TierA,
			Action{Effect: game.EffectConvertViceToVirtue, Label: "redeem", Cost: CostBase, Target: TargetAlive},
		),
		playable(Envy, game.FactionVice, game.TierB,
			Action{Effect: game.EffectSwapIdentity, Label: "swap identity", Cost: CostBase, Target: TargetAlive},
		),
		playable(Certainty, game.FactionVirtue, game.TierB,
			Action{Effect: game.EffectRevealTierPlayers, Label: "reveal tier", Cost: CostTiered, Target: TargetTier},
		),
		playable(Charity, game.FactionVirtue, game.TierB,
			Action{Effect: game.EffectResuscitatePlayer, Label: "resuscitate", Cost: CostBase, Target: TargetDead},
		),
		playable(Faith, game.FactionVirtue, game.TierB,
			Action{Effect: game.EffectBuildHouseOfWorship, Label: "build house of worship", Cost: CostBase, Target: TargetNone},
		),
		playable(Vengeance, game.FactionNeutral, game.TierB,
			Action{Effect: game.EffectGuessVoterForHospitalization, Label: "avenge", Cost: CostBase, Target: TargetImprisoned, Secondary: true},
		),
		playable(Pride, game.FactionVice, game.TierC,
			Action{Effect: game.EffectDoubleVote, Label: "double vote", Cost: CostBase, Target: TargetNone},
		),
		playable(Empathy, game.FactionVirtue, game.TierC,
			Action{Effect: game.EffectRevealVotesOnTarget, Label: "view votes", Cost: CostFree, Target: TargetAnyPlayer, AllowSelf: true},
		),
		playable(Mercy, game.FactionVirtue, game.TierC,
			Action{Effect: game.EffectFreePlayerFromPrison, Label: "free prisoner", Cost: CostBase, Target: TargetImprisoned},
		),
		playable(Sacrifice, game.FactionVirtue, game.TierC,
			Action{Effect: game.EffectSacrificeWithTarget, Label: "sacrifice", Cost: CostFree, Target: TargetAlive},
		),
		playable(Torment, game.FactionVice, game.TierD,
			Action{Effect: game.EffectMiniGameDisrupt, Label: "torment", Cost: CostFree, Target: TargetAlive},
		),
		playable(Hope, game.FactionVirtue, game.TierD,
			Action{Effect: game.EffectRevealFactionCount, Label: "count factions", Cost: CostBase, Target: TargetNone},
		),
		filler(ViceWorshipper, game.FactionVice),
		filler(VirtueSeeker, game.FactionVirtue),
		official(Chairperson),
		official(Secretary),
		official(Treasurer,
			Action{Effect: game.EffectManageGroupPoints, Label: "grant points", Cost: CostFree, Target: TargetAlive, AllowSelf: true},
		),
	}
}

// Default returns the standard catalog.
func Default() *Catalog {
	c, err := New(Entries()...)
	if err != nil {
		panic(err)
	}
	return c
}
