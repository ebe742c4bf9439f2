package ability

import (
	"strings"

	"conclave.org/internal/game"
	"conclave.org/internal/ids"
)

type handler func(e *execution) error

// Durations in days.
const (
	hospitalDays   = 1
	protectionDays = 1
	doubleVoteDays = 1
	disruptDays    = 1
	houseOfWorship = 3
)

func defaultHandlers() map[game.EffectType]handler {
	return map[game.EffectType]handler{
		game.EffectKill:                         kill,
		game.EffectHospitalize:                  hospitalize,
		game.EffectProtect:                      protect,
		game.EffectSwapIdentity:                 swapIdentity,
		game.EffectMiniGameDisrupt:              disrupt,
		game.EffectSacrificeWithTarget:          sacrifice,
		game.EffectChooseRoleInheritance:        chooseSuccessor,
		game.EffectRevealVotesOnTarget:          revealVotesOnTarget,
		game.EffectRevealTierPlayers:            revealTier,
		game.EffectRevealAllVotesOnImprisoned:   revealPrisonVotes,
		game.EffectDoubleVote:                   doubleVote,
		game.EffectBuildHouseOfWorship:          buildHouse,
		game.EffectResuscitatePlayer:            resuscitate,
		game.EffectFreePlayerFromPrison:         free,
		game.EffectRevealFactionCount:           factionCount,
		game.EffectConvertViceToVirtue:          convert(game.FactionVice, game.FactionVirtue),
		game.EffectConvertVirtueToVice:          convert(game.FactionVirtue, game.FactionVice),
		game.EffectGuessVoterForHospitalization: avenge,
	}
}

func kill(e *execution) error {
	e.details["killed"] = e.target.ID
	return e.kill(e.target)
}

func hospitalize(e *execution) error {
	if _, err := e.fx.Apply(*e.actor, e.target.ID, game.KindHospitalized, e.game.Day, hospitalDays); err != nil {
		return err
	}
	e.target.Status = game.StatusHospitalized
	e.touch(e.target)
	return nil
}

func protect(e *execution) error {
	p, err := e.fx.Protect(*e.actor, e.target.ID, game.KindMurderIntoxication, e.game.Day, protectionDays)
	if err != nil {
		return err
	}
	e.details["expires_at_day"] = p.ExpiresAtDay
	return nil
}

func swapIdentity(e *execution) error {
	e.actor.EffectiveIdentityID = e.target.ID
	e.target.EffectiveIdentityID = e.actor.ID
	e.touch(e.actor)
	e.touch(e.target)
	return nil
}

func disrupt(e *execution) error {
	_, err := e.fx.Apply(*e.actor, e.target.ID, game.KindMiniGameDisrupt, e.game.Day, disruptDays)
	return err
}

func sacrifice(e *execution) error {
	e.details["sacrificed"] = []string{e.actor.ID, e.target.ID}
	if err := e.kill(e.target); err != nil {
		return err
	}
	return e.kill(e.actor)
}

func chooseSuccessor(e *execution) error {
	return e.tx.InsertInheritance(game.RoleInheritanceChoice{
		ID:          ids.New(),
		GameCode:    e.game.Code,
		Day:         e.game.Day,
		PlayerID:    e.actor.ID,
		SuccessorID: e.target.ID,
		CreatedAt:   e.now,
	})
}

func revealVotesOnTarget(e *execution) error {
	votes, err := e.prisonVotes(e.target)
	if err != nil {
		return err
	}
	e.details["voters"] = voters(votes)
	return nil
}

func revealTier(e *execution) error {
	players, err := e.tx.Players(e.game.Code)
	if err != nil {
		return err
	}
	found := []string{}
	for _, p := range players {
		if p.Status == game.StatusDead {
			continue
		}
		if r, ok := e.catalog.Role(p.CurrentRole); ok && r.Tier == e.inv.TargetTier {
			found = append(found, p.ID)
		}
	}
	e.details["tier"] = string(e.inv.TargetTier)
	e.details["players"] = found
	return nil
}

func revealPrisonVotes(e *execution) error {
	players, err := e.tx.Players(e.game.Code)
	if err != nil {
		return err
	}
	out := map[string][]string{}
	for _, p := range players {
		if p.Status != game.StatusImprisoned {
			continue
		}
		votes, err := e.prisonVotes(&p)
		if err != nil {
			return err
		}
		out[p.ID] = voters(votes)
	}
	e.details["votes"] = out
	return nil
}

func doubleVote(e *execution) error {
	_, err := e.fx.Apply(*e.actor, e.actor.ID, game.KindDoubleVote, e.game.Day, doubleVoteDays)
	return err
}

func buildHouse(e *execution) error {
	p, err := e.fx.Protect(*e.actor, e.actor.ID, game.KindHouseOfWorship, e.game.Day, houseOfWorship)
	if err != nil {
		return err
	}
	e.details["expires_at_day"] = p.ExpiresAtDay
	return nil
}

func resuscitate(e *execution) error {
	e.target.Status = game.StatusAlive
	e.touch(e.target)
	return nil
}

func free(e *execution) error {
	e.target.Status = game.StatusAlive
	e.touch(e.target)
	return nil
}

func factionCount(e *execution) error {
	players, err := e.tx.Players(e.game.Code)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, p := range players {
		if !p.Alive() {
			continue
		}
		counts[strings.ToLower(string(e.catalog.Faction(p.CurrentRole)))]++
	}
	for k, v := range counts {
		e.details[k] = v
	}
	return nil
}

// convert turns a target of faction from into the filler of faction to. Other
// targets spend the action without effect.
func convert(from, to game.Faction) handler {
	return func(e *execution) error {
		if e.catalog.Faction(e.target.CurrentRole) != from {
			e.details["converted"] = false
			return nil
		}
		filler, ok := e.catalog.Filler(to)
		if !ok {
			return game.ErrCatalogMisconfigured
		}
		prev := e.target.CurrentRole
		e.target.CurrentRole = filler.Name
		e.touch(e.target)
		e.details["converted"] = true
		return e.tx.InsertConversion(game.RoleConversion{
			ID:          ids.New(),
			GameCode:    e.game.Code,
			Day:         e.game.Day,
			ConverterID: e.actor.ID,
			TargetID:    e.target.ID,
			FromRole:    prev,
			ToRole:      filler.Name,
			CreatedAt:   e.now,
		})
	}
}

// avenge checks whether the secondary target voted to imprison the target and
// hospitalizes them if so.
func avenge(e *execution) error {
	votes, err := e.prisonVotes(e.target)
	if err != nil {
		return err
	}
	correct := false
	for _, v := range votes {
		if v.VoterID == e.secondary.ID {
			correct = true
			break
		}
	}
	err = e.tx.InsertVengeanceGuess(game.VengeanceGuess{
		ID:             ids.New(),
		GameCode:       e.game.Code,
		Day:            e.game.Day,
		GuesserID:      e.actor.ID,
		ImprisonedID:   e.target.ID,
		GuessedVoterID: e.secondary.ID,
		Correct:        correct,
		CreatedAt:      e.now,
	})
	if err != nil {
		return err
	}
	e.details["correct"] = correct
	if !correct {
		return nil
	}
	if _, err := e.fx.Apply(*e.actor, e.secondary.ID, game.KindHospitalized, e.game.Day, hospitalDays); err != nil {
		return err
	}
	e.secondary.Status = game.StatusHospitalized
	e.touch(e.secondary)
	return nil
}
