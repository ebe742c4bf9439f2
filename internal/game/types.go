package game

import (
	"time"
)

// Phase is a named stage of a game round. Values are part of the wire contract.
type Phase string

const (
	PhaseLobby                     Phase = "Lobby"
	PhaseRoleReveal                Phase = "RoleReveal"
	PhaseTutorial                  Phase = "Tutorial"
	PhaseReflectionRoleActions     Phase = "Reflection_RoleActions"
	PhaseReflectionMiniGame        Phase = "Reflection_MiniGame"
	PhaseReflectionMiniGameResult  Phase = "Reflection_MiniGame_Result"
	PhaseElectionsChairperson      Phase = "Elections_Chairperson"
	PhaseElectionsSecretary        Phase = "Elections_Secretary"
	PhaseElectionsResult           Phase = "Elections_Result"
	PhaseOutreach                  Phase = "Outreach"
	PhaseConsultationDiscussion    Phase = "Consultation_Discussion"
	PhaseConsultationTreasurer     Phase = "Consultation_TreasurerActions"
	PhaseConsultationVoting        Phase = "Consultation_Voting"
	PhaseConsultationVotingCount   Phase = "Consultation_Voting_Count"
	PhaseConsultationVotingResults Phase = "Consultation_Voting_Results"
	PhasePaused                    Phase = "Paused"
	PhaseFinished                  Phase = "Finished"
)

var phases = []Phase{
	PhaseLobby, PhaseRoleReveal, PhaseTutorial, PhaseReflectionRoleActions, PhaseReflectionMiniGame,
	PhaseReflectionMiniGameResult, PhaseElectionsChairperson, PhaseElectionsSecretary, PhaseElectionsResult,
	PhaseOutreach, PhaseConsultationDiscussion, PhaseConsultationTreasurer, PhaseConsultationVoting,
	PhaseConsultationVotingCount, PhaseConsultationVotingResults, PhasePaused, PhaseFinished,
}

// Phases returns every phase in declaration order.
func Phases() []Phase { return append([]Phase(nil), phases...) }

func (p Phase) Valid() bool {
	for _, known := range phases {
		if p == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the phase is absorbing.
func (p Phase) Terminal() bool { return p == PhasePaused || p == PhaseFinished }

type PlayerStatus string

const (
	StatusAlive        PlayerStatus = "Alive"
	StatusDead         PlayerStatus = "Dead"
	StatusHospitalized PlayerStatus = "Hospitalized"
	StatusImprisoned   PlayerStatus = "Imprisoned"
	StatusDisconnected PlayerStatus = "Disconnected"
)

// EffectType is the ability effect an action produces (AbilityEffectType on the wire).
type EffectType string

const (
	EffectKill                         EffectType = "Kill"
	EffectHospitalize                  EffectType = "Hospitalize"
	EffectProtect                      EffectType = "Protect"
	EffectSwapIdentity                 EffectType = "SwapIdentity"
	EffectMiniGameDisrupt              EffectType = "MiniGameDisrupt"
	EffectSacrificeWithTarget          EffectType = "SacrificeWithTarget"
	EffectInheritRoleOnDeath           EffectType = "InheritRoleOnDeath"
	EffectRevealVotesOnTarget          EffectType = "RevealVotesOnTarget"
	EffectRevealTierPlayers            EffectType = "RevealTierPlayers"
	EffectRevealAllVotesOnImprisoned   EffectType = "RevealAllVotesOnImprisoned"
	EffectDoubleVote                   EffectType = "DoubleVote"
	EffectManageGroupPoints            EffectType = "ManageGroupPoints"
	EffectBuildHouseOfWorship          EffectType = "BuildHouseOfWorship"
	EffectResuscitatePlayer            EffectType = "ResuscitatePlayer"
	EffectFreePlayerFromPrison         EffectType = "FreePlayerFromPrison"
	EffectRevealFactionCount           EffectType = "RevealFactionCount"
	EffectConvertViceToVirtue          EffectType = "ConvertViceToVirtue"
	EffectConvertVirtueToVice          EffectType = "ConvertVirtueToVice"
	EffectChooseRoleInheritance        EffectType = "ChooseRoleInheritance"
	EffectGuessVoterForHospitalization EffectType = "GuessVoterForHospitalization"
)

type Tier string

const (
	TierS        Tier = "S"
	TierA        Tier = "A"
	TierB        Tier = "B"
	TierC        Tier = "C"
	TierD        Tier = "D"
	TierOfficial Tier = "OfficialTier"
)

// Priority orders tiers for assignment: S first.
func (t Tier) Priority() int {
	switch t {
	case TierS:
		return 0
	case TierA:
		return 1
	case TierB:
		return 2
	case TierC:
		return 3
	case TierD:
		return 4
	default:
		return 5
	}
}

// Playable reports whether the tier is one of S..D.
func (t Tier) Playable() bool { return t.Priority() < 5 }

type Faction string

const (
	FactionVice     Faction = "Vice"
	FactionVirtue   Faction = "Virtue"
	FactionOfficial Faction = "Official"
	FactionNeutral  Faction = "Neutral"
)

type ElectionRole string

const (
	ElectionChairperson ElectionRole = "chairperson"
	ElectionSecretary   ElectionRole = "secretary"
	ElectionTreasurer   ElectionRole = "treasurer"
	ElectionPrison      ElectionRole = "prison"
)

// EffectKind names a timed effect or protection row.
type EffectKind string

const (
	KindHospitalized       EffectKind = "hospitalized"
	KindDoubleVote         EffectKind = "double_vote"
	KindMiniGameDisrupt    EffectKind = "minigame_disrupt"
	KindMurderIntoxication EffectKind = "murder_intoxication"
	KindHouseOfWorship     EffectKind = "house_of_worship"
)

// Game is one instance of a match, identified by its join code.
type Game struct {
	Code              string    `json:"code" db:"code"`
	Phase             Phase     `json:"phase" db:"phase"`
	PhaseSeq          int64     `json:"phase_seq" db:"phase_seq"`
	Day               int       `json:"day" db:"day"`
	HostPlayerID      string    `json:"host_player_id" db:"host_player_id"`
	SecretaryPlayerID string    `json:"secretary_player_id,omitempty" db:"secretary_player_id"`
	TreasurerPlayerID string    `json:"treasurer_player_id,omitempty" db:"treasurer_player_id"`
	GroupPoints       int64     `json:"group_points" db:"group_points"`
	DailyCap          int64     `json:"daily_cap" db:"daily_cap"`
	Tutorial          bool      `json:"tutorial" db:"tutorial"`
	IncludeOutreach   bool      `json:"include_outreach" db:"include_outreach"`
	LastPhaseChangeAt time.Time `json:"last_phase_change_at" db:"last_phase_change_at"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Remaining derives a countdown for a phase of length d.
func (g Game) Remaining(d time.Duration, now time.Time) time.Duration {
	left := d - now.Sub(g.LastPhaseChangeAt)
	if left < 0 {
		return 0
	}
	return left
}

type Player struct {
	ID                  string       `json:"id" db:"id"`
	GameCode            string       `json:"game_code" db:"game_code"`
	Name                string       `json:"name" db:"name"`
	Status              PlayerStatus `json:"status" db:"status"`
	CurrentRole         string       `json:"current_role,omitempty" db:"current_role"`
	OriginalRole        string       `json:"original_role,omitempty" db:"original_role"`
	Points              int64        `json:"points" db:"points"`
	LastMiniGameRank    *int         `json:"last_mini_game_rank,omitempty" db:"last_mini_game_rank"`
	ActedToday          bool         `json:"acted_today" db:"acted_today"`
	EffectiveIdentityID string       `json:"effective_identity_id,omitempty" db:"effective_identity_id"`
	JoinSeq             int          `json:"join_seq" db:"join_seq"`
	JoinedAt            time.Time    `json:"joined_at" db:"joined_at"`
}

func (p Player) Alive() bool { return p.Status == StatusAlive }

// Role is an immutable catalog entry.
type Role struct {
	Name               string       `json:"name"`
	Faction            Faction      `json:"faction"`
	Tier               Tier         `json:"tier"`
	Actions            []EffectType `json:"actions,omitempty"`
	RandomlyAssignable bool         `json:"randomly_assignable"`
	Unique             bool         `json:"unique"`
}

func (r Role) Has(effect EffectType) bool {
	for _, a := range r.Actions {
		if a == effect {
			return true
		}
	}
	return false
}

type PlayerAction struct {
	ID                string     `json:"id" db:"id"`
	GameCode          string     `json:"game_code" db:"game_code"`
	Day               int        `json:"day" db:"day"`
	ActorID           string     `json:"actor_id" db:"actor_id"`
	RoleName          string     `json:"role_name" db:"role_name"`
	ActionType        EffectType `json:"action_type" db:"action_type"`
	TargetID          string     `json:"target_id,omitempty" db:"target_id"`
	SecondaryTargetID string     `json:"secondary_target_id,omitempty" db:"secondary_target_id"`
	TargetTier        Tier       `json:"target_tier,omitempty" db:"target_tier"`
	PointsSpent       int64      `json:"points_spent" db:"points_spent"`
	Successful        bool       `json:"action_successful" db:"successful"`
	Details           Details    `json:"details" db:"details"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

type ActiveEffect struct {
	ID             string     `json:"id" db:"id"`
	GameCode       string     `json:"game_code" db:"game_code"`
	TargetID       string     `json:"target_id" db:"target_id"`
	SourcePlayerID string     `json:"source_player_id" db:"source_player_id"`
	SourceRole     string     `json:"source_role" db:"source_role"`
	Kind           EffectKind `json:"effect_type" db:"kind"`
	AppliedDay     int        `json:"applied_day" db:"applied_day"`
	ExpiresAtDay   int        `json:"expires_at_day" db:"expires_at_day"`
}

type Protection struct {
	ID           string     `json:"id" db:"id"`
	GameCode     string     `json:"game_code" db:"game_code"`
	ProtectorID  string     `json:"protector_id" db:"protector_id"`
	ProtectedID  string     `json:"protected_id" db:"protected_id"`
	Kind         EffectKind `json:"protection_type" db:"kind"`
	AppliedDay   int        `json:"applied_day" db:"applied_day"`
	ExpiresAtDay int        `json:"expires_at_day" db:"expires_at_day"`
}

// ActiveOn reports whether a record expiring at expiresAt still holds on day.
func ActiveOn(expiresAt, day int) bool { return expiresAt >= day }

type Vote struct {
	ID           string       `json:"id" db:"id"`
	Seq          int64        `json:"seq" db:"seq"`
	GameCode     string       `json:"game_code" db:"game_code"`
	Day          int          `json:"day" db:"day"`
	Phase        Phase        `json:"phase" db:"phase"`
	VoterID      string       `json:"voter_id" db:"voter_id"`
	CandidateID  string       `json:"candidate_id" db:"candidate_id"`
	ElectionRole ElectionRole `json:"election_role" db:"election_role"`
	DoubleVote   bool         `json:"double_vote" db:"double_vote"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// Weight is the number of ballots the vote counts for.
func (v Vote) Weight() int {
	if v.DoubleVote {
		return 2
	}
	return 1
}

type Guess struct {
	ID          string    `json:"id" db:"id"`
	GameCode    string    `json:"game_code" db:"game_code"`
	Day         int       `json:"day" db:"day"`
	GuesserID   string    `json:"guesser_id" db:"guesser_id"`
	TargetID    string    `json:"target_id" db:"target_id"`
	GuessedRole string    `json:"guessed_role" db:"guessed_role"`
	Correct     bool      `json:"correct" db:"correct"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type RoleInheritanceChoice struct {
	ID          string    `json:"id" db:"id"`
	GameCode    string    `json:"game_code" db:"game_code"`
	Day         int       `json:"day" db:"day"`
	PlayerID    string    `json:"player_id" db:"player_id"`
	SuccessorID string    `json:"successor_id" db:"successor_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type RoleConversion struct {
	ID          string    `json:"id" db:"id"`
	GameCode    string    `json:"game_code" db:"game_code"`
	Day         int       `json:"day" db:"day"`
	ConverterID string    `json:"converter_id" db:"converter_id"`
	TargetID    string    `json:"target_id" db:"target_id"`
	FromRole    string    `json:"from_role" db:"from_role"`
	ToRole      string    `json:"to_role" db:"to_role"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type VengeanceGuess struct {
	ID             string    `json:"id" db:"id"`
	GameCode       string    `json:"game_code" db:"game_code"`
	Day            int       `json:"day" db:"day"`
	GuesserID      string    `json:"guesser_id" db:"guesser_id"`
	ImprisonedID   string    `json:"imprisoned_id" db:"imprisoned_id"`
	GuessedVoterID string    `json:"guessed_voter_id" db:"guessed_voter_id"`
	Correct        bool      `json:"correct" db:"correct"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type SecretaryVoteAnnouncement struct {
	ID          string    `json:"id" db:"id"`
	GameCode    string    `json:"game_code" db:"game_code"`
	Day         int       `json:"day" db:"day"`
	SecretaryID string    `json:"secretary_id,omitempty" db:"secretary_id"`
	CandidateID string    `json:"candidate_id,omitempty" db:"candidate_id"`
	Votes       int       `json:"votes" db:"votes"`
	Tally       Details   `json:"tally" db:"tally"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type TreasuryTransaction struct {
	ID          string    `json:"id" db:"id"`
	GameCode    string    `json:"game_code" db:"game_code"`
	Day         int       `json:"day" db:"day"`
	TreasurerID string    `json:"treasurer_id" db:"treasurer_id"`
	RecipientID string    `json:"recipient_id" db:"recipient_id"`
	Amount      int64     `json:"amount" db:"amount"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
