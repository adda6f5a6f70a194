package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxSummonerNameLength = 64

var ErrSummonerNameFormat = errors.New("summoner name must look like name#tag")
var ErrSummonerNameTooLong = fmt.Errorf("summoner name must not exceed %d characters", MaxSummonerNameLength)
var ErrUnknownTier = errors.New("unknown rank tier")
var ErrDivisionNotAllowed = errors.New("this tier has no divisions")
var ErrDivisionRequired = errors.New("this tier requires a division (1-4)")

// Tiers in ascending order.
var Tiers = []string{
	"UNRANKED", "IRON", "BRONZE", "SILVER", "GOLD", "PLATINUM",
	"EMERALD", "DIAMOND", "MASTER", "GRANDMASTER", "CHALLENGER",
}

// apexTiers have no divisions.
var apexTiers = map[string]bool{
	"UNRANKED":    true,
	"MASTER":      true,
	"GRANDMASTER": true,
	"CHALLENGER":  true,
}

// Profile is a member's registered game identity.
type Profile struct {
	MemberID     string    `json:"member_id"`
	SummonerName string    `json:"summoner_name"` // name#tag
	PUUID        string    `json:"puuid,omitempty"`
	Tier         string    `json:"tier"`
	Division     int       `json:"division,omitempty"` // 1-4, 0 for apex tiers
	MainLane     Role      `json:"main_lane"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RankDisplay renders the rank as "GOLD 2" or "MASTER".
func (p *Profile) RankDisplay() string {
	if p.Division == 0 {
		return p.Tier
	}
	return fmt.Sprintf("%s %d", p.Tier, p.Division)
}

// Validate checks the summoner name, tier/division combination and lane.
func (p *Profile) Validate() error {
	if err := ValidateSummonerName(p.SummonerName); err != nil {
		return err
	}
	if err := ValidateRank(p.Tier, p.Division); err != nil {
		return err
	}
	if p.MainLane != RoleUnassigned && !p.MainLane.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// ValidateSummonerName requires a non-empty name and tag separated by '#'.
func ValidateSummonerName(name string) error {
	if utf8.RuneCountInString(name) > MaxSummonerNameLength {
		return ErrSummonerNameTooLong
	}
	game, tag, ok := strings.Cut(name, "#")
	if !ok || strings.TrimSpace(game) == "" || strings.TrimSpace(tag) == "" {
		return ErrSummonerNameFormat
	}
	return nil
}

// SplitSummonerName returns the game name and tag line of "name#tag".
func SplitSummonerName(name string) (gameName, tagLine string) {
	gameName, tagLine, _ = strings.Cut(name, "#")
	return strings.TrimSpace(gameName), strings.TrimSpace(tagLine)
}

// ValidateRank checks that apex tiers carry no division and the others carry 1-4.
func ValidateRank(tier string, division int) error {
	known := false
	for _, t := range Tiers {
		if t == tier {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownTier
	}
	if apexTiers[tier] {
		if division != 0 {
			return ErrDivisionNotAllowed
		}
		return nil
	}
	if division < 1 || division > 4 {
		return ErrDivisionRequired
	}
	return nil
}

// NormalizeTier uppercases a tier name.
func NormalizeTier(tier string) string {
	return strings.ToUpper(strings.TrimSpace(tier))
}
