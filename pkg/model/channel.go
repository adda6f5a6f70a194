package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	PurposeRanked = "ranked"
	PurposeNormal = "normal"
	PurposeOther  = "other"

	MaxChannelNameLength = 100
	MaxPurposeLength     = 32
	MaxTitleLength       = 100
)

var ErrInvalidPurpose = errors.New("purpose must be 1-32 characters")
var ErrTitleTooLong = errors.New("title too long")

// purposeLabels holds display names for the well-known purposes. Other tags
// are shown as typed.
var purposeLabels = map[string]string{
	PurposeRanked: "Ranked",
	PurposeNormal: "Normal",
	PurposeOther:  "Other",
}

// NormalizePurpose lowercases and validates a purpose tag.
func NormalizePurpose(purpose string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(purpose))
	if p == "" || utf8.RuneCountInString(p) > MaxPurposeLength {
		return "", ErrInvalidPurpose
	}
	return p, nil
}

// PurposeLabel returns the display name of a purpose tag.
func PurposeLabel(purpose string) string {
	if label, ok := purposeLabels[purpose]; ok {
		return label
	}
	return purpose
}

// ChannelName builds the voice channel name for a creator's session,
// e.g. "Faker's Ranked team". The result is truncated to the platform limit.
func ChannelName(creatorName, purpose string) string {
	creator := strings.TrimSpace(creatorName)
	if creator == "" {
		creator = "Someone"
	}
	name := creator + "'s " + PurposeLabel(purpose) + " team"
	if utf8.RuneCountInString(name) > MaxChannelNameLength {
		runes := []rune(name)
		name = string(runes[:MaxChannelNameLength])
	}
	return name
}
