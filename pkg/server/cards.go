package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/model"
	"github.com/NicolasHaas/partyvc/pkg/profile"
	"github.com/NicolasHaas/partyvc/pkg/rbac"
	"github.com/NicolasHaas/partyvc/pkg/recruit"
)

var errRegisterFirst = errors.New("register first with /register")

// userErrors are shown to the member as their message.
var userErrors = []error{
	model.ErrInvalidRole,
	model.ErrInvalidPurpose,
	model.ErrTitleTooLong,
	model.ErrCapacity,
	model.ErrSummonerNameFormat,
	model.ErrSummonerNameTooLong,
	model.ErrUnknownTier,
	model.ErrDivisionNotAllowed,
	model.ErrDivisionRequired,
	ErrDraftSize,
}

// userMessage turns an error into text for the member. expected is false
// for errors that indicate a bot or platform problem.
func userMessage(err error) (msg string, expected bool) {
	switch {
	case errors.Is(err, recruit.ErrSessionGone):
		return "This recruitment has already ended.", true
	case errors.Is(err, errRegisterFirst):
		return "Register your profile first with /register.", true
	case errors.Is(err, rbac.ErrPermissionDenied):
		return "You are not allowed to do that.", true
	case errors.Is(err, gateway.ErrForbidden):
		return "The bot is missing permissions for that. Please contact an administrator.", false
	case errors.Is(err, profile.ErrAlreadyRegistered):
		return "You are already registered. Use /update_profile to change your profile.", true
	case errors.Is(err, profile.ErrNotRegistered):
		return "You have no profile yet. Use /register first.", true
	case errors.Is(err, profile.ErrNothingToUpdate):
		return "Give at least one field to update.", true
	case errors.Is(err, profile.ErrAccountNotFound):
		return "No account with that summoner name was found.", true
	case errors.Is(err, profile.ErrNoRankedEntry):
		return "No ranked solo queue standing was found.", true
	case errors.Is(err, profile.ErrLookupDisabled):
		return "Rank lookups are not available on this server.", true
	}
	for _, ue := range userErrors {
		if errors.Is(err, ue) {
			return capitalize(ue.Error()) + ".", true
		}
	}
	return "Something went wrong. Please try again.", false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// sessionButtons are the controls of an announcement.
func sessionButtons(sessionID string, disabled bool) []gateway.Button {
	return []gateway.Button{
		{Label: "Join team", ID: JoinButtonID(sessionID), Style: gateway.StyleSuccess, Disabled: disabled},
		{Label: "Show members", ID: MembersButtonID(sessionID), Style: gateway.StylePrimary, Disabled: disabled},
	}
}

func roleButtons(sessionID string) []gateway.Button {
	buttons := make([]gateway.Button, 0, len(model.Roles))
	for _, r := range model.Roles {
		style := gateway.StylePrimary
		if r == model.RoleFill {
			style = gateway.StyleSecondary
		}
		buttons = append(buttons, gateway.Button{Label: r.Label(), ID: RoleButtonID(sessionID, r), Style: style})
	}
	return buttons
}

func sessionCard(sess model.Session, creator *model.Profile, recruits int) gateway.Card {
	title := sess.Title
	if title == "" {
		title = "Team recruitment: " + model.PurposeLabel(sess.Purpose)
	}
	desc := fmt.Sprintf("Creator: <@%s>", sess.CreatorID)
	if creator != nil {
		desc += " (" + creator.SummonerName + ")"
	}

	card := gateway.Card{Title: title, Description: desc}
	rank := "Not registered"
	if creator != nil {
		rank = creator.RankDisplay()
		card.Thumbnail = rankEmblemURL(creator.Tier)
	}
	wanted := "Unlimited"
	if recruits > 0 {
		wanted = fmt.Sprintf("%d", recruits)
	}
	card.Fields = []gateway.Field{
		{Name: "Creator rank", Value: rank},
		{Name: "Creator role", Value: sess.Members[sess.CreatorID].Label()},
		{Name: "Looking for", Value: wanted},
		{Name: "Voice channel", Value: fmt.Sprintf("<#%s>", sess.ChannelID)},
	}
	return card
}

func membersCard(snap recruit.MemberSnapshot) gateway.Card {
	card := gateway.Card{Title: "Team members"}
	for _, m := range snap.Members {
		name := m.Role.Label()
		if m.Creator {
			name += " (creator)"
		}
		value := fmt.Sprintf("<@%s>", m.MemberID)
		if m.Profile != nil {
			value += fmt.Sprintf("\nSummoner: %s\nRank: %s", m.Profile.SummonerName, m.Profile.RankDisplay())
		}
		card.Fields = append(card.Fields, gateway.Field{Name: name, Value: value})
	}

	var inVoice []string
	for _, m := range snap.Members {
		if m.Present {
			inVoice = append(inVoice, fmt.Sprintf("<@%s>", m.MemberID))
		}
	}
	for _, id := range snap.Visitors {
		inVoice = append(inVoice, fmt.Sprintf("<@%s>", id))
	}
	voice := "Nobody is connected"
	switch {
	case !snap.OccupancyKnown:
		voice = "Unknown"
	case len(inVoice) > 0:
		voice = strings.Join(inVoice, "\n")
	}
	card.Fields = append(card.Fields, gateway.Field{Name: "In voice now", Value: voice})
	return card
}

func profileCard(p *model.Profile) gateway.Card {
	lane := "Not set"
	if p.MainLane.Valid() {
		lane = p.MainLane.Label()
	}
	return gateway.Card{
		Title:     "Profile: " + p.SummonerName,
		Thumbnail: rankEmblemURL(p.Tier),
		Fields: []gateway.Field{
			{Name: "Rank", Value: p.RankDisplay()},
			{Name: "Main lane", Value: lane},
		},
	}
}

// rankEmblemURL returns the ranked emblem image of a tier.
func rankEmblemURL(tier string) string {
	if tier == "" {
		return ""
	}
	return "https://raw.communitydragon.org/latest/plugins/rcp-fe-lol-static-assets/global/default/images/ranked-emblem/emblem-" +
		strings.ToLower(tier) + ".png"
}
