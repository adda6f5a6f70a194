package discord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/partyvc/pkg/model"
)

func stringOpt(name, desc string, required bool, choices ...*discordgo.ApplicationCommandOptionChoice) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
		Choices:     choices,
	}
}

func choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{Name: name, Value: value}
}

func roleChoices() []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(model.Roles))
	for _, r := range model.Roles {
		out = append(out, choice(r.Label(), r.String()))
	}
	return out
}

func tierChoices() []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(model.Tiers))
	for _, t := range model.Tiers {
		out = append(out, choice(t, t))
	}
	return out
}

func divisionChoices() []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, 4)
	for d := 1; d <= 4; d++ {
		out = append(out, choice(strconv.Itoa(d), strconv.Itoa(d)))
	}
	return out
}

func profileOptions(required bool) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		stringOpt("summoner_name", "Riot ID, e.g. Name#TAG", required),
		stringOpt("rank", "Solo queue tier", required, tierChoices()...),
		stringOpt("division", "Division, not used for Master and above", false, divisionChoices()...),
		stringOpt("main_lane", "Preferred role", false, roleChoices()...),
	}
}

// Commands returns the slash command schema.
func Commands() []*discordgo.ApplicationCommand {
	minRecruits := 0.0
	adminOnly := int64(discordgo.PermissionAdministrator)

	return []*discordgo.ApplicationCommand{
		{
			Name:        "create",
			Description: "Start a team recruitment with its own voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("purpose", "Game mode", true,
					choice("Ranked", model.PurposeRanked),
					choice("Normal", model.PurposeNormal),
					choice("Other", model.PurposeOther),
				),
				stringOpt("role", "Your role, defaults to your main lane", false, roleChoices()...),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "recruits",
					Description: "How many players you are looking for, 0 for unlimited",
					MinValue:    &minRecruits,
					MaxValue:    98,
				},
				stringOpt("title", "Announcement title", false),
			},
		},
		{
			Name:        "register",
			Description: "Register your game profile",
			Options:     profileOptions(true),
		},
		{
			Name:        "update_profile",
			Description: "Change your game profile",
			Options:     profileOptions(false),
		},
		{Name: "profile", Description: "Show your game profile"},
		{Name: "unregister", Description: "Delete your game profile"},
		{Name: "refresh_rank", Description: "Update your rank from the game API"},
		{
			Name:        "close",
			Description: "Close a recruitment and delete its voice channel",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "channel",
				Description:  "Voice channel of the recruitment, defaults to this channel",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
			}},
		},
		{
			Name:                     "db_cleanup",
			Description:              "Remove recruitment records whose voice channel is gone",
			DefaultMemberPermissions: &adminOnly,
		},
	}
}

// RegisterCommands replaces the guild's slash commands with Commands.
func (g *Gateway) RegisterCommands(ctx context.Context, appID string) error {
	cmds, err := g.s.ApplicationCommandBulkOverwrite(appID, g.guildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register commands: %w", mapError(err))
	}
	g.logger.Info("slash commands registered", "count", len(cmds))
	return nil
}
