package discord

import (
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/partyvc/pkg/gateway"
)

// maxButtonsPerRow is the platform limit for one action row.
const maxButtonsPerRow = 5

// embedColor is the accent of every card.
const embedColor = 0x5865F2

func toEmbed(card gateway.Card) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       card.Title,
		Description: card.Description,
		Color:       embedColor,
	}
	for _, f := range card.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	if card.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: card.Thumbnail}
	}
	return e
}

func toStyle(s gateway.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case gateway.StyleSecondary:
		return discordgo.SecondaryButton
	case gateway.StyleSuccess:
		return discordgo.SuccessButton
	case gateway.StyleDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

// toComponents lays buttons out in rows of at most five.
func toComponents(buttons []gateway.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += maxButtonsPerRow {
		end := min(start+maxButtonsPerRow, len(buttons))
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				CustomID: b.ID,
				Style:    toStyle(b.Style),
				Disabled: b.Disabled,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func toResponse(r gateway.Reply) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{
		Content:    r.Content,
		Components: toComponents(r.Buttons),
	}
	if r.Card != nil {
		data.Embeds = []*discordgo.MessageEmbed{toEmbed(*r.Card)}
	}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

// fromInteraction converts slash commands and button clicks. Other
// interaction types report false.
func fromInteraction(i *discordgo.Interaction) (gateway.Interaction, bool) {
	in := gateway.Interaction{ChannelID: i.ChannelID}
	switch {
	case i.Member != nil && i.Member.User != nil:
		in.MemberID = i.Member.User.ID
		in.MemberName = i.Member.DisplayName()
		in.Admin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	case i.User != nil:
		in.MemberID = i.User.ID
		in.MemberName = i.User.DisplayName()
	default:
		return gateway.Interaction{}, false
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		in.Kind = gateway.KindCommand
		in.Name = data.Name
		in.Options = make(map[string]string, len(data.Options))
		for _, o := range data.Options {
			in.Options[o.Name] = optionString(o)
		}
	case discordgo.InteractionMessageComponent:
		in.Kind = gateway.KindButton
		in.Name = i.MessageComponentData().CustomID
	default:
		return gateway.Interaction{}, false
	}
	return in, true
}

func optionString(o *discordgo.ApplicationCommandInteractionDataOption) string {
	switch v := o.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
