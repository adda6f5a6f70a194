// Package discord implements the gateway interfaces on top of a discordgo
// session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/logging"
	"github.com/NicolasHaas/partyvc/pkg/model"
)

// Gateway adapts one guild of a discordgo session.
type Gateway struct {
	s       *discordgo.Session
	guildID string
	logger  *slog.Logger

	mu      sync.Mutex
	sink    gateway.EventSink
	handler gateway.InteractionHandler
	removes []func()
}

var (
	_ gateway.Gateway           = (*Gateway)(nil)
	_ gateway.Announcer         = (*Gateway)(nil)
	_ gateway.Subscriber        = (*Gateway)(nil)
	_ gateway.InteractionSource = (*Gateway)(nil)
)

// New wraps s. The session must track voice states for Occupants to work.
func New(s *discordgo.Session, guildID string, logger *slog.Logger) *Gateway {
	g := &Gateway{s: s, guildID: guildID, logger: logging.Component(logger, "discord")}
	g.removes = append(g.removes,
		s.AddHandler(g.onVoiceStateUpdate),
		s.AddHandler(g.onInteractionCreate),
	)
	return g
}

// Intents are the gateway intents the adapter depends on.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

// Close detaches the event handlers.
func (g *Gateway) Close() {
	for _, rm := range g.removes {
		rm()
	}
	g.removes = nil
}

// Subscribe implements gateway.Subscriber.
func (g *Gateway) Subscribe(sink gateway.EventSink) {
	g.mu.Lock()
	g.sink = sink
	g.mu.Unlock()
}

// OnInteraction implements gateway.InteractionSource.
func (g *Gateway) OnInteraction(h gateway.InteractionHandler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

func (g *Gateway) CreateVoiceChannel(ctx context.Context, spec gateway.ChannelSpec) (string, error) {
	ch, err := g.s.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name:      spec.Name,
		Type:      discordgo.ChannelTypeGuildVoice,
		UserLimit: spec.Capacity,
		ParentID:  spec.Category,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create voice channel %q: %w", spec.Name, mapError(err))
	}
	return ch.ID, nil
}

func (g *Gateway) DeleteVoiceChannel(ctx context.Context, channelID string) error {
	if _, err := g.s.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete voice channel %s: %w", channelID, mapError(err))
	}
	return nil
}

// Occupants reads the voice states cached by the session. A channel the
// cache does not know is looked up over REST so a deleted channel reports
// ErrNotFound instead of an empty list.
func (g *Gateway) Occupants(ctx context.Context, channelID string) ([]string, error) {
	if _, err := g.s.State.Channel(channelID); err != nil {
		if _, err := g.s.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
			return nil, fmt.Errorf("channel %s: %w", channelID, mapError(err))
		}
	}
	guild, err := g.s.State.Guild(g.guildID)
	if err != nil {
		return nil, fmt.Errorf("guild %s not cached: %w", g.guildID, err)
	}

	g.s.State.RLock()
	defer g.s.State.RUnlock()
	return occupantsOf(guild.VoiceStates, channelID), nil
}

func occupantsOf(states []*discordgo.VoiceState, channelID string) []string {
	var out []string
	for _, vs := range states {
		if vs != nil && vs.ChannelID == channelID {
			out = append(out, vs.UserID)
		}
	}
	return out
}

func (g *Gateway) RelocateMember(ctx context.Context, memberID, channelID string) error {
	target := channelID
	if err := g.s.GuildMemberMove(g.guildID, memberID, &target, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: move %s to %s: %w", gateway.ErrRelocateFailed, memberID, channelID, mapError(err))
	}
	return nil
}

// Announce posts a session card with its buttons.
func (g *Gateway) Announce(ctx context.Context, channelID string, card gateway.Card, buttons []gateway.Button) (model.AnnouncementRef, error) {
	msg, err := g.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{toEmbed(card)},
		Components: toComponents(buttons),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return model.AnnouncementRef{}, fmt.Errorf("announce in %s: %w", channelID, mapError(err))
	}
	return model.AnnouncementRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

// CloseAnnouncement disables every button of the message and appends the
// closed notice to its first embed.
func (g *Gateway) CloseAnnouncement(ctx context.Context, ref model.AnnouncementRef) error {
	msg, err := g.s.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("fetch announcement %s/%s: %w", ref.ChannelID, ref.MessageID, mapError(err))
	}

	components := disableButtons(msg.Components)
	embeds := closedEmbeds(msg.Embeds)
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	edit.Components = &components
	edit.Embeds = &embeds
	if _, err := g.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit announcement %s/%s: %w", ref.ChannelID, ref.MessageID, mapError(err))
	}
	return nil
}

func disableButtons(rows []discordgo.MessageComponent) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, c := range rows {
		row, ok := asActionsRow(c)
		if !ok {
			out = append(out, c)
			continue
		}
		next := discordgo.ActionsRow{}
		for _, inner := range row.Components {
			if b, ok := asButton(inner); ok {
				b.Disabled = true
				next.Components = append(next.Components, b)
				continue
			}
			next.Components = append(next.Components, inner)
		}
		out = append(out, next)
	}
	return out
}

func asActionsRow(c discordgo.MessageComponent) (discordgo.ActionsRow, bool) {
	switch v := c.(type) {
	case discordgo.ActionsRow:
		return v, true
	case *discordgo.ActionsRow:
		return *v, true
	}
	return discordgo.ActionsRow{}, false
}

func asButton(c discordgo.MessageComponent) (discordgo.Button, bool) {
	switch v := c.(type) {
	case discordgo.Button:
		return v, true
	case *discordgo.Button:
		return *v, true
	}
	return discordgo.Button{}, false
}

func closedEmbeds(embeds []*discordgo.MessageEmbed) []*discordgo.MessageEmbed {
	if len(embeds) == 0 {
		return []*discordgo.MessageEmbed{{Description: gateway.ClosedNotice}}
	}
	out := make([]*discordgo.MessageEmbed, len(embeds))
	copy(out, embeds)
	first := *out[0]
	if first.Description == "" {
		first.Description = gateway.ClosedNotice
	} else {
		first.Description += "\n\n" + gateway.ClosedNotice
	}
	out[0] = &first
	return out
}

func (g *Gateway) onVoiceStateUpdate(_ *discordgo.Session, ev *discordgo.VoiceStateUpdate) {
	if ev.VoiceState == nil || ev.GuildID != g.guildID {
		return
	}
	before := ""
	if ev.BeforeUpdate != nil {
		before = ev.BeforeUpdate.ChannelID
	}

	g.mu.Lock()
	sink := g.sink
	g.mu.Unlock()
	if sink == nil {
		return
	}
	for _, e := range gateway.Transitions(ev.UserID, before, ev.ChannelID) {
		sink(e)
	}
}

func (g *Gateway) onInteractionCreate(s *discordgo.Session, ev *discordgo.InteractionCreate) {
	if ev.Interaction == nil || ev.GuildID != g.guildID {
		return
	}
	in, ok := fromInteraction(ev.Interaction)
	if !ok {
		return
	}

	g.mu.Lock()
	h := g.handler
	g.mu.Unlock()
	if h == nil {
		return
	}

	reply := h(context.Background(), in)
	if err := s.InteractionRespond(ev.Interaction, toResponse(reply)); err != nil {
		g.logger.Warn("interaction response failed", "name", in.Name, "member", in.MemberID, "error", err)
	}
}

// mapError translates REST failures into gateway errors.
func mapError(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return err
	}
	switch rest.Response.StatusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", gateway.ErrForbidden, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", gateway.ErrNotFound, err)
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("%w: %w", gateway.ErrForbidden, err)
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage:
			return fmt.Errorf("%w: %w", gateway.ErrNotFound, err)
		}
	}
	return err
}
