package gateway

import (
	"context"
	"strings"

	"github.com/NicolasHaas/partyvc/pkg/model"
)

// InteractionKind distinguishes slash commands from component clicks.
type InteractionKind int

const (
	KindCommand InteractionKind = iota + 1
	KindButton
)

// Interaction is a member's command or button click, stripped of platform
// details.
type Interaction struct {
	Kind       InteractionKind
	Name       string // command name, or the custom id of a button
	MemberID   string
	MemberName string
	Admin      bool   // the member holds the administrator permission
	ChannelID  string // where the interaction happened
	Options    map[string]string
}

// Option returns a trimmed command option, "" when absent.
func (i Interaction) Option(name string) string {
	return strings.TrimSpace(i.Options[name])
}

// HasOption reports whether the member supplied an option.
func (i Interaction) HasOption(name string) bool {
	_, ok := i.Options[name]
	return ok
}

// ButtonStyle selects the look of a button.
type ButtonStyle int

const (
	StylePrimary ButtonStyle = iota + 1
	StyleSecondary
	StyleSuccess
	StyleDanger
)

// Button is a clickable component. ID comes back as Interaction.Name.
type Button struct {
	Label    string
	ID       string
	Style    ButtonStyle
	Disabled bool
}

// Field is one titled line of a Card.
type Field struct {
	Name  string
	Value string
}

// Card is a rich message body.
type Card struct {
	Title       string
	Description string
	Fields      []Field
	Thumbnail   string
}

// Reply answers an interaction. Ephemeral replies are only shown to the
// member who asked.
type Reply struct {
	Content   string
	Ephemeral bool
	Card      *Card
	Buttons   []Button
}

// InteractionHandler answers interactions.
type InteractionHandler func(ctx context.Context, in Interaction) Reply

// Announcer posts session announcements.
type Announcer interface {
	Announce(ctx context.Context, channelID string, card Card, buttons []Button) (model.AnnouncementRef, error)
}

// ClosedNotice is appended to an announcement once its session is gone.
const ClosedNotice = "**This recruitment has ended**"

// InteractionSource delivers member interactions to a handler.
type InteractionSource interface {
	OnInteraction(h InteractionHandler)
}

// Subscriber delivers occupancy events to a sink.
type Subscriber interface {
	Subscribe(sink EventSink)
}
