// Package gateway defines what the recruitment engine needs from the voice
// platform: voice channel lifecycle, occupancy queries and events, member
// relocation and closing announcements.
package gateway

import (
	"context"
	"errors"

	"github.com/NicolasHaas/partyvc/pkg/model"
)

var (
	// ErrForbidden is returned when the platform denies a privileged operation.
	ErrForbidden = errors.New("gateway: forbidden")
	// ErrNotFound is returned when a channel or message no longer exists.
	ErrNotFound = errors.New("gateway: not found")
	// ErrRelocateFailed wraps any failure to move a member.
	ErrRelocateFailed = errors.New("gateway: relocate failed")
)

// ChannelSpec describes a voice channel to create.
type ChannelSpec struct {
	Name     string
	Category string // parent category id, empty for none
	Capacity int    // user limit, 0 = unlimited
}

// Gateway is the voice platform as seen by the recruitment engine.
// Implementations must be safe for concurrent use.
type Gateway interface {
	CreateVoiceChannel(ctx context.Context, spec ChannelSpec) (string, error)
	DeleteVoiceChannel(ctx context.Context, channelID string) error
	// Occupants returns the members currently connected to channelID.
	Occupants(ctx context.Context, channelID string) ([]string, error)
	RelocateMember(ctx context.Context, memberID, channelID string) error
	// CloseAnnouncement disables the join controls of a session announcement
	// and marks it closed.
	CloseAnnouncement(ctx context.Context, ref model.AnnouncementRef) error
}

// EventKind tells whether a member entered or left a channel.
type EventKind int

const (
	Joined EventKind = iota + 1
	Left
)

func (k EventKind) String() string {
	switch k {
	case Joined:
		return "joined"
	case Left:
		return "left"
	default:
		return "unknown"
	}
}

// OccupancyEvent reports one member entering or leaving one voice channel.
// A move between channels is delivered as Left followed by Joined.
type OccupancyEvent struct {
	ChannelID string
	MemberID  string
	Kind      EventKind
}

// EventSink consumes occupancy events. It must not block for long.
type EventSink func(OccupancyEvent)

// Transitions converts a voice state change into occupancy events.
// before or after is empty when the member was or is disconnected.
func Transitions(memberID, before, after string) []OccupancyEvent {
	if before == after {
		return nil
	}
	var events []OccupancyEvent
	if before != "" {
		events = append(events, OccupancyEvent{ChannelID: before, MemberID: memberID, Kind: Left})
	}
	if after != "" {
		events = append(events, OccupancyEvent{ChannelID: after, MemberID: memberID, Kind: Joined})
	}
	return events
}
