package gateway

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/NicolasHaas/partyvc/pkg/model"
)

// Memory is an in-process Gateway. It keeps channels and member locations in
// maps, emits occupancy events for every move, and records the calls the
// engine makes so tests can assert on them.
type Memory struct {
	mu sync.Mutex

	nextID   int
	channels map[string]*memoryChannel
	location map[string]string // member -> channel
	sink     EventSink

	// Fault injection. A nil value means the call succeeds.
	CreateErr   error
	DeleteErr   error
	RelocateErr error
	CloseErr    error
	AnnounceErr error

	nextMessage int
	announced   []Announcement
	created     []ChannelSpec
	deleted     []string
	relocations []Relocation
	closed      []model.AnnouncementRef
}

type memoryChannel struct {
	spec ChannelSpec
}

// Announcement records one Announce call.
type Announcement struct {
	Ref     model.AnnouncementRef
	Card    Card
	Buttons []Button
}

// Relocation records one RelocateMember call.
type Relocation struct {
	MemberID  string
	ChannelID string
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		nextID:   1,
		channels: make(map[string]*memoryChannel),
		location: make(map[string]string),
	}
}

// Subscribe sets the sink receiving occupancy events. Events are delivered
// synchronously from the goroutine that caused them, outside the lock.
func (m *Memory) Subscribe(sink EventSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

func (m *Memory) CreateVoiceChannel(_ context.Context, spec ChannelSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	id := "vc-" + strconv.Itoa(m.nextID)
	m.nextID++
	m.channels[id] = &memoryChannel{spec: spec}
	m.created = append(m.created, spec)
	return id, nil
}

// AddChannel registers a channel that exists outside the engine, such as a
// lobby members wait in.
func (m *Memory) AddChannel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[id] = &memoryChannel{spec: ChannelSpec{Name: id}}
}

func (m *Memory) DeleteVoiceChannel(_ context.Context, channelID string) error {
	m.mu.Lock()
	if m.DeleteErr != nil {
		err := m.DeleteErr
		m.mu.Unlock()
		return err
	}
	m.deleted = append(m.deleted, channelID)
	if _, ok := m.channels[channelID]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.channels, channelID)

	var events []OccupancyEvent
	for member, ch := range m.location {
		if ch == channelID {
			delete(m.location, member)
			events = append(events, OccupancyEvent{ChannelID: channelID, MemberID: member, Kind: Left})
		}
	}
	sink := m.sink
	m.mu.Unlock()

	deliver(sink, events)
	return nil
}

func (m *Memory) Occupants(_ context.Context, channelID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channelID]; !ok {
		return nil, ErrNotFound
	}
	var members []string
	for member, ch := range m.location {
		if ch == channelID {
			members = append(members, member)
		}
	}
	sort.Strings(members)
	return members, nil
}

// RelocateMember moves a connected member. Members who are not connected
// to voice cannot be moved, as on the real platform.
func (m *Memory) RelocateMember(_ context.Context, memberID, channelID string) error {
	m.mu.Lock()
	m.relocations = append(m.relocations, Relocation{MemberID: memberID, ChannelID: channelID})
	if m.RelocateErr != nil {
		err := m.RelocateErr
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrRelocateFailed, err)
	}
	if _, ok := m.channels[channelID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrRelocateFailed, ErrNotFound)
	}
	before, ok := m.location[memberID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: member %s not connected", ErrRelocateFailed, memberID)
	}
	m.location[memberID] = channelID
	sink := m.sink
	m.mu.Unlock()

	deliver(sink, Transitions(memberID, before, channelID))
	return nil
}

func (m *Memory) CloseAnnouncement(_ context.Context, ref model.AnnouncementRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CloseErr != nil {
		return m.CloseErr
	}
	m.closed = append(m.closed, ref)
	return nil
}

// Announce records the card and returns a reference "msg-N".
func (m *Memory) Announce(_ context.Context, channelID string, card Card, buttons []Button) (model.AnnouncementRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AnnounceErr != nil {
		return model.AnnouncementRef{}, m.AnnounceErr
	}
	m.nextMessage++
	ref := model.AnnouncementRef{ChannelID: channelID, MessageID: "msg-" + strconv.Itoa(m.nextMessage)}
	m.announced = append(m.announced, Announcement{Ref: ref, Card: card, Buttons: buttons})
	return ref, nil
}

// Announced returns every posted announcement.
func (m *Memory) Announced() []Announcement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Announcement(nil), m.announced...)
}

// Connect moves a member into channelID the way a user clicking a channel
// would. An empty channelID disconnects the member.
func (m *Memory) Connect(memberID, channelID string) error {
	m.mu.Lock()
	if channelID != "" {
		if _, ok := m.channels[channelID]; !ok {
			m.mu.Unlock()
			return ErrNotFound
		}
	}
	before := m.location[memberID]
	if channelID == "" {
		delete(m.location, memberID)
	} else {
		m.location[memberID] = channelID
	}
	sink := m.sink
	m.mu.Unlock()

	deliver(sink, Transitions(memberID, before, channelID))
	return nil
}

// Disconnect removes a member from voice.
func (m *Memory) Disconnect(memberID string) error {
	return m.Connect(memberID, "")
}

// RemoveChannel deletes a channel behind the engine's back, without events.
func (m *Memory) RemoveChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channelID)
	for member, ch := range m.location {
		if ch == channelID {
			delete(m.location, member)
		}
	}
}

// Exists reports whether channelID is a live channel.
func (m *Memory) Exists(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[channelID]
	return ok
}

// Location returns the channel a member is connected to, or "".
func (m *Memory) Location(memberID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location[memberID]
}

// Created returns the specs of every successfully created channel.
func (m *Memory) Created() []ChannelSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChannelSpec(nil), m.created...)
}

// Deleted returns every channel id passed to DeleteVoiceChannel.
func (m *Memory) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// Relocations returns every RelocateMember call, including failed ones.
func (m *Memory) Relocations() []Relocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Relocation(nil), m.relocations...)
}

// Closed returns every announcement successfully closed.
func (m *Memory) Closed() []model.AnnouncementRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AnnouncementRef(nil), m.closed...)
}

var (
	_ Gateway   = (*Memory)(nil)
	_ Announcer = (*Memory)(nil)
)

func deliver(sink EventSink, events []OccupancyEvent) {
	if sink == nil {
		return
	}
	for _, ev := range events {
		sink(ev)
	}
}

var _ Subscriber = (*Memory)(nil)
