package model

import (
	"maps"
	"time"
)

// AnnouncementRef locates the externally rendered summary of a session.
type AnnouncementRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Session is one recruitment instance: a creator, a voice channel and a
// member/role roster. ChannelID never changes after creation.
type Session struct {
	ID           string           `json:"id"`
	CreatorID    string           `json:"creator_id"`
	Purpose      string           `json:"purpose"`
	Title        string           `json:"title,omitempty"`
	ChannelID    string           `json:"channel_id"`
	Members      map[string]Role  `json:"members"`
	Capacity     int              `json:"capacity"` // 0 = unlimited, advisory only
	CreatedAt    time.Time        `json:"created_at"`
	Announcement *AnnouncementRef `json:"announcement,omitempty"`
}

// Clone returns a deep copy safe to hand outside the owning loop.
func (s *Session) Clone() Session {
	c := *s
	c.Members = maps.Clone(s.Members)
	if c.Members == nil {
		c.Members = make(map[string]Role)
	}
	if s.Announcement != nil {
		ref := *s.Announcement
		c.Announcement = &ref
	}
	return c
}

// IsMember reports whether memberID is on the roster.
func (s *Session) IsMember(memberID string) bool {
	_, ok := s.Members[memberID]
	return ok
}

// Full reports whether the roster reached the advisory capacity.
func (s *Session) Full() bool {
	return s.Capacity > 0 && len(s.Members) >= s.Capacity
}

// PendingJoin is a member's accepted join intent that is not yet reflected
// in channel occupancy.
type PendingJoin struct {
	MemberID   string
	SessionID  string
	ChannelID  string
	AcceptedAt time.Time
}

// Expired reports whether the intent is older than ttl. A zero ttl never expires.
func (p PendingJoin) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(p.AcceptedAt) > ttl
}
