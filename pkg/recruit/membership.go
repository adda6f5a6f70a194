package recruit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/model"
)

// CreateRequest describes a new session.
type CreateRequest struct {
	CreatorID   string
	CreatorName string // display name used in the channel name
	Purpose     string
	Title       string
	Role        model.Role // the creator's lane
	Capacity    int        // advisory member count, 0 = unlimited
}

func (r *CreateRequest) validate() error {
	if r.CreatorID == "" {
		return errors.New("recruit: creator id is required")
	}
	purpose, err := model.NormalizePurpose(r.Purpose)
	if err != nil {
		return err
	}
	r.Purpose = purpose
	if !r.Role.Valid() {
		return model.ErrInvalidRole
	}
	if err := model.ValidateCapacity(r.Capacity); err != nil {
		return err
	}
	r.Title = strings.TrimSpace(r.Title)
	if utf8.RuneCountInString(r.Title) > model.MaxTitleLength {
		return model.ErrTitleTooLong
	}
	return nil
}

// CreateSession creates the voice channel and then records the session with
// the creator as its first member. If the channel cannot be created no
// session is recorded.
func (e *Engine) CreateSession(ctx context.Context, req CreateRequest) (model.Session, error) {
	if err := req.validate(); err != nil {
		e.metrics.CreateFailures.Add(1)
		return model.Session{}, fmt.Errorf("recruit: create session: %w", err)
	}

	channelID, err := e.gw.CreateVoiceChannel(ctx, gateway.ChannelSpec{
		Name:     model.ChannelName(req.CreatorName, req.Purpose),
		Category: e.cfg.Category,
		Capacity: req.Capacity,
	})
	if err != nil {
		e.metrics.CreateFailures.Add(1)
		return model.Session{}, fmt.Errorf("recruit: create channel: %w", err)
	}

	sess := model.Session{
		ID:        e.newID(),
		CreatorID: req.CreatorID,
		Purpose:   req.Purpose,
		Title:     req.Title,
		ChannelID: channelID,
		Members:   map[string]model.Role{req.CreatorID: req.Role},
		Capacity:  req.Capacity,
		CreatedAt: e.clock.Now(),
	}

	var insertErr error
	err = e.do(ctx, func() {
		if insertErr = e.store.create(sess); insertErr != nil {
			return
		}
		e.metrics.SessionsCreated.Add(1)
		e.saveState()
	})
	if err == nil {
		err = insertErr
	}
	if err != nil {
		e.metrics.CreateFailures.Add(1)
		// A duplicate id belongs to a live session and must survive.
		if !errors.Is(err, ErrDuplicateChannel) {
			e.discardChannel(ctx, channelID)
		}
		return model.Session{}, fmt.Errorf("recruit: create session: %w", err)
	}

	e.logger.Info("session created",
		"session", sess.ID,
		"creator", sess.CreatorID,
		"purpose", sess.Purpose,
		"channel", sess.ChannelID,
		"capacity", sess.Capacity,
	)
	return sess.Clone(), nil
}

// discardChannel deletes a channel that never got a session.
func (e *Engine) discardChannel(ctx context.Context, channelID string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CallTimeout)
	defer cancel()
	if err := e.gw.DeleteVoiceChannel(dctx, channelID); err != nil {
		e.metrics.DeleteFailures.Add(1)
		e.logger.Warn("failed to delete unused channel", "channel", channelID, "err", err)
	}
}

// JoinStatus is the outcome of RequestJoin.
type JoinStatus int

const (
	// NeedsRoleSelection means the member must pick a role via AssignRole.
	NeedsRoleSelection JoinStatus = iota + 1
	// AlreadyMember means the member is on the roster already.
	AlreadyMember
)

func (s JoinStatus) String() string {
	switch s {
	case NeedsRoleSelection:
		return "needs_role_selection"
	case AlreadyMember:
		return "already_member"
	default:
		return "unknown"
	}
}

// RequestJoin reports what a member must do to join a session. It does not
// change any state.
func (e *Engine) RequestJoin(ctx context.Context, sessionID, memberID string) (JoinStatus, error) {
	var status JoinStatus
	var opErr error
	err := e.do(ctx, func() {
		sess, ok := e.store.get(sessionID)
		if !ok {
			opErr = ErrSessionGone
			return
		}
		if sess.IsMember(memberID) {
			status = AlreadyMember
			return
		}
		status = NeedsRoleSelection
	})
	if err != nil {
		return 0, err
	}
	return status, opErr
}

// AssignRole records memberID with role and registers a pending join so the
// member is moved into the session channel when they next connect to voice.
// Capacity is advisory and not enforced here.
func (e *Engine) AssignRole(ctx context.Context, sessionID, memberID string, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("recruit: assign role: %w", model.ErrInvalidRole)
	}
	if memberID == "" {
		return errors.New("recruit: assign role: member id is required")
	}

	var opErr error
	err := e.do(ctx, func() {
		var channelID string
		opErr = e.store.mutate(sessionID, func(s *model.Session) {
			s.Members[memberID] = role
			channelID = s.ChannelID
		})
		if opErr != nil {
			return
		}
		e.metrics.RolesAssigned.Add(1)
		e.saveState()
		e.addPending(memberID, sessionID, channelID)
		e.logger.Info("role assigned", "session", sessionID, "member", memberID, "role", role)
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return fmt.Errorf("recruit: assign role: %w", opErr)
	}
	return nil
}

// Rejoin registers a pending join for a member already on the roster, for
// members who left the channel and want to be moved back.
func (e *Engine) Rejoin(ctx context.Context, sessionID, memberID string) error {
	var opErr error
	err := e.do(ctx, func() {
		sess, ok := e.store.get(sessionID)
		if !ok {
			opErr = ErrSessionGone
			return
		}
		if !sess.IsMember(memberID) {
			opErr = ErrNotMember
			return
		}
		e.addPending(memberID, sessionID, sess.ChannelID)
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return fmt.Errorf("recruit: rejoin: %w", opErr)
	}
	return nil
}

// AttachAnnouncement records where the session's announcement was posted so
// teardown can close it. Returns ErrSessionGone if the session ended while
// the announcement was being posted; the caller owns closing it then.
func (e *Engine) AttachAnnouncement(ctx context.Context, sessionID string, ref model.AnnouncementRef) error {
	var opErr error
	err := e.do(ctx, func() {
		opErr = e.store.mutate(sessionID, func(s *model.Session) {
			r := ref
			s.Announcement = &r
		})
		if opErr == nil {
			e.saveState()
		}
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return fmt.Errorf("recruit: attach announcement: %w", opErr)
	}
	return nil
}

// Session returns a copy of one live session.
func (e *Engine) Session(ctx context.Context, sessionID string) (model.Session, error) {
	var out model.Session
	var opErr error
	err := e.do(ctx, func() {
		sess, ok := e.store.get(sessionID)
		if !ok {
			opErr = ErrSessionGone
			return
		}
		out = sess.Clone()
	})
	if err != nil {
		return model.Session{}, err
	}
	return out, opErr
}

// Sessions returns copies of all live sessions ordered by creation time.
func (e *Engine) Sessions(ctx context.Context) ([]model.Session, error) {
	var out []model.Session
	err := e.do(ctx, func() {
		out = e.store.all()
	})
	return out, err
}

// MemberEntry is one roster line of a MemberSnapshot.
type MemberEntry struct {
	MemberID string
	Role     model.Role
	Creator  bool
	Present  bool           // connected to the session channel
	Profile  *model.Profile // nil without a registered profile
}

// MemberSnapshot is a read-only view of a session roster merged with the
// live channel occupancy.
type MemberSnapshot struct {
	Session model.Session
	Members []MemberEntry // creator first, then by member id
	// Visitors are occupants of the channel who are not on the roster.
	Visitors []string
	// OccupancyKnown is false when the occupant query failed.
	OccupancyKnown bool
}

// ListMembers returns the roster with roles, presence and profiles.
func (e *Engine) ListMembers(ctx context.Context, sessionID string) (MemberSnapshot, error) {
	sess, err := e.Session(ctx, sessionID)
	if err != nil {
		return MemberSnapshot{}, fmt.Errorf("recruit: list members: %w", err)
	}

	snap := MemberSnapshot{Session: sess}
	present := make(map[string]bool)
	occupants, err := e.gw.Occupants(ctx, sess.ChannelID)
	if err != nil {
		e.metrics.OccupancyErrors.Add(1)
		e.logger.Warn("failed to read occupants", "session", sess.ID, "channel", sess.ChannelID, "err", err)
	} else {
		snap.OccupancyKnown = true
		for _, id := range occupants {
			present[id] = true
			if !sess.IsMember(id) {
				snap.Visitors = append(snap.Visitors, id)
			}
		}
		sort.Strings(snap.Visitors)
	}

	for id, role := range sess.Members {
		entry := MemberEntry{
			MemberID: id,
			Role:     role,
			Creator:  id == sess.CreatorID,
			Present:  present[id],
		}
		if e.profiles != nil {
			p, err := e.profiles.GetProfile(ctx, id)
			if err != nil {
				e.logger.Warn("failed to load profile", "member", id, "err", err)
			}
			entry.Profile = p
		}
		snap.Members = append(snap.Members, entry)
	}
	sort.Slice(snap.Members, func(i, j int) bool {
		a, b := snap.Members[i], snap.Members[j]
		if a.Creator != b.Creator {
			return a.Creator
		}
		return a.MemberID < b.MemberID
	})
	return snap, nil
}
