package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/model"
	"github.com/NicolasHaas/partyvc/pkg/profile"
	"github.com/NicolasHaas/partyvc/pkg/rbac"
	"github.com/NicolasHaas/partyvc/pkg/recruit"
)

// Slash command names.
const (
	CmdCreate        = "create"
	CmdRegister      = "register"
	CmdUpdateProfile = "update_profile"
	CmdProfile       = "profile"
	CmdUnregister    = "unregister"
	CmdRefreshRank   = "refresh_rank"
	CmdClose         = "close"
	CmdCleanup       = "db_cleanup"
)

// Button id prefixes. Ids are "<prefix>:<session>" or, for role buttons,
// "role:<session>:<role>".
const (
	buttonJoin    = "join"
	buttonMembers = "members"
	buttonRole    = "role"
)

// JoinButtonID returns the id of a session's join button.
func JoinButtonID(sessionID string) string { return buttonJoin + ":" + sessionID }

// MembersButtonID returns the id of a session's member list button.
func MembersButtonID(sessionID string) string { return buttonMembers + ":" + sessionID }

// RoleButtonID returns the id of a role choice button.
func RoleButtonID(sessionID string, role model.Role) string {
	return buttonRole + ":" + sessionID + ":" + role.String()
}

// HandleInteraction answers a command or button click.
func (s *Server) HandleInteraction(ctx context.Context, in gateway.Interaction) gateway.Reply {
	logger := s.logger.With("member", in.MemberID, "interaction", in.Name)
	logger.Debug("interaction received")

	var reply gateway.Reply
	var err error
	switch in.Kind {
	case gateway.KindCommand:
		reply, err = s.handleCommand(ctx, in)
	case gateway.KindButton:
		reply, err = s.handleButton(ctx, in)
	default:
		err = fmt.Errorf("unknown interaction kind %d", in.Kind)
	}
	if err != nil {
		msg, expected := userMessage(err)
		if expected {
			logger.Debug("interaction rejected", "err", err)
		} else {
			logger.Error("interaction failed", "err", err)
		}
		return ephemeral(msg)
	}
	return reply
}

func (s *Server) handleCommand(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	switch in.Name {
	case CmdCreate:
		return s.handleCreate(ctx, in)
	case CmdRegister:
		return s.handleRegister(ctx, in)
	case CmdUpdateProfile:
		return s.handleUpdateProfile(ctx, in)
	case CmdProfile:
		return s.handleProfile(ctx, in)
	case CmdUnregister:
		return s.handleUnregister(ctx, in)
	case CmdRefreshRank:
		return s.handleRefreshRank(ctx, in)
	case CmdClose:
		return s.handleClose(ctx, in)
	case CmdCleanup:
		return s.handleCleanup(ctx, in)
	default:
		return gateway.Reply{}, fmt.Errorf("unknown command %q", in.Name)
	}
}

func (s *Server) handleButton(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	parts := strings.Split(in.Name, ":")
	switch {
	case len(parts) == 2 && parts[0] == buttonJoin:
		return s.handleJoin(ctx, in, parts[1])
	case len(parts) == 2 && parts[0] == buttonMembers:
		return s.handleMembers(ctx, parts[1])
	case len(parts) == 3 && parts[0] == buttonRole:
		return s.handleRole(ctx, in, parts[1], parts[2])
	default:
		return gateway.Reply{}, fmt.Errorf("unknown button %q", in.Name)
	}
}

// memberProfile returns the member's profile, nil when unregistered.
func (s *Server) memberProfile(ctx context.Context, memberID string) (*model.Profile, error) {
	if s.profiles == nil {
		return nil, nil
	}
	p, err := s.profiles.Get(ctx, memberID)
	if errors.Is(err, profile.ErrNotRegistered) {
		return nil, nil
	}
	return p, err
}

func (s *Server) requireProfile(ctx context.Context, memberID string) (*model.Profile, error) {
	p, err := s.memberProfile(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if p == nil && s.cfg.RequireProfile {
		return nil, errRegisterFirst
	}
	return p, nil
}

func (s *Server) handleCreate(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	d := NewDraft(in.MemberID, in.MemberName)
	if err := d.SetPurpose(in.Option("purpose")); err != nil {
		return gateway.Reply{}, err
	}
	if ch, ok := s.cfg.Announcements[d.purpose]; ok && ch != "" && ch != in.ChannelID {
		return ephemeral(fmt.Sprintf("This mode can only be used in <#%s>.", ch)), nil
	}

	prof, err := s.requireProfile(ctx, in.MemberID)
	if err != nil {
		return gateway.Reply{}, err
	}
	lane := in.Option("role")
	if lane == "" && prof != nil && prof.MainLane.Valid() {
		lane = prof.MainLane.String()
	}
	if err := d.SetRole(lane); err != nil {
		return gateway.Reply{}, err
	}
	if err := d.SetRecruits(in.Option("recruits")); err != nil {
		return gateway.Reply{}, err
	}
	if err := d.SetTitle(in.Option("title")); err != nil {
		return gateway.Reply{}, err
	}
	req, err := d.Request()
	if err != nil {
		return gateway.Reply{}, err
	}

	sess, err := s.engine.CreateSession(ctx, req)
	if err != nil {
		return gateway.Reply{}, err
	}

	if s.announcer != nil {
		target := s.cfg.Announcements[sess.Purpose]
		if target == "" {
			target = in.ChannelID
		}
		card := sessionCard(sess, prof, d.Recruits())
		ref, err := s.announcer.Announce(ctx, target, card, sessionButtons(sess.ID, false))
		if err != nil {
			s.logger.Error("failed to post announcement, closing session", "session", sess.ID, "err", err)
			if _, terr := s.engine.Teardown(ctx, sess.ID); terr != nil {
				s.logger.Error("failed to close unannounced session", "session", sess.ID, "err", terr)
			}
			return gateway.Reply{}, fmt.Errorf("announce session: %w", err)
		}
		if err := s.engine.AttachAnnouncement(ctx, sess.ID, ref); err != nil {
			// Torn down in the meantime: the announcement is already stale.
			if errors.Is(err, recruit.ErrSessionGone) {
				_ = s.gw.CloseAnnouncement(ctx, ref)
			}
			return gateway.Reply{}, err
		}
	}

	return ephemeral(fmt.Sprintf("Recruitment created! Your voice channel is <#%s>.", sess.ChannelID)), nil
}

func (s *Server) handleJoin(ctx context.Context, in gateway.Interaction, sessionID string) (gateway.Reply, error) {
	if _, err := s.requireProfile(ctx, in.MemberID); err != nil {
		return gateway.Reply{}, err
	}
	status, err := s.engine.RequestJoin(ctx, sessionID, in.MemberID)
	if err != nil {
		return gateway.Reply{}, err
	}
	switch status {
	case recruit.NeedsRoleSelection:
		return gateway.Reply{
			Content:   "Choose your role:",
			Ephemeral: true,
			Buttons:   roleButtons(sessionID),
		}, nil
	default:
		if err := s.engine.Rejoin(ctx, sessionID, in.MemberID); err != nil {
			return gateway.Reply{}, err
		}
		return ephemeral("Connect to any voice channel and you will be moved automatically."), nil
	}
}

func (s *Server) handleRole(ctx context.Context, in gateway.Interaction, sessionID, roleName string) (gateway.Reply, error) {
	role, err := model.ParseRole(roleName)
	if err != nil {
		return gateway.Reply{}, err
	}
	if err := s.engine.AssignRole(ctx, sessionID, in.MemberID, role); err != nil {
		return gateway.Reply{}, err
	}
	return ephemeral(fmt.Sprintf("Joined as %s. Connect to any voice channel and you will be moved automatically.", role.Label())), nil
}

func (s *Server) handleMembers(ctx context.Context, sessionID string) (gateway.Reply, error) {
	snap, err := s.engine.ListMembers(ctx, sessionID)
	if err != nil {
		return gateway.Reply{}, err
	}
	card := membersCard(snap)
	return gateway.Reply{Ephemeral: true, Card: &card}, nil
}

func (s *Server) handleClose(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	channelID := in.Option("channel")
	if channelID == "" {
		channelID = in.ChannelID
	}
	sessions, err := s.engine.Sessions(ctx)
	if err != nil {
		return gateway.Reply{}, err
	}
	var target *model.Session
	for i := range sessions {
		if sessions[i].ChannelID == channelID {
			target = &sessions[i]
			break
		}
	}
	if target == nil {
		return ephemeral("No recruitment uses that voice channel."), nil
	}

	actor := rbac.Actor{MemberID: in.MemberID, Admin: in.Admin}
	if err := rbac.Require(actor, target, rbac.PermCloseSession); err != nil {
		return gateway.Reply{}, err
	}
	removed, err := s.engine.Teardown(ctx, target.ID)
	if err != nil {
		return gateway.Reply{}, err
	}
	if !removed {
		return gateway.Reply{}, recruit.ErrSessionGone
	}
	s.logger.Info("session closed by command", "session", target.ID, "member", in.MemberID)
	return ephemeral("Recruitment closed."), nil
}

func (s *Server) handleCleanup(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	actor := rbac.Actor{MemberID: in.MemberID, Admin: in.Admin}
	if err := rbac.Require(actor, nil, rbac.PermPruneSessions); err != nil {
		return gateway.Reply{}, err
	}
	n, err := s.engine.Prune(ctx)
	if err != nil {
		return gateway.Reply{}, err
	}
	return ephemeral(fmt.Sprintf("Removed %d stale recruitment records.", n)), nil
}

func (s *Server) handleRegister(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	if s.profiles == nil {
		return gateway.Reply{}, errors.New("profile service not configured")
	}
	division, err := parseDivision(in.Option("division"))
	if err != nil {
		return gateway.Reply{}, err
	}
	lane, err := model.ParseRole(in.Option("main_lane"))
	if err != nil {
		return gateway.Reply{}, err
	}
	p, err := s.profiles.Register(ctx, profile.RegisterRequest{
		MemberID:     in.MemberID,
		SummonerName: in.Option("summoner_name"),
		Tier:         in.Option("rank"),
		Division:     division,
		MainLane:     lane,
	})
	if err != nil {
		return gateway.Reply{}, err
	}
	card := profileCard(p)
	return gateway.Reply{Content: "Profile registered.", Ephemeral: true, Card: &card}, nil
}

func (s *Server) handleUpdateProfile(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	if s.profiles == nil {
		return gateway.Reply{}, errors.New("profile service not configured")
	}
	req := profile.UpdateRequest{MemberID: in.MemberID}
	if in.HasOption("summoner_name") {
		v := in.Option("summoner_name")
		req.SummonerName = &v
	}
	if in.HasOption("rank") {
		v := in.Option("rank")
		req.Tier = &v
	}
	if in.HasOption("division") {
		v, err := parseDivision(in.Option("division"))
		if err != nil {
			return gateway.Reply{}, err
		}
		req.Division = &v
	}
	if in.HasOption("main_lane") {
		v, err := model.ParseRole(in.Option("main_lane"))
		if err != nil {
			return gateway.Reply{}, err
		}
		req.MainLane = &v
	}
	p, err := s.profiles.Update(ctx, req)
	if err != nil {
		return gateway.Reply{}, err
	}
	card := profileCard(p)
	return gateway.Reply{Content: "Profile updated.", Ephemeral: true, Card: &card}, nil
}

func (s *Server) handleProfile(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	if s.profiles == nil {
		return gateway.Reply{}, errors.New("profile service not configured")
	}
	p, err := s.profiles.Get(ctx, in.MemberID)
	if err != nil {
		return gateway.Reply{}, err
	}
	card := profileCard(p)
	return gateway.Reply{Ephemeral: true, Card: &card}, nil
}

func (s *Server) handleUnregister(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	if s.profiles == nil {
		return gateway.Reply{}, errors.New("profile service not configured")
	}
	if err := s.profiles.Unregister(ctx, in.MemberID); err != nil {
		return gateway.Reply{}, err
	}
	return ephemeral("Profile deleted."), nil
}

func (s *Server) handleRefreshRank(ctx context.Context, in gateway.Interaction) (gateway.Reply, error) {
	if s.profiles == nil {
		return gateway.Reply{}, errors.New("profile service not configured")
	}
	p, err := s.profiles.RefreshRank(ctx, in.MemberID)
	if err != nil {
		return gateway.Reply{}, err
	}
	card := profileCard(p)
	return gateway.Reply{Content: "Rank updated.", Ephemeral: true, Card: &card}, nil
}

func parseDivision(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 4 {
		return 0, model.ErrDivisionRequired
	}
	return n, nil
}

func ephemeral(content string) gateway.Reply {
	return gateway.Reply{Content: content, Ephemeral: true}
}
