package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/partyvc/pkg/clock"
	"github.com/NicolasHaas/partyvc/pkg/datastore"
	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/model"
)

var epoch = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

type testBot struct {
	t     *testing.T
	srv   *Server
	gw    *gateway.Memory
	store *datastore.MemoryStore
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GuildID = "guild"
	cfg.Category = "cat-teams"
	cfg.Announcements = map[string]string{model.PurposeRanked: "text-ranked"}
	cfg.MetricsAddr = ""
	return cfg
}

func newTestServer(t *testing.T, cfg Config) *testBot {
	t.Helper()
	gw := gateway.NewMemory()
	gw.AddChannel("lobby")
	st := datastore.NewMemory()
	clk := clock.Fake(epoch)

	srv := New(cfg, Dependencies{
		Store:     st,
		Gateway:   gw,
		Announcer: gw,
		Clock:     clk,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Engine().Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("engine Run: %v", err)
		}
	})
	clk.WaitForTimers(1)
	return &testBot{t: t, srv: srv, gw: gw, store: st}
}

func (b *testBot) command(member, channel, name string, opts map[string]string) gateway.Reply {
	return b.srv.HandleInteraction(context.Background(), gateway.Interaction{
		Kind:       gateway.KindCommand,
		Name:       name,
		MemberID:   member,
		MemberName: "name-" + member,
		ChannelID:  channel,
		Options:    opts,
	})
}

func (b *testBot) click(member, id string) gateway.Reply {
	return b.srv.HandleInteraction(context.Background(), gateway.Interaction{
		Kind:     gateway.KindButton,
		Name:     id,
		MemberID: member,
	})
}

func (b *testBot) register(member, summoner, rank, division string) {
	b.t.Helper()
	reply := b.command(member, "any", CmdRegister, map[string]string{
		"summoner_name": summoner, "rank": rank, "division": division,
	})
	if reply.Content != "Profile registered." {
		b.t.Fatalf("register %s: %q", member, reply.Content)
	}
}

func (b *testBot) createRanked(creator string) model.Session {
	b.t.Helper()
	reply := b.command(creator, "text-ranked", CmdCreate, map[string]string{
		"purpose": "ranked", "role": "mid", "recruits": "4",
	})
	if !strings.HasPrefix(reply.Content, "Recruitment created!") {
		b.t.Fatalf("create: %q", reply.Content)
	}
	sessions, err := b.srv.Engine().Sessions(context.Background())
	if err != nil || len(sessions) == 0 {
		b.t.Fatalf("Sessions = %v, %v", sessions, err)
	}
	return sessions[len(sessions)-1]
}

func TestCreateRequiresProfile(t *testing.T) {
	b := newTestServer(t, testConfig())
	reply := b.command("1", "text-ranked", CmdCreate, map[string]string{"purpose": "ranked", "role": "mid"})
	if reply.Content != "Register your profile first with /register." || !reply.Ephemeral {
		t.Errorf("reply = %+v", reply)
	}
	if n := len(b.gw.Created()); n != 0 {
		t.Errorf("channels created = %d, want 0", n)
	}
}

func TestCreateOnlyInPurposeChannel(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("1", "Faker#KR1", "CHALLENGER", "")
	reply := b.command("1", "general", CmdCreate, map[string]string{"purpose": "ranked", "role": "mid"})
	if want := "This mode can only be used in <#text-ranked>."; reply.Content != want {
		t.Errorf("reply = %q, want %q", reply.Content, want)
	}

	// Purposes without a configured channel are accepted anywhere.
	reply = b.command("1", "general", CmdCreate, map[string]string{"purpose": "normal", "role": "top"})
	if !strings.HasPrefix(reply.Content, "Recruitment created!") {
		t.Errorf("create normal: %q", reply.Content)
	}
	announced := b.gw.Announced()
	if len(announced) != 1 || announced[0].Ref.ChannelID != "general" {
		t.Errorf("announcements = %+v, want one in general", announced)
	}
}

func TestCreateAnnouncesSession(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("1", "Faker#KR1", "gold", "2")
	sess := b.createRanked("1")

	if diff := cmp.Diff([]gateway.ChannelSpec{{Name: "name-1's Ranked team", Category: "cat-teams", Capacity: 5}}, b.gw.Created()); diff != "" {
		t.Errorf("created channels mismatch (-want +got):\n%s", diff)
	}

	announced := b.gw.Announced()
	if len(announced) != 1 {
		t.Fatalf("announcements = %d, want 1", len(announced))
	}
	a := announced[0]
	if a.Ref.ChannelID != "text-ranked" {
		t.Errorf("announced in %q, want text-ranked", a.Ref.ChannelID)
	}
	wantButtons := []gateway.Button{
		{Label: "Join team", ID: "join:" + sess.ID, Style: gateway.StyleSuccess},
		{Label: "Show members", ID: "members:" + sess.ID, Style: gateway.StylePrimary},
	}
	if diff := cmp.Diff(wantButtons, a.Buttons); diff != "" {
		t.Errorf("buttons mismatch (-want +got):\n%s", diff)
	}
	wantFields := []gateway.Field{
		{Name: "Creator rank", Value: "GOLD 2"},
		{Name: "Creator role", Value: "MID"},
		{Name: "Looking for", Value: "4"},
		{Name: "Voice channel", Value: "<#" + sess.ChannelID + ">"},
	}
	if diff := cmp.Diff(wantFields, a.Card.Fields); diff != "" {
		t.Errorf("card fields mismatch (-want +got):\n%s", diff)
	}

	if sess.Announcement == nil || *sess.Announcement != a.Ref {
		t.Errorf("session announcement = %+v, want %+v", sess.Announcement, a.Ref)
	}
}

func TestCreateAnnounceFailureClosesSession(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("1", "Faker#KR1", "UNRANKED", "")
	b.gw.AnnounceErr = errors.New("missing access")

	reply := b.command("1", "text-ranked", CmdCreate, map[string]string{"purpose": "ranked", "role": "mid"})
	if reply.Content != "Something went wrong. Please try again." {
		t.Errorf("reply = %q", reply.Content)
	}
	sessions, err := b.srv.Engine().Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("sessions = %+v, want none", sessions)
	}
}

func TestJoinFlow(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("1", "Faker#KR1", "CHALLENGER", "")
	b.register("2", "Zeus#KR1", "MASTER", "")
	sess := b.createRanked("1")

	if reply := b.click("3", JoinButtonID(sess.ID)); reply.Content != "Register your profile first with /register." {
		t.Errorf("unregistered join reply = %q", reply.Content)
	}

	reply := b.click("2", JoinButtonID(sess.ID))
	if len(reply.Buttons) != len(model.Roles) || reply.Buttons[0].ID != RoleButtonID(sess.ID, model.RoleTop) {
		t.Fatalf("join reply buttons = %+v", reply.Buttons)
	}

	reply = b.click("2", RoleButtonID(sess.ID, model.RoleTop))
	if !strings.HasPrefix(reply.Content, "Joined as TOP.") {
		t.Fatalf("role reply = %q", reply.Content)
	}

	reply = b.click("2", JoinButtonID(sess.ID))
	if want := "Connect to any voice channel and you will be moved automatically."; reply.Content != want {
		t.Errorf("second join reply = %q, want %q", reply.Content, want)
	}

	reply = b.click("9", MembersButtonID(sess.ID))
	if reply.Card == nil {
		t.Fatalf("members reply has no card: %+v", reply)
	}
	want := []gateway.Field{
		{Name: "MID (creator)", Value: "<@1>\nSummoner: Faker#KR1\nRank: CHALLENGER"},
		{Name: "TOP", Value: "<@2>\nSummoner: Zeus#KR1\nRank: MASTER"},
		{Name: "In voice now", Value: "Nobody is connected"},
	}
	if diff := cmp.Diff(want, reply.Card.Fields); diff != "" {
		t.Errorf("members card mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinEndedSession(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("2", "Zeus#KR1", "MASTER", "")
	if reply := b.click("2", JoinButtonID("gone")); reply.Content != "This recruitment has already ended." {
		t.Errorf("reply = %q", reply.Content)
	}
	if reply := b.click("2", RoleButtonID("gone", model.RoleTop)); reply.Content != "This recruitment has already ended." {
		t.Errorf("role reply = %q", reply.Content)
	}
}

func TestClosePermissions(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("1", "Faker#KR1", "CHALLENGER", "")
	sess := b.createRanked("1")

	reply := b.command("2", "text-ranked", CmdClose, map[string]string{"channel": sess.ChannelID})
	if reply.Content != "You are not allowed to do that." {
		t.Errorf("close by other member = %q", reply.Content)
	}

	reply = b.command("1", sess.ChannelID, CmdClose, nil)
	if reply.Content != "Recruitment closed." {
		t.Fatalf("close by creator = %q", reply.Content)
	}
	sessions, err := b.srv.Engine().Sessions(context.Background())
	if err != nil || len(sessions) != 0 {
		t.Errorf("Sessions after close = %+v, %v", sessions, err)
	}

	reply = b.command("1", sess.ChannelID, CmdClose, nil)
	if reply.Content != "No recruitment uses that voice channel." {
		t.Errorf("second close = %q", reply.Content)
	}
}

func TestCleanupAdminOnly(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("1", "Faker#KR1", "CHALLENGER", "")
	sess := b.createRanked("1")
	b.gw.RemoveChannel(sess.ChannelID)

	if reply := b.command("1", "x", CmdCleanup, nil); reply.Content != "You are not allowed to do that." {
		t.Errorf("cleanup by creator = %q", reply.Content)
	}

	reply := b.srv.HandleInteraction(context.Background(), gateway.Interaction{
		Kind: gateway.KindCommand, Name: CmdCleanup, MemberID: "admin", Admin: true,
	})
	if reply.Content != "Removed 1 stale recruitment records." {
		t.Errorf("cleanup by admin = %q", reply.Content)
	}
}

func TestProfileCommands(t *testing.T) {
	type tcase struct {
		name string
		opts map[string]string
		want string
	}

	tcases := map[string]tcase{
		"missing_tag": {
			name: CmdRegister,
			opts: map[string]string{"summoner_name": "Faker", "rank": "GOLD", "division": "1"},
			want: "Summoner name must look like name#tag.",
		},
		"apex_with_division": {
			name: CmdRegister,
			opts: map[string]string{"summoner_name": "Faker#KR1", "rank": "MASTER", "division": "1"},
			want: "This tier has no divisions.",
		},
		"update_unregistered": {
			name: CmdUpdateProfile,
			opts: map[string]string{"rank": "GOLD", "division": "1"},
			want: "You have no profile yet. Use /register first.",
		},
		"show_unregistered": {
			name: CmdProfile,
			want: "You have no profile yet. Use /register first.",
		},
		"unregister_unregistered": {
			name: CmdUnregister,
			want: "You have no profile yet. Use /register first.",
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			b := newTestServer(t, testConfig())
			reply := b.command("1", "any", tc.name, tc.opts)
			if reply.Content != tc.want {
				t.Errorf("reply = %q, want %q", reply.Content, tc.want)
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}

func TestProfileLifecycle(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("1", "Faker#KR1", "DIAMOND", "1")

	if reply := b.command("1", "any", CmdRegister, map[string]string{"summoner_name": "Faker#KR1", "rank": "UNRANKED"}); !strings.HasPrefix(reply.Content, "You are already registered.") {
		t.Errorf("second register = %q", reply.Content)
	}
	if reply := b.command("1", "any", CmdUpdateProfile, map[string]string{}); reply.Content != "Give at least one field to update." {
		t.Errorf("empty update = %q", reply.Content)
	}

	reply := b.command("1", "any", CmdUpdateProfile, map[string]string{"rank": "CHALLENGER", "main_lane": "mid"})
	if reply.Card == nil {
		t.Fatalf("update reply = %+v", reply)
	}
	want := []gateway.Field{{Name: "Rank", Value: "CHALLENGER"}, {Name: "Main lane", Value: "MID"}}
	if diff := cmp.Diff(want, reply.Card.Fields); diff != "" {
		t.Errorf("profile card mismatch (-want +got):\n%s", diff)
	}

	if reply := b.command("1", "any", CmdUnregister, nil); reply.Content != "Profile deleted." {
		t.Errorf("unregister = %q", reply.Content)
	}
}

func TestUnknownInteraction(t *testing.T) {
	b := newTestServer(t, testConfig())
	if reply := b.click("1", "bogus"); reply.Content != "Something went wrong. Please try again." || !reply.Ephemeral {
		t.Errorf("reply = %+v", reply)
	}
}
