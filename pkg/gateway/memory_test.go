package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/NicolasHaas/partyvc/pkg/model"
	"github.com/google/go-cmp/cmp"
)

func TestTransitions(t *testing.T) {
	type tcase struct {
		before, after string
		want          []OccupancyEvent
	}

	tcases := map[string]tcase{
		"connect": {
			after: "a",
			want:  []OccupancyEvent{{ChannelID: "a", MemberID: "m", Kind: Joined}},
		},
		"disconnect": {
			before: "a",
			want:   []OccupancyEvent{{ChannelID: "a", MemberID: "m", Kind: Left}},
		},
		"move": {
			before: "a",
			after:  "b",
			want: []OccupancyEvent{
				{ChannelID: "a", MemberID: "m", Kind: Left},
				{ChannelID: "b", MemberID: "m", Kind: Joined},
			},
		},
		"mute_toggle": {
			before: "a",
			after:  "a",
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			got := Transitions("m", tc.before, tc.after)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Transitions mismatch (-want +got):\n%s", diff)
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}

func TestMemoryChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	var events []OccupancyEvent
	g.Subscribe(func(ev OccupancyEvent) { events = append(events, ev) })

	id, err := g.CreateVoiceChannel(ctx, ChannelSpec{Name: "team", Capacity: 5})
	if err != nil {
		t.Fatalf("CreateVoiceChannel: %v", err)
	}
	g.AddChannel("lobby")

	if err := g.Connect("alice", "lobby"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := g.RelocateMember(ctx, "alice", id); err != nil {
		t.Fatalf("RelocateMember: %v", err)
	}

	got, err := g.Occupants(ctx, id)
	if err != nil {
		t.Fatalf("Occupants: %v", err)
	}
	if diff := cmp.Diff([]string{"alice"}, got); diff != "" {
		t.Errorf("Occupants mismatch (-want +got):\n%s", diff)
	}

	if err := g.DeleteVoiceChannel(ctx, id); err != nil {
		t.Fatalf("DeleteVoiceChannel: %v", err)
	}
	if _, err := g.Occupants(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Occupants after delete err = %v, want ErrNotFound", err)
	}
	if err := g.DeleteVoiceChannel(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	want := []OccupancyEvent{
		{ChannelID: "lobby", MemberID: "alice", Kind: Joined},
		{ChannelID: "lobby", MemberID: "alice", Kind: Left},
		{ChannelID: id, MemberID: "alice", Kind: Joined},
		{ChannelID: id, MemberID: "alice", Kind: Left},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryRelocateFailures(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	g.AddChannel("target")

	if err := g.RelocateMember(ctx, "ghost", "target"); !errors.Is(err, ErrRelocateFailed) {
		t.Errorf("relocating disconnected member err = %v, want ErrRelocateFailed", err)
	}

	g.AddChannel("lobby")
	_ = g.Connect("bob", "lobby")
	g.RelocateErr = ErrForbidden
	err := g.RelocateMember(ctx, "bob", "target")
	if !errors.Is(err, ErrRelocateFailed) || !errors.Is(err, ErrForbidden) {
		t.Errorf("injected failure err = %v, want ErrRelocateFailed wrapping ErrForbidden", err)
	}
	if got := g.Location("bob"); got != "lobby" {
		t.Errorf("Location(bob) = %q, want lobby", got)
	}
	if n := len(g.Relocations()); n != 2 {
		t.Errorf("Relocations = %d, want 2", n)
	}
}

func TestMemoryCreateForbidden(t *testing.T) {
	g := NewMemory()
	g.CreateErr = ErrForbidden
	if _, err := g.CreateVoiceChannel(context.Background(), ChannelSpec{Name: "x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("CreateVoiceChannel err = %v, want ErrForbidden", err)
	}
	if len(g.Created()) != 0 {
		t.Errorf("forbidden create was recorded")
	}
}

func TestMemoryCloseAnnouncement(t *testing.T) {
	g := NewMemory()
	ref := model.AnnouncementRef{ChannelID: "c", MessageID: "m"}
	if err := g.CloseAnnouncement(context.Background(), ref); err != nil {
		t.Fatalf("CloseAnnouncement: %v", err)
	}
	if diff := cmp.Diff([]model.AnnouncementRef{ref}, g.Closed()); diff != "" {
		t.Errorf("Closed mismatch (-want +got):\n%s", diff)
	}
}
