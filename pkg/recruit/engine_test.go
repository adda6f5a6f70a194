package recruit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/NicolasHaas/partyvc/pkg/clock"
	"github.com/NicolasHaas/partyvc/pkg/datastore"
	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/model"
)

var epoch = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	e     *Engine
	gw    *gateway.Memory
	clk   *clock.FakeClock
	store *datastore.MemoryStore
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Category = "cat-teams"
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	return newHarnessWithStore(t, cfg, datastore.NewMemory())
}

func newHarnessWithStore(t *testing.T, cfg Config, st *datastore.MemoryStore) *harness {
	t.Helper()

	gw := gateway.NewMemory()
	gw.AddChannel("lobby")
	clk := clock.Fake(epoch)

	var mu sync.Mutex
	next := 0
	e := New(cfg, Options{
		Gateway:   gw,
		Persister: st,
		Profiles:  st.NonTx(),
		Clock:     clk,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			next++
			return "s" + strconv.Itoa(next)
		},
	})
	gw.Subscribe(e.HandleOccupancy)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	// The sweep ticker is registered once the loop is up.
	clk.WaitForTimers(1)
	return &harness{t: t, e: e, gw: gw, clk: clk, store: st}
}

// settle waits until every off-loop call started by the engine has
// reported back and been handled.
func (h *harness) settle() {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		var outstanding int
		if err := h.e.do(context.Background(), func() {
			outstanding = h.e.started - h.e.completed
		}); err != nil {
			h.t.Fatalf("settle: %v", err)
		}
		if outstanding == 0 {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("settle: %d operations still outstanding", outstanding)
		}
		time.Sleep(time.Millisecond)
	}
}

// advance moves the fake clock and waits for the resulting work.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clk.Advance(d)
	h.settle()
}

func (h *harness) create(creator string, role model.Role, capacity int) model.Session {
	h.t.Helper()
	sess, err := h.e.CreateSession(context.Background(), CreateRequest{
		CreatorID:   creator,
		CreatorName: creator,
		Purpose:     model.PurposeRanked,
		Role:        role,
		Capacity:    capacity,
	})
	if err != nil {
		h.t.Fatalf("CreateSession(%s): %v", creator, err)
	}
	return sess
}

func (h *harness) connect(member, channel string) {
	h.t.Helper()
	if err := h.gw.Connect(member, channel); err != nil {
		h.t.Fatalf("Connect(%s, %s): %v", member, channel, err)
	}
	h.settle()
}

func (h *harness) disconnect(member string) {
	h.t.Helper()
	if err := h.gw.Disconnect(member); err != nil {
		h.t.Fatalf("Disconnect(%s): %v", member, err)
	}
	h.settle()
}

func (h *harness) sessions() []model.Session {
	h.t.Helper()
	sessions, err := h.e.Sessions(context.Background())
	if err != nil {
		h.t.Fatalf("Sessions: %v", err)
	}
	return sessions
}

func (h *harness) pending() []model.PendingJoin {
	h.t.Helper()
	p, err := h.e.PendingJoins(context.Background())
	if err != nil {
		h.t.Fatalf("PendingJoins: %v", err)
	}
	return p
}

func TestCreateSessionDistinctChannels(t *testing.T) {
	h := newHarness(t, testConfig())

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.e.CreateSession(context.Background(), CreateRequest{
				CreatorID: "creator" + strconv.Itoa(i),
				Purpose:   model.PurposeNormal,
				Role:      model.RoleFill,
			})
			if err != nil {
				t.Errorf("CreateSession(%d): %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	h.settle()

	sessions := h.sessions()
	if len(sessions) != n {
		t.Fatalf("Sessions = %d, want %d", len(sessions), n)
	}
	channels := make(map[string]bool)
	for _, s := range sessions {
		if channels[s.ChannelID] {
			t.Errorf("channel %s backs more than one session", s.ChannelID)
		}
		channels[s.ChannelID] = true
	}

	stored, err := h.store.LoadSessions(context.Background())
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if diff := cmp.Diff(sessions, stored, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("stored sessions mismatch (-want +got):\n%s", diff)
	}
	if got := h.e.Metrics().ActiveSessions.Load(); got != n {
		t.Errorf("ActiveSessions = %d, want %d", got, n)
	}
}

func TestCreateSessionChannelSpec(t *testing.T) {
	h := newHarness(t, testConfig())

	sess, err := h.e.CreateSession(context.Background(), CreateRequest{
		CreatorID:   "100",
		CreatorName: "Faker",
		Purpose:     "Ranked",
		Title:       "  duo queue  ",
		Role:        model.RoleMid,
		Capacity:    5,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	want := []gateway.ChannelSpec{{Name: "Faker's Ranked team", Category: "cat-teams", Capacity: 5}}
	if diff := cmp.Diff(want, h.gw.Created()); diff != "" {
		t.Errorf("created channels mismatch (-want +got):\n%s", diff)
	}

	wantSess := model.Session{
		ID:        "s1",
		CreatorID: "100",
		Purpose:   model.PurposeRanked,
		Title:     "duo queue",
		ChannelID: sess.ChannelID,
		Members:   map[string]model.Role{"100": model.RoleMid},
		Capacity:  5,
		CreatedAt: epoch,
	}
	if diff := cmp.Diff(wantSess, sess); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateSessionRejected(t *testing.T) {
	type tcase struct {
		req     CreateRequest
		gwErr   error
		wantErr error
	}

	valid := CreateRequest{CreatorID: "1", Purpose: model.PurposeRanked, Role: model.RoleTop}
	with := func(fn func(*CreateRequest)) CreateRequest {
		r := valid
		fn(&r)
		return r
	}

	tcases := map[string]tcase{
		"forbidden": {
			req:     valid,
			gwErr:   gateway.ErrForbidden,
			wantErr: gateway.ErrForbidden,
		},
		"invalid_role": {
			req:     with(func(r *CreateRequest) { r.Role = model.RoleUnassigned }),
			wantErr: model.ErrInvalidRole,
		},
		"empty_purpose": {
			req:     with(func(r *CreateRequest) { r.Purpose = "  " }),
			wantErr: model.ErrInvalidPurpose,
		},
		"capacity_too_large": {
			req:     with(func(r *CreateRequest) { r.Capacity = model.MaxCapacity + 1 }),
			wantErr: model.ErrCapacity,
		},
		"negative_capacity": {
			req:     with(func(r *CreateRequest) { r.Capacity = -1 }),
			wantErr: model.ErrCapacity,
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.gw.CreateErr = tc.gwErr

			_, err := h.e.CreateSession(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("CreateSession err = %v, want %v", err, tc.wantErr)
			}
			h.settle()
			if n := len(h.sessions()); n != 0 {
				t.Errorf("Sessions = %d after failed create, want 0", n)
			}
			if n := len(h.gw.Created()); n != 0 {
				t.Errorf("channels created = %d, want 0", n)
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}

// fixedChannelGateway hands out the same channel id on every create.
type fixedChannelGateway struct {
	*gateway.Memory
	id string
}

func (g *fixedChannelGateway) CreateVoiceChannel(context.Context, gateway.ChannelSpec) (string, error) {
	return g.id, nil
}

func TestCreateSessionDuplicateChannel(t *testing.T) {
	mem := gateway.NewMemory()
	mem.AddChannel("vc-same")
	e := New(testConfig(), Options{
		Gateway: &fixedChannelGateway{Memory: mem, id: "vc-same"},
		Clock:   clock.Fake(epoch),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	req := CreateRequest{CreatorID: "1", Purpose: model.PurposeRanked, Role: model.RoleTop}
	first, err := e.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("first CreateSession: %v", err)
	}
	req.CreatorID = "2"
	if _, err := e.CreateSession(ctx, req); !errors.Is(err, ErrDuplicateChannel) {
		t.Fatalf("second CreateSession err = %v, want ErrDuplicateChannel", err)
	}

	sessions, err := e.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != first.ID {
		t.Errorf("Sessions = %+v, want only %s", sessions, first.ID)
	}
	if !mem.Exists("vc-same") {
		t.Errorf("live session channel was deleted")
	}
}

func TestRestoreSessions(t *testing.T) {
	st := datastore.NewMemory()
	stored := []model.Session{{
		ID:        "old",
		CreatorID: "1",
		Purpose:   model.PurposeNormal,
		ChannelID: "vc-old",
		Members:   map[string]model.Role{"1": model.RoleSupport},
		CreatedAt: epoch.Add(-time.Hour),
	}}
	if err := st.SaveSessions(context.Background(), stored); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	h := newHarnessWithStore(t, testConfig(), st)
	if diff := cmp.Diff(stored, h.sessions()); diff != "" {
		t.Errorf("restored sessions mismatch (-want +got):\n%s", diff)
	}
	if got := h.e.Metrics().SessionsRestored.Load(); got != 1 {
		t.Errorf("SessionsRestored = %d, want 1", got)
	}

	status, err := h.e.RequestJoin(context.Background(), "old", "1")
	if err != nil || status != AlreadyMember {
		t.Errorf("RequestJoin on restored session = %v, %v", status, err)
	}
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.e.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run err = %v, want ErrRunning", err)
	}
}

func TestStoppedEngine(t *testing.T) {
	e := New(testConfig(), Options{Gateway: gateway.NewMemory(), Clock: clock.Fake(epoch)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := e.Teardown(context.Background(), "x"); !errors.Is(err, ErrStopped) {
		t.Errorf("Teardown after stop err = %v, want ErrStopped", err)
	}
	// Events after stop are dropped, not blocked on.
	e.HandleOccupancy(gateway.OccupancyEvent{ChannelID: "c", MemberID: "m", Kind: gateway.Joined})
}
