// Package recruit manages the lifecycle of recruitment sessions: creating a
// session together with its voice channel, recording members and their
// roles, moving members who asked to join once they show up in voice, and
// tearing sessions down once their channel has stayed empty.
//
// All session and pending-join state is owned by a single goroutine started
// with Engine.Run. Public methods submit work to that goroutine and wait for
// the result. Calls to the voice platform and to storage never run on it;
// they run in their own goroutines and report back through the same queue.
package recruit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/partyvc/pkg/clock"
	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/model"
)

var (
	// ErrSessionGone is returned for operations on a session that does not
	// exist, either because it was never created or because it was torn down.
	ErrSessionGone = errors.New("recruit: session gone")
	// ErrDuplicateChannel is returned when a channel already backs a session.
	ErrDuplicateChannel = errors.New("recruit: channel already has a session")
	// ErrNotMember is returned by Rejoin for members not on the roster.
	ErrNotMember = errors.New("recruit: not a session member")
	// ErrStopped is returned when the engine loop is not running anymore.
	ErrStopped = errors.New("recruit: engine stopped")
	// ErrRunning is returned by a second concurrent call to Run.
	ErrRunning = errors.New("recruit: engine already running")
)

// Persister stores the full session set. SaveSessions is called with a
// complete snapshot after every change.
type Persister interface {
	LoadSessions(ctx context.Context) ([]model.Session, error)
	SaveSessions(ctx context.Context, sessions []model.Session) error
}

// ProfileSource looks up registered profiles for member listings.
// GetProfile returns (nil, nil) for members without a profile.
type ProfileSource interface {
	GetProfile(ctx context.Context, memberID string) (*model.Profile, error)
}

// Config holds the engine's timing and placement settings.
type Config struct {
	// GracePeriod is how long a channel must stay empty before teardown.
	GracePeriod time.Duration
	// SweepInterval is the period of the full idle scan.
	SweepInterval time.Duration
	// PendingTTL bounds how long a join intent waits for its member to
	// connect. Zero keeps intents until consumed or superseded.
	PendingTTL time.Duration
	// CallTimeout bounds each gateway and storage call.
	CallTimeout time.Duration
	// Category is the parent of created voice channels.
	Category string
	// QueueSize is the capacity of the loop's work queue.
	QueueSize int
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		GracePeriod:   300 * time.Second,
		SweepInterval: 30 * time.Second,
		PendingTTL:    30 * time.Minute,
		CallTimeout:   15 * time.Second,
		QueueSize:     256,
	}
}

// Options carries the engine's collaborators. Only Gateway is required.
type Options struct {
	Gateway   gateway.Gateway
	Persister Persister
	Profiles  ProfileSource
	Clock     clock.Clock
	Logger    *slog.Logger
	Metrics   *Metrics
	NewID     func() string
}

// Engine is the recruitment session manager.
type Engine struct {
	cfg      Config
	gw       gateway.Gateway
	persist  Persister
	profiles ProfileSource
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics
	newID    func() string

	queue   chan func()
	done    chan struct{}
	running chan struct{} // holds a token while Run is active
	saves   *saveQueue

	// Owned by the loop goroutine.
	runCtx    context.Context
	store     *sessionStore
	pending   map[string]model.PendingJoin
	sweeping  map[string]bool
	started   int // async operations started
	completed int // async operations whose completion ran on the loop
}

// New creates an engine. Call Run to start processing.
func New(cfg Config, opts Options) *Engine {
	def := DefaultConfig()
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.PendingTTL < 0 {
		cfg.PendingTTL = 0
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Engine{
		cfg:      cfg,
		gw:       opts.Gateway,
		persist:  opts.Persister,
		profiles: opts.Profiles,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "recruit"),
		metrics:  opts.Metrics,
		newID:    opts.NewID,
		queue:    make(chan func(), cfg.QueueSize),
		done:     make(chan struct{}),
		running:  make(chan struct{}, 1),
		saves:    newSaveQueue(),
		store:    newSessionStore(),
		pending:  make(map[string]model.PendingJoin),
		sweeping: make(map[string]bool),
	}
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run restores persisted sessions and processes work until ctx is
// cancelled. An engine runs at most once.
func (e *Engine) Run(ctx context.Context) error {
	select {
	case e.running <- struct{}{}:
	default:
		return ErrRunning
	}
	select {
	case <-e.done:
		return ErrStopped
	default:
	}

	e.runCtx = ctx
	if err := e.restore(ctx); err != nil {
		close(e.done)
		return err
	}

	workerDone := make(chan struct{})
	go e.saveWorker(ctx, workerDone)

	ticker := e.clock.NewTicker(e.cfg.SweepInterval)
	defer func() {
		ticker.Stop()
		close(e.done)
		e.saves.close()
		<-workerDone
	}()

	e.logger.Info("recruit engine started",
		"sessions", e.store.len(),
		"grace", e.cfg.GracePeriod,
		"sweep", e.cfg.SweepInterval,
		"pending_ttl", e.cfg.PendingTTL,
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("recruit engine stopped", "sessions", e.store.len())
			return nil
		case now := <-ticker.C:
			e.sweep(now)
		case fn := <-e.queue:
			// A tick that arrived before this item is handled first.
			select {
			case now := <-ticker.C:
				e.sweep(now)
			default:
			}
			fn()
		}
	}
}

func (e *Engine) restore(ctx context.Context) error {
	if e.persist == nil {
		return nil
	}
	sessions, err := e.persist.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("recruit: restore sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.Members == nil {
			sess.Members = make(map[string]model.Role)
		}
		if err := e.store.create(sess); err != nil {
			e.logger.Warn("skipping stored session", "session", sess.ID, "channel", sess.ChannelID, "err", err)
			continue
		}
		e.metrics.SessionsRestored.Add(1)
	}
	e.metrics.ActiveSessions.Store(int64(e.store.len()))
	return nil
}

// post queues fn for the loop. It is dropped if the loop has exited.
func (e *Engine) post(fn func()) {
	select {
	case e.queue <- fn:
	case <-e.done:
	}
}

// do runs fn on the loop and waits for it. Once queued, fn always runs to
// completion unless the loop exits first, so callers never observe a
// half-applied result.
func (e *Engine) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case e.queue <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// spawn runs call off the loop and delivers its result to then on the loop.
// Must be called from the loop.
func spawn[T any](e *Engine, call func(context.Context) (T, error), then func(T, error)) {
	e.started++
	parent := e.runCtx
	if parent == nil {
		parent = context.Background()
	}
	timeout := e.cfg.CallTimeout
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		v, err := call(ctx)
		cancel()
		e.post(func() {
			e.completed++
			if then != nil {
				then(v, err)
			}
		})
	}()
}

// saveState queues a snapshot of the session table for storage.
// Must be called from the loop after every change.
func (e *Engine) saveState() {
	e.metrics.ActiveSessions.Store(int64(e.store.len()))
	if e.persist == nil {
		return
	}
	e.started++
	e.saves.push(e.store.all())
}

func (e *Engine) saveWorker(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	// Saves queued before shutdown still land.
	base := context.WithoutCancel(ctx)
	for {
		snapshot, ok := e.saves.pop()
		if !ok {
			return
		}
		sctx, cancel := context.WithTimeout(base, e.cfg.CallTimeout)
		err := e.persist.SaveSessions(sctx, snapshot)
		cancel()
		if err != nil {
			e.metrics.PersistFailures.Add(1)
			e.logger.Error("failed to save sessions", "count", len(snapshot), "err", err)
		}
		e.post(func() { e.completed++ })
	}
}
