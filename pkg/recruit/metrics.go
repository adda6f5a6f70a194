package recruit

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks engine runtime statistics.
// All counters use atomic operations so the HTTP exporter can read them
// while the loop writes.
type Metrics struct {
	startTime time.Time

	// Session lifecycle
	SessionsCreated  atomic.Int64 // sessions stored after channel creation
	SessionsTornDown atomic.Int64 // sessions removed by teardown (any trigger)
	SessionsRetired  atomic.Int64 // sessions removed because their channel vanished
	SessionsRestored atomic.Int64 // sessions loaded from storage at start
	ActiveSessions   atomic.Int64 // current live sessions
	CreateFailures   atomic.Int64 // channel creation or store insert failures

	// Membership
	RolesAssigned     atomic.Int64 // successful AssignRole calls
	PendingJoins      atomic.Int64 // current pending join entries
	PendingSuperseded atomic.Int64 // entries replaced by a newer intent
	PendingExpired    atomic.Int64 // entries dropped after the TTL
	RelocationsOK     atomic.Int64 // successful member moves
	RelocationsFailed atomic.Int64 // failed member moves (not retried)

	// Idle reaper
	RechecksScheduled atomic.Int64 // deferred empty-channel re-checks
	SweepRuns         atomic.Int64 // periodic sweeps executed
	OccupancyErrors   atomic.Int64 // failed occupant queries

	// Side effects
	AnnouncementFailures atomic.Int64 // announcement close failures
	DeleteFailures       atomic.Int64 // channel delete failures
	PersistFailures      atomic.Int64 // failed session saves
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// StartTime returns when the metrics were created.
func (m *Metrics) StartTime() time.Time {
	return m.startTime
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	SessionsCreated  int64 `json:"sessions_created"`
	SessionsTornDown int64 `json:"sessions_torn_down"`
	SessionsRetired  int64 `json:"sessions_retired"`
	SessionsRestored int64 `json:"sessions_restored"`
	ActiveSessions   int64 `json:"active_sessions"`
	CreateFailures   int64 `json:"create_failures"`

	RolesAssigned     int64 `json:"roles_assigned"`
	PendingJoins      int64 `json:"pending_joins"`
	PendingSuperseded int64 `json:"pending_superseded"`
	PendingExpired    int64 `json:"pending_expired"`
	RelocationsOK     int64 `json:"relocations_ok"`
	RelocationsFailed int64 `json:"relocations_failed"`

	RechecksScheduled int64 `json:"rechecks_scheduled"`
	SweepRuns         int64 `json:"sweep_runs"`
	OccupancyErrors   int64 `json:"occupancy_errors"`

	AnnouncementFailures int64 `json:"announcement_failures"`
	DeleteFailures       int64 `json:"delete_failures"`
	PersistFailures      int64 `json:"persist_failures"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:               uptime.Truncate(time.Second).String(),
		UptimeSeconds:        int64(uptime.Seconds()),
		SessionsCreated:      m.SessionsCreated.Load(),
		SessionsTornDown:     m.SessionsTornDown.Load(),
		SessionsRetired:      m.SessionsRetired.Load(),
		SessionsRestored:     m.SessionsRestored.Load(),
		ActiveSessions:       m.ActiveSessions.Load(),
		CreateFailures:       m.CreateFailures.Load(),
		RolesAssigned:        m.RolesAssigned.Load(),
		PendingJoins:         m.PendingJoins.Load(),
		PendingSuperseded:    m.PendingSuperseded.Load(),
		PendingExpired:       m.PendingExpired.Load(),
		RelocationsOK:        m.RelocationsOK.Load(),
		RelocationsFailed:    m.RelocationsFailed.Load(),
		RechecksScheduled:    m.RechecksScheduled.Load(),
		SweepRuns:            m.SweepRuns.Load(),
		OccupancyErrors:      m.OccupancyErrors.Load(),
		AnnouncementFailures: m.AnnouncementFailures.Load(),
		DeleteFailures:       m.DeleteFailures.Load(),
		PersistFailures:      m.PersistFailures.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a metrics summary to logger.
func (m *Metrics) LogSummary(logger *slog.Logger) {
	s := m.Snapshot()
	logger.Info("metrics",
		"uptime", s.Uptime,
		"sessions", s.ActiveSessions,
		"created", s.SessionsCreated,
		"torn_down", s.SessionsTornDown,
		"pending", s.PendingJoins,
		"relocations", s.RelocationsOK,
		"relocations_failed", s.RelocationsFailed,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(logger *slog.Logger, interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(logger)
			}
		}
	}()
}
