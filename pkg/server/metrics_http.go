package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NicolasHaas/partyvc/pkg/version"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when ctx is cancelled.
func (s *Server) StartMetricsHTTP(ctx context.Context) {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

func (s *Server) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, s.Metrics().JSON())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.Metrics().Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP partyvc_build_info Build version.\n# TYPE partyvc_build_info gauge\n")
	_, _ = fmt.Fprintf(w, "partyvc_build_info{version=%q} 1\n", version.String())
	write("partyvc_uptime_seconds", "Bot uptime in seconds.", "gauge", m.UptimeSeconds)

	write("partyvc_sessions_active", "Live recruitment sessions.", "gauge", m.ActiveSessions)
	write("partyvc_sessions_created_total", "Sessions created.", "counter", m.SessionsCreated)
	write("partyvc_sessions_torn_down_total", "Sessions torn down.", "counter", m.SessionsTornDown)
	write("partyvc_sessions_retired_total", "Sessions dropped because their channel vanished.", "counter", m.SessionsRetired)
	write("partyvc_sessions_restored_total", "Sessions loaded from storage at start.", "counter", m.SessionsRestored)
	write("partyvc_session_create_failures_total", "Rejected or failed session creations.", "counter", m.CreateFailures)

	write("partyvc_roles_assigned_total", "Roles assigned to members.", "counter", m.RolesAssigned)
	write("partyvc_pending_joins_total", "Join intents registered.", "counter", m.PendingJoins)
	write("partyvc_pending_superseded_total", "Join intents replaced by a newer one.", "counter", m.PendingSuperseded)
	write("partyvc_pending_expired_total", "Join intents dropped after their TTL.", "counter", m.PendingExpired)
	write("partyvc_relocations_total", "Members moved into their session channel.", "counter", m.RelocationsOK)
	write("partyvc_relocations_failed_total", "Member moves that failed.", "counter", m.RelocationsFailed)

	write("partyvc_rechecks_scheduled_total", "Deferred empty-channel rechecks scheduled.", "counter", m.RechecksScheduled)
	write("partyvc_sweeps_total", "Periodic idle sweeps run.", "counter", m.SweepRuns)
	write("partyvc_occupancy_errors_total", "Failed occupant queries.", "counter", m.OccupancyErrors)

	write("partyvc_announcement_failures_total", "Announcements that could not be closed.", "counter", m.AnnouncementFailures)
	write("partyvc_channel_delete_failures_total", "Voice channels that could not be deleted.", "counter", m.DeleteFailures)
	write("partyvc_persist_failures_total", "Failed session saves.", "counter", m.PersistFailures)
}
