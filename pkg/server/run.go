package server

import (
	"context"
	"errors"
	"fmt"
)

// Run starts the recruitment engine and the metrics endpoint, and blocks
// until ctx is cancelled or the engine fails.
func (s *Server) Run(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}
	if s.gw == nil {
		return fmt.Errorf("server: missing gateway dependency")
	}
	st := s.store
	defer func() { _ = st.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-runCtx.Done():
		case <-s.ctx.Done():
			cancel()
		}
	}()

	engineErr := make(chan error, 1)
	go func() { engineErr <- s.engine.Run(runCtx) }()

	s.logger.Info("partyvc running",
		"guild", s.cfg.GuildID,
		"grace", s.cfg.GracePeriod,
		"sweep", s.cfg.SweepInterval,
		"metrics", s.cfg.MetricsAddr,
	)

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP(runCtx)

	if s.cfg.MetricsLogInterval > 0 {
		s.Metrics().StartPeriodicLog(s.logger, s.cfg.MetricsLogInterval, runCtx.Done())
	}

	var err error
	select {
	case <-runCtx.Done():
		err = <-engineErr
	case err = <-engineErr:
	}
	s.logger.Info("shutting down...")
	s.Metrics().LogSummary(s.logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: engine: %w", err)
	}
	return nil
}

// Shutdown stops a running server.
func (s *Server) Shutdown() {
	s.cancel()
}
