// Package server implements the partyvc bot runtime: it wires the
// recruitment engine to storage, the voice platform and the profile
// service, and answers member commands.
package server

import (
	"context"
	"log/slog"

	"github.com/NicolasHaas/partyvc/pkg/clock"
	"github.com/NicolasHaas/partyvc/pkg/datastore"
	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/logging"
	"github.com/NicolasHaas/partyvc/pkg/profile"
	"github.com/NicolasHaas/partyvc/pkg/recruit"
)

// Store is the durable storage the bot needs: profile documents through
// its providers and the session set through LoadSessions/SaveSessions.
type Store interface {
	datastore.DataProviderFactory
	recruit.Persister
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store     Store
	Gateway   gateway.Gateway
	Announcer gateway.Announcer
	// Lookup verifies accounts and ranks. Nil skips verification.
	Lookup profile.Lookup
	Clock  clock.Clock
	Logger *slog.Logger
}

// Server is the partyvc bot.
type Server struct {
	cfg       Config
	engine    *recruit.Engine
	profiles  *profile.Service
	store     Store
	gw        gateway.Gateway
	announcer gateway.Announcer
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new Server instance. If the gateway delivers occupancy
// events or interactions they are routed to the server.
func New(cfg Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	var profiles recruit.ProfileSource
	if deps.Store != nil {
		profiles = deps.Store.NonTx()
	}
	engine := recruit.New(cfg.EngineConfig(), recruit.Options{
		Gateway:   deps.Gateway,
		Persister: deps.Store,
		Profiles:  profiles,
		Clock:     deps.Clock,
		Logger:    logger,
	})

	s := &Server{
		cfg:       cfg,
		engine:    engine,
		store:     deps.Store,
		gw:        deps.Gateway,
		announcer: deps.Announcer,
		logger:    logging.Component(logger, "server"),
		ctx:       ctx,
		cancel:    cancel,
	}
	if deps.Store != nil {
		s.profiles = profile.NewService(deps.Store.NonTx(), deps.Lookup, logger)
	}

	if sub, ok := deps.Gateway.(gateway.Subscriber); ok {
		sub.Subscribe(engine.HandleOccupancy)
	}
	if src, ok := deps.Gateway.(gateway.InteractionSource); ok {
		src.OnInteraction(s.HandleInteraction)
	}
	return s
}

// Engine returns the recruitment engine.
func (s *Server) Engine() *recruit.Engine {
	return s.engine
}

// Profiles returns the profile service.
func (s *Server) Profiles() *profile.Service {
	return s.profiles
}

// Metrics returns the engine metrics.
func (s *Server) Metrics() *recruit.Metrics {
	return s.engine.Metrics()
}
