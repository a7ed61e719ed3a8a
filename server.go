// Package oauth is the HTTP boundary of the authorization server. It serves
// /authorize, /login and /token on top of the state machine in package
// server, renders the login and error pages, and maps failures to OAuth
// error responses.
//
// A minimal setup:
//
//	store := memory.New()
//	srv, err := oauth.NewServer(store, &oauth.ServerConfig{})
//	if err != nil { ... }
//	if err := srv.Init(ctx, seed); err != nil { ... }
//	defer srv.Shutdown(ctx)
//	http.ListenAndServe(":8400", oauth.NewHandler(srv, nil).Routes())
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/server"
	"github.com/giantswarm/oauth-core/storage"
)

// instrumentedStore is implemented by backends that emit storage metrics and spans
type instrumentedStore interface {
	SetInstrumentation(inst *instrumentation.Instrumentation)
}

// Server bundles the authorization state machine with the protections and
// observability of the HTTP layer.
type Server struct {
	// Core implements authorize, login and token exchange
	Core *server.Server

	Store           storage.Store
	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter   // nil when rate limiting is disabled
	LoginThrottle   *security.LoginThrottle // nil when throttling is disabled
	Instrumentation *instrumentation.Instrumentation
	IPResolver      security.IPResolver
	Config          *ServerConfig
	Logger          *slog.Logger
}

// NewServer creates a new OAuth server backed by store.
// The store is not initialized; call Init before serving requests.
func NewServer(store storage.Store, config *ServerConfig) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config == nil {
		config = &ServerConfig{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	core, err := server.New(store, &config.Server, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	inst, err := instrumentation.New(config.Instrumentation)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	auditor := security.NewAuditor(logger.WithGroup("audit"), config.EnableAuditLogging)
	auditor.SetRecorder(func(eventType string) {
		inst.Metrics().RecordAuditEvent(context.Background(), eventType)
	})

	core.SetAuditor(auditor)
	core.SetInstrumentation(inst)
	if is, ok := store.(instrumentedStore); ok {
		is.SetInstrumentation(inst)
	}

	s := &Server{
		Core:            core,
		Store:           store,
		Auditor:         auditor,
		Instrumentation: inst,
		IPResolver: security.IPResolver{
			TrustProxy:        core.Config.TrustProxy,
			TrustedProxyCount: core.Config.TrustedProxyCount,
		},
		Config: config,
		Logger: logger,
	}

	if config.RateLimit.Enabled() {
		s.RateLimiter = security.NewRateLimiterWithConfig(security.RateLimiterConfig{
			Rate:       config.RateLimit.Rate,
			Burst:      config.RateLimit.Burst,
			MaxEntries: config.RateLimit.MaxEntries,
		}, logger)
	}
	if config.LoginThrottle.Enabled() {
		s.LoginThrottle = security.NewLoginThrottleWithConfig(
			config.LoginThrottle.MaxFailures,
			config.LoginThrottle.Window,
			security.DefaultLoginThrottleMaxEntries,
			logger,
		)
	}

	return s, nil
}

// SetClock replaces the clock of the core and of the login throttle.
// Tests use it to control expiry.
func (s *Server) SetClock(clock security.Clock) {
	s.Core.SetClock(clock)
	s.Auditor.SetClock(clock)
	if s.LoginThrottle != nil {
		s.LoginThrottle.SetClock(clock)
	}
}

// Init initializes the store with seed
func (s *Server) Init(ctx context.Context, seed *storage.Seed) error {
	if err := s.Store.Init(ctx, seed); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	return nil
}

// Shutdown stops background workers, shuts down the store and flushes telemetry.
// It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.RateLimiter != nil {
		s.RateLimiter.Stop()
	}
	if s.LoginThrottle != nil {
		s.LoginThrottle.Stop()
	}

	var errs []error
	if err := s.Store.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down store: %w", err))
	}
	if err := s.Instrumentation.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down instrumentation: %w", err))
	}
	return errors.Join(errs...)
}
