package server

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

const (
	// tokenIDLogLength is the number of characters logged from codes, tokens and login ids
	tokenIDLogLength = 8

	// codeLength is the number of alphanumeric characters in an authorization code
	codeLength = 32

	// accessTokenPrefix marks opaque access tokens
	accessTokenPrefix = "at-"

	// loginSessionPrefix marks login session ids
	loginSessionPrefix = "login-"

	// TokenTypeBearer is the only token type issued
	TokenTypeBearer = "Bearer"

	// GrantTypeAuthorizationCode is the only supported token grant
	GrantTypeAuthorizationCode = "authorization_code"

	// grantImplicit labels tokens issued directly from /login
	grantImplicit = "implicit"
)

// Server implements the OAuth 2.0 authorization state machine: authorize
// requests, login resolution, token exchange and token issuance.
// It holds no per-request state and is safe for concurrent use.
type Server struct {
	store           storage.Store
	clock           security.Clock
	Auditor         *security.Auditor
	Logger          *slog.Logger
	Config          *Config
	Instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	metrics         *instrumentation.Metrics
}

// New creates a new OAuth server
func New(store storage.Store, config *Config, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	return &Server{
		store:  store,
		clock:  security.SystemClock{},
		Logger: logger,
		Config: config,
		tracer: noop.NewTracerProvider().Tracer("server"),
	}, nil
}

// SetClock sets the clock used for expiry computation and checks
func (s *Server) SetClock(clock security.Clock) {
	s.clock = security.ClockOrDefault(clock)
}

// Clock returns the clock used for expiry decisions
func (s *Server) Clock() security.Clock {
	return s.clock
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation sets OpenTelemetry instrumentation for the server
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
		s.metrics = inst.Metrics()
	}
}

// Store returns the credential store backing this server
func (s *Server) Store() storage.Store {
	return s.store
}

// startSpan starts a span for a server operation
func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "oauth."+name)
}

// finishSpan records the operation outcome on span
func finishSpan(span trace.Span, err error) {
	if err == nil {
		instrumentation.SetSpanSuccess(span)
		return
	}
	if e, ok := AsError(err); ok {
		instrumentation.AddOAuthErrorAttributes(span, string(e.Kind), e.Description)
	}
	instrumentation.RecordError(span, err)
}
