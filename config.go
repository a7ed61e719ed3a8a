package oauth

import (
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/server"
)

// ServerConfig holds the complete configuration of an authorization server.
// Structured using composition: the protocol settings live in server.Config,
// the HTTP-layer protections and observability settings next to them.
type ServerConfig struct {
	// Server holds issuer, token lifetimes and proxy trust settings
	Server server.Config

	// Instrumentation configures OpenTelemetry metrics and tracing.
	// Instrumentation.Enabled false installs no-op providers.
	Instrumentation instrumentation.Config

	// Rate limiting configuration for /login and /token
	RateLimit RateLimitConfig

	// LoginThrottle blocks IPs after repeated failed logins
	LoginThrottle LoginThrottleConfig

	// EnableAuditLogging enables security audit logging.
	// Logs login and token events and rejections (sensitive data hashed).
	EnableAuditLogging bool

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// MaxEntries bounds the number of tracked IPs. Zero uses the default.
	MaxEntries int
}

// Enabled reports whether rate limiting is configured
func (c RateLimitConfig) Enabled() bool {
	return c.Rate > 0
}

// LoginThrottleConfig holds failed-login throttling configuration
type LoginThrottleConfig struct {
	// MaxFailures is the number of failed logins per IP allowed within Window.
	// Zero disables throttling.
	MaxFailures int

	// Window is the sliding window failures are counted over.
	// Default: security.DefaultLoginFailureWindow
	Window time.Duration
}

// Enabled reports whether login throttling is configured
func (c LoginThrottleConfig) Enabled() bool {
	return c.MaxFailures > 0
}
