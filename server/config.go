package server

import (
	"log/slog"
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// LoginSessionTTL is how long a login form stays usable after /authorize
	LoginSessionTTL int64 // seconds, default: 28800 (8 hours)

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// When false, uses direct connection IP (secure by default)
	// Default: false
	TrustProxy bool // default: false

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Used with TrustProxy to correctly extract client IP from X-Forwarded-For
	// Example: If you have 2 proxies (CloudFlare + nginx), set this to 2
	// The client IP will be extracted as: ips[len(ips) - TrustedProxyCount - 1]
	// Default: 1
	TrustedProxyCount int // default: 1
}

// Default lifetimes in seconds, applied when the Config field is zero
const (
	DefaultAuthorizationCodeTTL = 600
	DefaultAccessTokenTTL       = 3600
	DefaultLoginSessionTTL      = 28800

	// recommendedMaxCodeTTL is the upper bound RFC 6749 section 4.1.2 recommends
	recommendedMaxCodeTTL = 600
)

// applySecureDefaults fills zero values and warns about unusual settings
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	logConfigWarnings(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.LoginSessionTTL <= 0 {
		config.LoginSessionTTL = DefaultLoginSessionTTL
	}
	if config.TrustedProxyCount <= 0 {
		config.TrustedProxyCount = 1
	}
}

// logConfigWarnings logs warnings for risky configuration settings
func logConfigWarnings(config *Config, logger *slog.Logger) {
	if config.AuthorizationCodeTTL > recommendedMaxCodeTTL {
		logger.Warn("CONFIGURATION WARNING: Authorization code lifetime exceeds 10 minutes",
			"authorization_code_ttl", config.AuthorizationCodeTTL,
			"risk", "Longer window for intercepted codes to be redeemed",
			"learn_more", "https://datatracker.ietf.org/doc/html/rfc6749#section-4.1.2")
	}
	if config.TrustProxy {
		logger.Warn("SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"recommendation", "Only enable behind trusted reverse proxies",
			"config", "TrustedProxyCount should match your proxy chain length")
	}
}
