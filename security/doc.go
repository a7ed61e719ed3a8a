// Package security holds the protective pieces around the authorization
// endpoints: credential verification, abuse limits, response headers,
// client address resolution, request correlation, field encryption for
// shared stores, and the security audit log.
//
// # Credentials
//
// VerifySecret compares a supplied client secret or user password against the
// stored bcrypt hash, or against a plaintext value in constant time when no
// hash is configured. RejectUnknown burns the same bcrypt work for unknown
// users so response timing does not reveal which e-mails exist.
//
// # Rate Limiting
//
// RateLimiter is a per-identifier token bucket (golang.org/x/time/rate) with
// LRU eviction once MaxEntries identifiers are tracked, and a background
// cleanup of idle entries. AllowWithRetry reports how long the caller should
// wait, which the HTTP layer turns into a Retry-After header.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if ok, retry := limiter.AllowWithRetry(ip); !ok {
//	    // 429 with Retry-After: retry
//	}
//
// LoginThrottle counts failed POST /login attempts per IP in a sliding window
// and blocks the address once the limit is hit.
//
// # Time
//
// Clock abstracts the current time so expiry checks can be tested with a
// fixed clock. An instant equal to the expiry time is already expired.
//
// # Audit Logging
//
// Auditor writes "security_audit" records through slog. User e-mails are
// hashed before logging. An optional recorder receives each event type so
// it can be counted as a metric.
package security
