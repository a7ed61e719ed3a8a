// Package security provides security features for the OAuth server including
// encryption, credential verification, rate limiting, audit logging, and
// secure header management.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// EventRecorder counts audit events, typically backed by a metrics counter
type EventRecorder func(eventType string)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger   *slog.Logger
	enabled  bool
	recorder EventRecorder
	clock    Clock
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		clock:   SystemClock{},
	}
}

// SetRecorder sets a callback invoked once per logged event
func (a *Auditor) SetRecorder(recorder EventRecorder) {
	a.recorder = recorder
}

// SetClock sets the clock used for event timestamps
func (a *Auditor) SetClock(clock Clock) {
	a.clock = ClockOrDefault(clock)
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string // email or other user identifier; logged hashed
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.clock.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.recorder != nil {
		a.recorder(event.Type)
	}
}

// LogAuthorizationRequestRejected logs an authorize request that failed validation
func (a *Auditor) LogAuthorizationRequestRejected(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationRequestRejected,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogLoginSessionCreated logs creation of a login session
func (a *Auditor) LogLoginSessionCreated(clientID, ipAddress, responseType string) {
	a.LogEvent(Event{
		Type:      EventLoginSessionCreated,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"response_type": responseType,
		},
	})
}

// LogInvalidRedirect logs use of an unregistered redirect URI
func (a *Auditor) LogInvalidRedirect(clientID, ipAddress, uri, reason string) {
	a.LogEvent(Event{
		Type:      EventInvalidRedirect,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"uri":    uri,
			"reason": reason,
		},
	})
}

// LogLoginSessionInvalid logs a login submission against a missing or expired session
func (a *Auditor) LogLoginSessionInvalid(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventLoginSessionInvalid,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogLoginFailed logs rejected end-user credentials
func (a *Auditor) LogLoginFailed(email, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventLoginFailed,
		UserID:    email,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogLoginSucceeded logs a successful end-user login
func (a *Auditor) LogLoginSucceeded(email, clientID, ipAddress, responseType string) {
	a.LogEvent(Event{
		Type:      EventLoginSucceeded,
		UserID:    email,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"response_type": responseType,
		},
	})
}

// LogAuthorizationCodeIssued logs issuance of an authorization code
func (a *Auditor) LogAuthorizationCodeIssued(email, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		UserID:    email,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogAuthorizationCodeRejected logs a code redemption that failed
func (a *Auditor) LogAuthorizationCodeRejected(email, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeRejected,
		UserID:    email,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRedirectURIMismatch logs a token request whose redirect_uri does not match the code
func (a *Auditor) LogRedirectURIMismatch(email, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventRedirectURIMismatch,
		UserID:    email,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogTokenIssued logs when a token is issued
func (a *Auditor) LogTokenIssued(email, clientID, ipAddress, grant string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		UserID:    email,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant": grant,
		},
	})
}

// LogAuthFailure logs a client authentication failure
func (a *Auditor) LogAuthFailure(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// LogLoginThrottled logs a login blocked by the failed-login throttle
func (a *Auditor) LogLoginThrottled(ipAddress string, failures int) {
	a.LogEvent(Event{
		Type:      EventLoginThrottled,
		IPAddress: ipAddress,
		Details: map[string]any{
			"failures": failures,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
