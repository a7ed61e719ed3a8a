package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Authorize step events

	// EventAuthorizationRequestRejected is logged when an authorize request fails validation
	EventAuthorizationRequestRejected = "authorization_request_rejected"

	// EventLoginSessionCreated is logged when a login session is created for a valid authorize request
	EventLoginSessionCreated = "login_session_created"

	// EventInvalidRedirect is logged when an unregistered redirect URI is used
	EventInvalidRedirect = "invalid_redirect"

	// Login step events

	// EventLoginSessionInvalid is logged when a login submission references a missing or expired session
	EventLoginSessionInvalid = "login_session_invalid"

	// EventLoginFailed is logged when submitted credentials are rejected
	EventLoginFailed = "login_failed"

	// EventLoginSucceeded is logged when an end user authenticates successfully
	EventLoginSucceeded = "login_succeeded"

	// Grant events

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeRejected is logged when a code is missing, expired, replayed or bound to another client
	EventAuthorizationCodeRejected = "authorization_code_rejected"

	// EventRedirectURIMismatch is logged when the token request redirect_uri does not match the code binding
	EventRedirectURIMismatch = "redirect_uri_mismatch"

	// EventTokenIssued is logged when a new access token is issued to a client
	EventTokenIssued = "token_issued"

	// Security violation events

	// EventAuthFailure is logged when client authentication fails
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventLoginThrottled is logged when an IP is blocked after repeated failed logins
	EventLoginThrottled = "login_throttled"
)
