package server

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an authorization step failed. The HTTP layer
// decides how each kind is rendered.
type ErrorKind string

const (
	KindMissingParameter     ErrorKind = "missing_parameter"
	KindInvalidClientID      ErrorKind = "invalid_client_id"
	KindNoRedirectURIs       ErrorKind = "no_redirect_uris"
	KindInvalidRedirectURI   ErrorKind = "invalid_redirect_uri"
	KindInvalidResponseType  ErrorKind = "invalid_response_type"
	KindInvalidSession       ErrorKind = "invalid_session"
	KindInvalidCredentials   ErrorKind = "invalid_credentials"
	KindUnsupportedGrantType ErrorKind = "unsupported_grant_type"
	KindInvalidClient        ErrorKind = "invalid_client"
	KindInvalidGrant         ErrorKind = "invalid_grant"
	KindServerError          ErrorKind = "server_error"
)

// AuthMethod records how a client tried to authenticate at the token endpoint
type AuthMethod string

const (
	AuthMethodNone  AuthMethod = ""
	AuthMethodBasic AuthMethod = "client_secret_basic"
	AuthMethodPost  AuthMethod = "client_secret_post"
)

// User-facing descriptions. Credential and code failures are deliberately
// generic.
const (
	DescMissingClientID          = "Missing required parameter: client_id"
	DescNoRedirectURIs           = "No redirect URIs configured for the client"
	DescMissingResponseType      = "Missing required parameter: response_type"
	DescInvalidResponseType      = "Invalid or unsupported response type"
	DescMissingLoginID           = "Invalid login session"
	DescInvalidLoginSession      = "Invalid or expired login session"
	DescInvalidCredentials       = "Invalid username or password"
	DescMissingGrantType         = "Missing required parameter: grant_type"
	DescUnsupportedGrantType     = "Unsupported grant type"
	DescUnsupportedAuthMethod    = "Unsupported authentication method"
	DescInvalidClientOrSecret    = "Invalid client or secret"
	DescClientAuthFailed         = "Client authentication failed"
	DescMissingCode              = "Missing required parameter: code"
	DescInvalidAuthorizationCode = "Invalid authorization code"
	DescRedirectURIMismatch      = "Invalid redirect URI"
	DescServerError              = "Internal server error"
)

// Error is the failure result of every authorization step.
type Error struct {
	Kind        ErrorKind
	Description string

	// RedirectURL is where the browser should be sent to report the failure:
	// the client application for authorize protocol errors, or the original
	// authorize URL for invalid_credentials.
	RedirectURL string

	// AuthMethod is set on invalid_client failures. Only AuthMethodBasic
	// failures carry a WWW-Authenticate challenge.
	AuthMethod AuthMethod

	// Err is the underlying cause, if any. It is never shown to users.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, description string) *Error {
	return &Error{Kind: kind, Description: description}
}

func serverError(op string, err error) *Error {
	return &Error{
		Kind:        KindServerError,
		Description: DescServerError,
		Err:         fmt.Errorf("failed to %s: %w", op, err),
	}
}

// AsError extracts an *Error from err's chain
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}
