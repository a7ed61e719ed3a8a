package oauth

import (
	"fmt"
	"net/http"

	"github.com/giantswarm/oauth-core/server"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeServerError             = "server_error"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code

	// Challenge, when set, is sent as the WWW-Authenticate header
	Challenge string
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable instances
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code is invalid, expired or already used
	ErrInvalidGrant = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported
	ErrUnsupportedGrantType = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedResponseType indicates the response type is not supported
	ErrUnsupportedResponseType = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrRateLimitExceeded indicates the caller sent too many requests
	ErrRateLimitExceeded = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}
)

// basicChallenge is sent with invalid_client failures of the Basic header path
const basicChallenge = "Basic"

// tokenError maps a token exchange failure to its wire representation.
// Errors that are not *server.Error become server_error.
func tokenError(err error) *OAuthError {
	e, ok := server.AsError(err)
	if !ok {
		return ErrServerError(server.DescServerError)
	}

	switch e.Kind {
	case server.KindMissingParameter:
		return ErrInvalidRequest(e.Description)
	case server.KindUnsupportedGrantType:
		return ErrUnsupportedGrantType(e.Description)
	case server.KindInvalidClient:
		oe := ErrInvalidClient(e.Description)
		if e.AuthMethod == server.AuthMethodBasic {
			oe.Challenge = basicChallenge
		}
		return oe
	case server.KindInvalidGrant:
		return ErrInvalidGrant(e.Description)
	default:
		return ErrServerError(server.DescServerError)
	}
}

// pageStatus is the HTTP status of an error rendered as an HTML page
func pageStatus(e *server.Error) int {
	if e.Kind == server.KindServerError {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
