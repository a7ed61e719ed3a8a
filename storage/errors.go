package storage

import "errors"

// Sentinel errors returned by storage backends. Backends may wrap them with
// additional context; callers should match with errors.Is.
var (
	// ErrClientNotFound indicates no client is registered with the given ID
	ErrClientNotFound = errors.New("client not found")

	// ErrUserNotFound indicates no user has the given email
	ErrUserNotFound = errors.New("user not found")

	// ErrLoginSessionNotFound indicates the login session does not exist or was already consumed
	ErrLoginSessionNotFound = errors.New("login session not found")

	// ErrAuthorizationCodeNotFound indicates the code does not exist or was already redeemed
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrAccessTokenNotFound indicates the access token does not exist
	ErrAccessTokenNotFound = errors.New("access token not found")

	// ErrNotInitialized indicates an operation was called before Init or after Shutdown
	ErrNotInitialized = errors.New("storage not initialized")
)

// IsNotFoundError reports whether err is one of the not-found sentinels
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrLoginSessionNotFound) ||
		errors.Is(err, ErrAuthorizationCodeNotFound) ||
		errors.Is(err, ErrAccessTokenNotFound)
}
