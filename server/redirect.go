package server

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/giantswarm/oauth-core/storage"
)

// OAuth 2.0 error codes used on redirects (RFC 6749 section 4.1.2.1)
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
)

// effectiveRedirectURI returns requested when set, otherwise the client's
// first registered URI.
func effectiveRedirectURI(client *storage.Client, requested string) string {
	if requested != "" {
		return requested
	}
	return client.DefaultRedirectURI()
}

// errorRedirect builds the client redirect reporting a protocol error
func errorRedirect(redirectURI, code, description, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	q := u.Query()
	q.Set("error", code)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// codeRedirect builds the client redirect carrying an authorization code.
// Existing query parameters of the registered URI are preserved.
func codeRedirect(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// tokenRedirect builds the client redirect carrying an access token in the
// URL fragment, so it never reaches the client's server logs.
func tokenRedirect(redirectURI, token string, expiresIn int64, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	u.Fragment = ""
	u.RawFragment = ""

	values := url.Values{}
	values.Set("access_token", token)
	values.Set("token_type", TokenTypeBearer)
	values.Set("expires_in", strconv.FormatInt(expiresIn, 10))
	if state != "" {
		values.Set("state", state)
	}
	return u.String() + "#" + values.Encode(), nil
}
