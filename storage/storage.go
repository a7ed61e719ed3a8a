package storage

import (
	"context"
	"strings"
	"time"
)

// ClientStore provides lookup of registered OAuth clients.
// Clients are registered out-of-band and are read-only to the core.
type ClientStore interface {
	// GetClient retrieves a client by ID.
	// Returns ErrClientNotFound if no client is registered with that ID.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// UserStore provides lookup of end users.
type UserStore interface {
	// GetUserByEmail retrieves a user by email. The match is case-insensitive.
	// Returns ErrUserNotFound if no user has that email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// LoginSessionStore persists pending login sessions.
type LoginSessionStore interface {
	// CreateLoginSession saves a login session keyed by its ID
	CreateLoginSession(ctx context.Context, session *LoginSession) error

	// PopLoginSession atomically retrieves and deletes a login session.
	// The session is returned even if it has expired; callers judge expiry.
	// Returns ErrLoginSessionNotFound if the session does not exist.
	// SECURITY: This operation MUST be atomic so a session is consumed at most once.
	PopLoginSession(ctx context.Context, id string) (*LoginSession, error)
}

// AuthorizationCodeStore persists issued authorization codes.
type AuthorizationCodeStore interface {
	// CreateAuthorizationCode saves an issued authorization code
	CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// PopAuthorizationCode atomically retrieves and deletes an authorization code.
	// The code is returned even if it has expired; callers judge expiry.
	// Returns ErrAuthorizationCodeNotFound if the code does not exist, which
	// includes codes that were already redeemed.
	// SECURITY: This operation MUST be atomic to prevent concurrent code exchange attacks.
	PopAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// AccessTokenStore persists issued access tokens.
type AccessTokenStore interface {
	// CreateAccessToken saves an issued access token
	CreateAccessToken(ctx context.Context, token *AccessToken) error
}

// Lifecycle is implemented by every backend.
type Lifecycle interface {
	// Init prepares the backend and loads the optional seed data.
	// Operations called before Init fail with ErrNotInitialized.
	Init(ctx context.Context, seed *Seed) error

	// Shutdown releases backend resources. It is safe to call more than once.
	Shutdown(ctx context.Context) error
}

// Store is the complete repository used by the authorization server.
type Store interface {
	ClientStore
	UserStore
	LoginSessionStore
	AuthorizationCodeStore
	AccessTokenStore
	Lifecycle
}

// Client represents a registered OAuth client
type Client struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Secret is compared exactly. SecretHash, when set, is a bcrypt hash
	// and takes precedence over Secret.
	Secret     string `json:"secret,omitempty" yaml:"secret,omitempty"`
	SecretHash string `json:"secret_hash,omitempty" yaml:"secret_hash,omitempty"`

	// RedirectURIs is ordered; the first entry is the default redirect target.
	// An empty list means the client cannot use redirect-based flows.
	RedirectURIs []string `json:"redirect_uris" yaml:"redirect_uris"`
}

// DefaultRedirectURI returns the first registered redirect URI, or "" if none.
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}

// HasRedirectURI reports whether uri is an exact member of the registered set
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// User represents an end user who can log in
type User struct {
	Email string `json:"email" yaml:"email"`

	// Password is compared exactly. PasswordHash, when set, is a bcrypt hash
	// and takes precedence over Password.
	Password     string `json:"password,omitempty" yaml:"password,omitempty"`
	PasswordHash string `json:"password_hash,omitempty" yaml:"password_hash,omitempty"`
}

// NormalizeEmail returns the lookup key for an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ResponseType is the requested grant of an authorize request
type ResponseType string

const (
	// ResponseTypeCode requests an authorization code
	ResponseTypeCode ResponseType = "code"

	// ResponseTypeToken requests an access token in the redirect fragment
	ResponseTypeToken ResponseType = "token"
)

// LoginSession binds an in-progress authorize request to the login step
type LoginSession struct {
	ID           string       `json:"id" yaml:"id"`
	ClientID     string       `json:"client_id" yaml:"client_id"`
	ResponseType ResponseType `json:"response_type" yaml:"response_type"`

	// RedirectURI is nil when the authorize request did not specify one
	RedirectURI *string `json:"redirect_uri" yaml:"redirect_uri"`

	OriginalRequestURL string    `json:"original_request_url" yaml:"original_request_url"`
	ExpiresAt          time.Time `json:"expires_at" yaml:"expires_at"`

	// State is nil when the authorize request did not carry one
	State *string `json:"state" yaml:"state"`
}

// AuthorizationCode represents an issued, single-use authorization code
type AuthorizationCode struct {
	Code    string      `json:"code" yaml:"code"`
	Context CodeContext `json:"context" yaml:"context"`
}

// CodeContext is the grant context bound to an authorization code
type CodeContext struct {
	ClientID string `json:"client_id" yaml:"client_id"`

	// RedirectURI is the login session's original value, which may be nil.
	// It is not the resolved fallback URI.
	RedirectURI *string `json:"redirect_uri" yaml:"redirect_uri"`

	Email     string    `json:"email" yaml:"email"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

// AccessToken represents an issued opaque access token
type AccessToken struct {
	Token     string    `json:"token" yaml:"token"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
	IssuedAt  time.Time `json:"issued_at" yaml:"issued_at"`
	ClientID  string    `json:"client_id" yaml:"client_id"`
	Email     string    `json:"email" yaml:"email"`
}

// Seed is the initial data loaded into a backend by Init.
// Clients and users are the registry; the mutable collections are
// mostly useful for test fixtures.
type Seed struct {
	Clients            []*Client            `json:"clients" yaml:"clients"`
	Users              []*User              `json:"users" yaml:"users"`
	LoginSessions      []*LoginSession      `json:"login_sessions,omitempty" yaml:"login_sessions,omitempty"`
	AuthorizationCodes []*AuthorizationCode `json:"authorization_codes,omitempty" yaml:"authorization_codes,omitempty"`
	AccessTokens       []*AccessToken       `json:"access_tokens,omitempty" yaml:"access_tokens,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
// Optional request parameters use nil to mean "absent".
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue returns the value of p, or "" when p is nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
