// Package testutil provides testing utilities and helpers for the OAuth server.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// FixtureTime is the instant fixture expiries are computed from
var FixtureTime = time.UnixMilli(1540117000000).UTC()

// Fixture identifiers
const (
	ClientID1     = "1"
	ClientSecret1 = "sec1"
	ClientID2     = "2"
	ClientSecret2 = "sec2"
	ClientID3     = "3"
	ClientSecret3 = "sec3"

	RedirectURI1a = "http://localhost:8498"
	RedirectURI1b = "http://localhost:8497"
	RedirectURI2  = "http://localhost:8490"

	UserEmail    = "test@example.com"
	UserPassword = "pass"

	// CodeValid belongs to client 1 with redirect RedirectURI1a
	CodeValid = "abcd1234"
	// CodeExpired expires exactly at the fixture time
	CodeExpired = "abcd2345"
	// CodeOtherClient belongs to client 2 but carries client 1's redirect URI
	CodeOtherClient = "abcd3456"
	// CodeNoRedirect belongs to client 1 and has no redirect URI
	CodeNoRedirect = "abcd4567"

	// LoginSession is a code session for client 1 without state
	LoginSession = "login-pqr123"
	// LoginSessionWithState is a code session carrying state "abcDE3!"
	LoginSessionWithState = "login-pqr345"
	// LoginSessionExpired expired a second before the fixture time
	LoginSessionExpired = "login-pqr456"
	// LoginSessionToken is a token session for client 1 without redirect URI
	LoginSessionToken = "login-pqr567"

	FixtureState = "abcDE3!"
)

// FixtureSeed returns the standard data set with expiries relative to now
func FixtureSeed(now time.Time) *storage.Seed {
	redirect := func(s string) *string { return &s }
	state := FixtureState
	originalURL := "/authorize?client_id=1&response_type=code"

	return &storage.Seed{
		Clients: []*storage.Client{
			{ID: ClientID1, Secret: ClientSecret1, Name: "Default client", RedirectURIs: []string{RedirectURI1a, RedirectURI1b}},
			{ID: ClientID2, Secret: ClientSecret2, Name: "Client 2", RedirectURIs: []string{RedirectURI2}},
			{ID: ClientID3, Secret: ClientSecret3, Name: "Client 3", RedirectURIs: []string{}},
		},
		Users: []*storage.User{
			{Email: UserEmail, Password: UserPassword},
		},
		AuthorizationCodes: []*storage.AuthorizationCode{
			{Code: CodeValid, Context: storage.CodeContext{ClientID: ClientID1, RedirectURI: redirect(RedirectURI1a), Email: UserEmail, ExpiresAt: now.Add(50 * time.Second)}},
			{Code: CodeExpired, Context: storage.CodeContext{ClientID: ClientID1, RedirectURI: redirect(RedirectURI1a), Email: UserEmail, ExpiresAt: now}},
			{Code: CodeOtherClient, Context: storage.CodeContext{ClientID: ClientID2, RedirectURI: redirect(RedirectURI1a), Email: UserEmail, ExpiresAt: now.Add(50 * time.Second)}},
			{Code: CodeNoRedirect, Context: storage.CodeContext{ClientID: ClientID1, Email: UserEmail, ExpiresAt: now.Add(50 * time.Second)}},
		},
		LoginSessions: []*storage.LoginSession{
			{ID: LoginSession, ClientID: ClientID1, ResponseType: storage.ResponseTypeCode, RedirectURI: redirect(RedirectURI1a), OriginalRequestURL: originalURL, ExpiresAt: now.Add(50 * time.Second)},
			{ID: LoginSessionWithState, ClientID: ClientID1, ResponseType: storage.ResponseTypeCode, RedirectURI: redirect(RedirectURI1a), OriginalRequestURL: originalURL, ExpiresAt: now.Add(50 * time.Second), State: &state},
			{ID: LoginSessionExpired, ClientID: ClientID1, ResponseType: storage.ResponseTypeCode, OriginalRequestURL: originalURL, ExpiresAt: now.Add(-time.Second)},
			{ID: LoginSessionToken, ClientID: ClientID1, ResponseType: storage.ResponseTypeToken, OriginalRequestURL: "/authorize?client_id=1&response_type=token", ExpiresAt: now.Add(50 * time.Second)},
		},
	}
}

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateRandomString generates a random base64url string of the given length
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// BasicAuth returns the value of an Authorization header for client credentials
func BasicAuth(clientID, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(clientID+":"+secret))
}

// AssertTimeEqual asserts two times are equal within a tolerance
func AssertTimeEqual(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("time mismatch: got %v, want %v (tolerance: %v, diff: %v)", got, want, tolerance, diff)
	}
}

// HTTPRequest is a helper for making test HTTP requests
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Cookies []*http.Cookie
	Body    string
}

// NewHTTPRequest creates a new HTTP request helper
func NewHTTPRequest(method, url string) *HTTPRequest {
	return &HTTPRequest{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *HTTPRequest) WithHeader(key, value string) *HTTPRequest {
	r.Headers[key] = value
	return r
}

// WithBody sets the request body
func (r *HTTPRequest) WithBody(body string) *HTTPRequest {
	r.Body = body
	return r
}

// WithForm sets a form-encoded body
func (r *HTTPRequest) WithForm(values url.Values) *HTTPRequest {
	r.Headers["Content-Type"] = "application/x-www-form-urlencoded"
	r.Body = values.Encode()
	return r
}

// WithJSON sets a JSON body
func (r *HTTPRequest) WithJSON(body string) *HTTPRequest {
	r.Headers["Content-Type"] = "application/json"
	r.Body = body
	return r
}

// WithCookies attaches cookies, typically taken from a previous response
func (r *HTTPRequest) WithCookies(cookies ...*http.Cookie) *HTTPRequest {
	r.Cookies = append(r.Cookies, cookies...)
	return r
}

// Do executes the HTTP request
func (r *HTTPRequest) Do(handler http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(r.Method, r.URL, strings.NewReader(r.Body))
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	for _, c := range r.Cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
