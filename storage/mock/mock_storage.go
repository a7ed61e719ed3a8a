// Package mock provides a storage.Store whose operations can be overridden
// per test, for injecting failures the real backends cannot produce on demand.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/oauth-core/storage"
	"github.com/giantswarm/oauth-core/storage/memory"
)

// Store is a storage.Store for testing. Each operation calls the matching
// Func field when set and otherwise delegates to the wrapped store.
// Calls are counted per operation name.
type Store struct {
	delegate storage.Store

	GetClientFunc               func(ctx context.Context, clientID string) (*storage.Client, error)
	GetUserByEmailFunc          func(ctx context.Context, email string) (*storage.User, error)
	CreateLoginSessionFunc      func(ctx context.Context, session *storage.LoginSession) error
	PopLoginSessionFunc         func(ctx context.Context, id string) (*storage.LoginSession, error)
	CreateAuthorizationCodeFunc func(ctx context.Context, code *storage.AuthorizationCode) error
	PopAuthorizationCodeFunc    func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	CreateAccessTokenFunc       func(ctx context.Context, token *storage.AccessToken) error

	mu         sync.Mutex
	callCounts map[string]int
}

var _ storage.Store = (*Store)(nil)

// New returns a mock that delegates to a fresh in-memory store
func New() *Store {
	return Wrap(memory.New())
}

// Wrap returns a mock that delegates to store
func Wrap(store storage.Store) *Store {
	return &Store{
		delegate:   store,
		callCounts: make(map[string]int),
	}
}

// CallCount returns how often the named operation was called
func (m *Store) CallCount(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[operation]
}

func (m *Store) record(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCounts[operation]++
}

// Init delegates to the wrapped store
func (m *Store) Init(ctx context.Context, seed *storage.Seed) error {
	m.record("Init")
	return m.delegate.Init(ctx, seed)
}

// Shutdown delegates to the wrapped store
func (m *Store) Shutdown(ctx context.Context) error {
	m.record("Shutdown")
	return m.delegate.Shutdown(ctx)
}

// GetClient retrieves a client
func (m *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.record("GetClient")
	if m.GetClientFunc != nil {
		return m.GetClientFunc(ctx, clientID)
	}
	return m.delegate.GetClient(ctx, clientID)
}

// GetUserByEmail retrieves a user
func (m *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	m.record("GetUserByEmail")
	if m.GetUserByEmailFunc != nil {
		return m.GetUserByEmailFunc(ctx, email)
	}
	return m.delegate.GetUserByEmail(ctx, email)
}

// CreateLoginSession saves a login session
func (m *Store) CreateLoginSession(ctx context.Context, session *storage.LoginSession) error {
	m.record("CreateLoginSession")
	if m.CreateLoginSessionFunc != nil {
		return m.CreateLoginSessionFunc(ctx, session)
	}
	return m.delegate.CreateLoginSession(ctx, session)
}

// PopLoginSession consumes a login session
func (m *Store) PopLoginSession(ctx context.Context, id string) (*storage.LoginSession, error) {
	m.record("PopLoginSession")
	if m.PopLoginSessionFunc != nil {
		return m.PopLoginSessionFunc(ctx, id)
	}
	return m.delegate.PopLoginSession(ctx, id)
}

// CreateAuthorizationCode saves an authorization code
func (m *Store) CreateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.record("CreateAuthorizationCode")
	if m.CreateAuthorizationCodeFunc != nil {
		return m.CreateAuthorizationCodeFunc(ctx, code)
	}
	return m.delegate.CreateAuthorizationCode(ctx, code)
}

// PopAuthorizationCode consumes an authorization code
func (m *Store) PopAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.record("PopAuthorizationCode")
	if m.PopAuthorizationCodeFunc != nil {
		return m.PopAuthorizationCodeFunc(ctx, code)
	}
	return m.delegate.PopAuthorizationCode(ctx, code)
}

// CreateAccessToken saves an access token
func (m *Store) CreateAccessToken(ctx context.Context, token *storage.AccessToken) error {
	m.record("CreateAccessToken")
	if m.CreateAccessTokenFunc != nil {
		return m.CreateAccessTokenFunc(ctx, token)
	}
	return m.delegate.CreateAccessToken(ctx, token)
}
