// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging codes and tokens
	tokenIDLogLength = 8

	storageType = "memory"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	initialized bool

	clients       map[string]*storage.Client
	users         map[string]*storage.User // normalized email -> user
	loginSessions map[string]*storage.LoginSession
	authCodes     map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.AccessToken

	clock  security.Clock
	logger *slog.Logger

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	sizeCallbacks   metric.Registration

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCount       atomic.Int64
	usersCount         atomic.Int64
	loginSessionsCount atomic.Int64
	authCodesCount     atomic.Int64
	accessTokensCount  atomic.Int64

	// Expired entry sweeping, disabled when cleanupInterval is zero
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store without background cleanup.
// Expired login sessions and codes are still rejected by the server; they
// are simply kept until popped.
func New() *Store {
	return NewWithCleanup(0)
}

// NewWithCleanup creates a new in-memory store that sweeps expired login
// sessions, authorization codes and access tokens every cleanupInterval.
// A zero or negative interval disables sweeping.
func NewWithCleanup(cleanupInterval time.Duration) *Store {
	if cleanupInterval < 0 {
		cleanupInterval = 0
	}
	s := &Store{
		clock:           security.SystemClock{},
		logger:          slog.Default(),
		cleanupInterval: cleanupInterval,
	}
	s.reset()
	return s
}

// reset replaces all collections with empty maps. Must be called with mutex locked.
func (s *Store) reset() {
	s.clients = make(map[string]*storage.Client)
	s.users = make(map[string]*storage.User)
	s.loginSessions = make(map[string]*storage.LoginSession)
	s.authCodes = make(map[string]*storage.AuthorizationCode)
	s.accessTokens = make(map[string]*storage.AccessToken)
	s.syncCounts()
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// SetClock sets the clock used by the expiry sweeper
func (s *Store) SetClock(clock security.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = security.ClockOrDefault(clock)
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.syncCounts()
	s.mu.Unlock()

	if inst == nil {
		return
	}

	reg, err := inst.RegisterStorageSizeCallbacks(instrumentation.StorageSizeCallbacks{
		Clients:            s.clientsCount.Load,
		Users:              s.usersCount.Load,
		LoginSessions:      s.loginSessionsCount.Load,
		AuthorizationCodes: s.authCodesCount.Load,
		AccessTokens:       s.accessTokensCount.Load,
	})
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
		return
	}
	s.mu.Lock()
	s.sizeCallbacks = reg
	s.mu.Unlock()
}

// syncCounts refreshes the atomic size counters. Must be called with mutex locked.
func (s *Store) syncCounts() {
	s.clientsCount.Store(int64(len(s.clients)))
	s.usersCount.Store(int64(len(s.users)))
	s.loginSessionsCount.Store(int64(len(s.loginSessions)))
	s.authCodesCount.Store(int64(len(s.authCodes)))
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
}

// ============================================================
// Lifecycle
// ============================================================

// Init loads seed into an empty store and makes it ready for use.
// Calling Init again replaces all data with the new seed.
func (s *Store) Init(ctx context.Context, seed *storage.Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	if seed != nil {
		for _, c := range seed.Clients {
			if c == nil || c.ID == "" {
				return fmt.Errorf("seed client must have an ID")
			}
			s.clients[c.ID] = cloneClient(c)
		}
		for _, u := range seed.Users {
			if u == nil || u.Email == "" {
				return fmt.Errorf("seed user must have an email")
			}
			cp := *u
			cp.Email = storage.NormalizeEmail(u.Email)
			s.users[cp.Email] = &cp
		}
		for _, ls := range seed.LoginSessions {
			if ls == nil || ls.ID == "" {
				return fmt.Errorf("seed login session must have an ID")
			}
			s.loginSessions[ls.ID] = cloneLoginSession(ls)
		}
		for _, ac := range seed.AuthorizationCodes {
			if ac == nil || ac.Code == "" {
				return fmt.Errorf("seed authorization code must have a value")
			}
			s.authCodes[ac.Code] = cloneAuthorizationCode(ac)
		}
		for _, at := range seed.AccessTokens {
			if at == nil || at.Token == "" {
				return fmt.Errorf("seed access token must have a value")
			}
			cp := *at
			s.accessTokens[at.Token] = &cp
		}
	}
	s.syncCounts()

	wasInitialized := s.initialized
	s.initialized = true

	if !wasInitialized && s.cleanupInterval > 0 {
		s.stopCleanup = make(chan struct{})
		s.cleanupDone = make(chan struct{})
		go s.cleanupLoop(s.stopCleanup, s.cleanupDone)
	}

	s.logger.Info("Initialized in-memory storage",
		"clients", len(s.clients),
		"users", len(s.users),
		"cleanup_interval", s.cleanupInterval)
	return nil
}

// Shutdown stops the cleanup goroutine and drops all data.
// It is safe to call more than once.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = false
	stop, done := s.stopCleanup, s.cleanupDone
	s.stopCleanup, s.cleanupDone = nil, nil
	reg := s.sizeCallbacks
	s.sizeCallbacks = nil
	s.reset()
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if reg != nil {
		if err := reg.Unregister(); err != nil {
			s.logger.Warn("Failed to unregister storage size callbacks", "error", err)
		}
	}
	s.logger.Debug("In-memory storage shut down")
	return nil
}

// ============================================================
// ClientStore / UserStore Implementation
// ============================================================

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		err = storage.ErrNotInitialized
		return nil, err
	}

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}
	return cloneClient(client), nil
}

// GetUserByEmail retrieves a user by email, ignoring case
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	ctx, span := s.startStorageSpan(ctx, "get_user")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_user", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		err = storage.ErrNotInitialized
		return nil, err
	}

	user, ok := s.users[storage.NormalizeEmail(email)]
	if !ok {
		err = storage.ErrUserNotFound
		return nil, err
	}
	cp := *user
	return &cp, nil
}

// ============================================================
// LoginSessionStore Implementation
// ============================================================

// CreateLoginSession saves a login session
func (s *Store) CreateLoginSession(ctx context.Context, session *storage.LoginSession) error {
	ctx, span := s.startStorageSpan(ctx, "create_login_session")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "create_login_session", err, startTime)
	}()

	if session == nil || session.ID == "" {
		err = fmt.Errorf("login session must have an ID")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		err = storage.ErrNotInitialized
		return err
	}

	s.loginSessions[session.ID] = cloneLoginSession(session)
	s.loginSessionsCount.Store(int64(len(s.loginSessions)))
	s.logger.Debug("Saved login session", "client_id", session.ClientID)
	return nil
}

// PopLoginSession atomically retrieves and deletes a login session
func (s *Store) PopLoginSession(ctx context.Context, id string) (*storage.LoginSession, error) {
	ctx, span := s.startStorageSpan(ctx, "pop_login_session")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "pop_login_session", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic get-and-delete
	defer s.mu.Unlock()

	if !s.initialized {
		err = storage.ErrNotInitialized
		return nil, err
	}

	session, ok := s.loginSessions[id]
	if !ok {
		err = storage.ErrLoginSessionNotFound
		return nil, err
	}
	delete(s.loginSessions, id)
	s.loginSessionsCount.Store(int64(len(s.loginSessions)))

	return session, nil
}

// GetLoginSession returns a login session without consuming it.
// It is not part of storage.Store and exists for inspection in tests and tooling.
func (s *Store) GetLoginSession(ctx context.Context, id string) (*storage.LoginSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.loginSessions[id]
	if !ok {
		return nil, storage.ErrLoginSessionNotFound
	}
	return cloneLoginSession(session), nil
}

// ============================================================
// AuthorizationCodeStore Implementation
// ============================================================

// CreateAuthorizationCode saves an issued authorization code
func (s *Store) CreateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "create_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "create_authorization_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("authorization code must have a value")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		err = storage.ErrNotInitialized
		return err
	}

	s.authCodes[code.Code] = cloneAuthorizationCode(code)
	s.authCodesCount.Store(int64(len(s.authCodes)))
	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.Context.ClientID)
	return nil
}

// PopAuthorizationCode atomically retrieves and deletes an authorization code.
// Exactly one of several concurrent callers for the same code succeeds.
func (s *Store) PopAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "pop_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "pop_authorization_code", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic get-and-delete
	defer s.mu.Unlock()

	if !s.initialized {
		err = storage.ErrNotInitialized
		return nil, err
	}

	authCode, ok := s.authCodes[code]
	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}
	delete(s.authCodes, code)
	s.authCodesCount.Store(int64(len(s.authCodes)))

	s.logger.Debug("Consumed authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
	return authCode, nil
}

// GetAuthorizationCode returns an authorization code without consuming it.
// It is not part of storage.Store and exists for inspection in tests and tooling.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	authCode, ok := s.authCodes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	return cloneAuthorizationCode(authCode), nil
}

// ============================================================
// AccessTokenStore Implementation
// ============================================================

// CreateAccessToken saves an issued access token
func (s *Store) CreateAccessToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "create_access_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "create_access_token", err, startTime)
	}()

	if token == nil || token.Token == "" {
		err = fmt.Errorf("access token must have a value")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		err = storage.ErrNotInitialized
		return err
	}

	cp := *token
	s.accessTokens[token.Token] = &cp
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken returns a stored access token.
// It is not part of storage.Store and exists for inspection in tests and tooling.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.accessTokens[token]
	if !ok {
		return nil, storage.ErrAccessTokenNotFound
	}
	cp := *at
	return &cp, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Cleanup removes expired login sessions, authorization codes and access
// tokens. It returns the number of removed entries.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0
	for id, ls := range s.loginSessions {
		if security.IsExpired(s.clock, ls.ExpiresAt) {
			delete(s.loginSessions, id)
			cleaned++
		}
	}
	for code, ac := range s.authCodes {
		if security.IsExpired(s.clock, ac.Context.ExpiresAt) {
			delete(s.authCodes, code)
			cleaned++
		}
	}
	for token, at := range s.accessTokens {
		if security.IsExpired(s.clock, at.ExpiresAt) {
			delete(s.accessTokens, token)
			cleaned++
		}
	}
	s.syncCounts()

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
	return cleaned
}

// ============================================================
// Copies
// ============================================================

func cloneClient(c *storage.Client) *storage.Client {
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	return &cp
}

func cloneLoginSession(ls *storage.LoginSession) *storage.LoginSession {
	cp := *ls
	cp.RedirectURI = cloneStringPtr(ls.RedirectURI)
	cp.State = cloneStringPtr(ls.State)
	return &cp
}

func cloneAuthorizationCode(ac *storage.AuthorizationCode) *storage.AuthorizationCode {
	cp := *ac
	cp.Context.RedirectURI = cloneStringPtr(ac.Context.RedirectURI)
	return &cp
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation))
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := "success"
	if err != nil {
		result = "error"
		if storage.IsNotFoundError(err) {
			result = "not_found"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
