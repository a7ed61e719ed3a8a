// Package cache wraps a storage.Store with an in-process read-through cache
// for clients and users.
//
// Only registration data is cached. Login sessions, authorization codes and
// access tokens always go to the underlying store because they are
// single-use or change frequently.
package cache

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/storage"
)

const (
	// DefaultTTL is how long a cached client or user is served before re-fetching
	DefaultTTL = 5 * time.Minute

	// DefaultCleanupInterval is how often go-cache purges expired items
	DefaultCleanupInterval = time.Minute

	clientPrefix = "client:"
	userPrefix   = "user:"
)

// Store decorates a storage.Store with cached client and user lookups.
type Store struct {
	storage.Store

	cache  *gocache.Cache
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New wraps next. A zero ttl selects DefaultTTL.
func New(next storage.Store, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		Store:  next,
		cache:  gocache.New(ttl, DefaultCleanupInterval),
		logger: logger,
	}
}

// SetInstrumentation forwards inst to the wrapped store if it is instrumented
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if is, ok := s.Store.(interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}); ok {
		is.SetInstrumentation(inst)
	}
}

// Init initializes the underlying store and drops anything cached
func (s *Store) Init(ctx context.Context, seed *storage.Seed) error {
	s.cache.Flush()
	return s.Store.Init(ctx, seed)
}

// Shutdown shuts down the underlying store and drops anything cached
func (s *Store) Shutdown(ctx context.Context) error {
	s.cache.Flush()
	return s.Store.Shutdown(ctx)
}

// GetClient returns a cached copy of the client when available.
// Not-found results are not cached.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	key := clientPrefix + clientID
	if v, ok := s.cache.Get(key); ok {
		c := *v.(*storage.Client)
		c.RedirectURIs = append([]string(nil), c.RedirectURIs...)
		return &c, nil
	}

	client, err := s.Store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	stored := *client
	stored.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	s.cache.SetDefault(key, &stored)
	s.logger.Debug("Cached client", "client_id", clientID)
	return client, nil
}

// GetUserByEmail returns a cached copy of the user when available
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	key := userPrefix + storage.NormalizeEmail(email)
	if v, ok := s.cache.Get(key); ok {
		u := *v.(*storage.User)
		return &u, nil
	}

	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	stored := *user
	s.cache.SetDefault(key, &stored)
	return user, nil
}

// InvalidateClient drops a cached client
func (s *Store) InvalidateClient(clientID string) {
	s.cache.Delete(clientPrefix + clientID)
}

// InvalidateUser drops a cached user
func (s *Store) InvalidateUser(email string) {
	s.cache.Delete(userPrefix + storage.NormalizeEmail(email))
}

// Len returns the number of cached entries
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
