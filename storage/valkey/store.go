package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth:"

	// tokenIDLogLength is the number of characters to include when logging codes and tokens
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// keyExpiryGrace keeps expired records around a little longer than their
	// expires_at, so a late pop reports "expired" instead of "unknown"
	keyExpiryGrace = time.Minute

	// MaxKeyLength is the maximum accepted length of an ID, email, code or token
	MaxKeyLength = 512

	storageType = "valkey"
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Clock computes key TTLs from expiry timestamps (default: system clock)
	Clock security.Clock
}

// Store is a Valkey-backed implementation of storage.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
	clock  security.Clock

	initialized atomic.Bool
	closeOnce   sync.Once

	// encryptor seals secrets and e-mails inside stored records.
	// Access must be synchronized via encryptorMu
	encryptor   *security.Encryptor
	encryptorMu sync.RWMutex

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
		clock:  security.ClockOrDefault(cfg.Clock),
	}, nil
}

// SetEncryptor enables encryption of client secrets, user passwords and
// e-mail addresses held in records. User lookup keys stay in plain text.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptorMu.Lock()
	defer s.encryptorMu.Unlock()
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Field encryption at rest enabled for Valkey storage")
	}
}

// getEncryptor returns the current encryptor (thread-safe)
func (s *Store) getEncryptor() *security.Encryptor {
	s.encryptorMu.RLock()
	defer s.encryptorMu.RUnlock()
	return s.encryptor
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// ============================================================
// Lifecycle
// ============================================================

// Init writes seed into Valkey and marks the store ready.
// Seed entries overwrite existing keys with the same ID; other keys are left alone.
func (s *Store) Init(ctx context.Context, seed *storage.Seed) error {
	s.initialized.Store(true)
	if seed == nil {
		return nil
	}

	for _, c := range seed.Clients {
		if c == nil || c.ID == "" {
			return fmt.Errorf("seed client must have an ID")
		}
		if err := s.putClient(ctx, c); err != nil {
			return err
		}
	}
	for _, u := range seed.Users {
		if u == nil || u.Email == "" {
			return fmt.Errorf("seed user must have an email")
		}
		if err := s.putUser(ctx, u); err != nil {
			return err
		}
	}
	for _, ls := range seed.LoginSessions {
		if err := s.CreateLoginSession(ctx, ls); err != nil {
			return fmt.Errorf("failed to seed login session: %w", err)
		}
	}
	for _, ac := range seed.AuthorizationCodes {
		if err := s.CreateAuthorizationCode(ctx, ac); err != nil {
			return fmt.Errorf("failed to seed authorization code: %w", err)
		}
	}
	for _, at := range seed.AccessTokens {
		if err := s.CreateAccessToken(ctx, at); err != nil {
			return fmt.Errorf("failed to seed access token: %w", err)
		}
	}

	s.logger.Info("Seeded Valkey storage",
		"clients", len(seed.Clients),
		"users", len(seed.Users))
	return nil
}

// Shutdown closes the Valkey client connection. It is safe to call more than once.
func (s *Store) Shutdown(ctx context.Context) error {
	s.initialized.Store(false)
	s.closeOnce.Do(func() {
		s.client.Close()
		s.logger.Info("Valkey storage connection closed")
	})
	return nil
}

func (s *Store) checkInitialized() error {
	if !s.initialized.Load() {
		return storage.ErrNotInitialized
	}
	return nil
}

// ============================================================
// Key Helpers
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) userKey(email string) string {
	return s.prefix + "user:" + storage.NormalizeEmail(email)
}

func (s *Store) loginSessionKey(id string) string {
	return s.prefix + "login:" + id
}

func (s *Store) codeKey(code string) string {
	return s.prefix + "code:" + code
}

func (s *Store) accessTokenKey(token string) string {
	return s.prefix + "token:" + token
}

// ============================================================
// Internal Helpers
// ============================================================

func validateKeyLength(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if len(value) > MaxKeyLength {
		return fmt.Errorf("%s exceeds maximum length of %d", fieldName, MaxKeyLength)
	}
	return nil
}

// keyTTL returns the key lifetime for a record expiring at expiresAt.
// Records that are already expired still get keyExpiryGrace so the server can
// report them as expired.
func keyTTL(clock security.Clock, expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(security.ClockOrDefault(clock).Now())
	if ttl < 0 {
		ttl = 0
	}
	// Valkey EX has second granularity
	return (ttl + keyExpiryGrace).Truncate(time.Second)
}

// setJSON marshals v and stores it under key, with a TTL when ttl > 0
func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	var cmd valkeygo.Completed
	if ttl > 0 {
		cmd = s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(string(data)).Build()
	}
	return s.client.Do(ctx, cmd).Error()
}

// getJSON loads key into v. found is false when the key does not exist.
func (s *Store) getJSON(ctx context.Context, key string, v any) (found bool, err error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return true, nil
}

// popJSON atomically reads and deletes key with GETDEL
func (s *Store) popJSON(ctx context.Context, key string, v any) (found bool, err error) {
	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return true, nil
}

// isNilError reports whether err is a Valkey nil reply (key not found)
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// ============================================================
// Instrumentation Helpers
// ============================================================

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

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

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

// observe wraps a storage operation with a span and metrics
func (s *Store) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := s.startStorageSpan(ctx, operation)
	defer span.End()

	startTime := time.Now()
	err := fn(ctx)
	s.recordStorageOperation(ctx, span, operation, err, startTime)
	return err
}
