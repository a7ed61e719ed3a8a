package security

import (
	"container/list"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimiterMaxEntries bounds the number of identifiers tracked at once
	DefaultRateLimiterMaxEntries = 10000

	defaultRateLimiterCleanupInterval = 5 * time.Minute
	defaultRateLimiterIdleTimeout     = 30 * time.Minute
)

// RateLimiterConfig configures a RateLimiter
type RateLimiterConfig struct {
	// Rate is the sustained number of requests per second per identifier.
	// Fractional values are allowed (0.5 = one request every two seconds).
	Rate float64

	// Burst is the maximum number of requests allowed in a burst
	Burst int

	// MaxEntries bounds tracked identifiers; least recently used entries are evicted.
	// Zero uses DefaultRateLimiterMaxEntries.
	MaxEntries int

	// IdleTimeout is how long an identifier may stay unused before cleanup removes it.
	// Default: 30 minutes
	IdleTimeout time.Duration
}

// rateLimiterEntry tracks a rate limiter and its last access time
type rateLimiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier (usually per client IP) rate limiting
// using a token bucket, with LRU eviction to bound memory.
type RateLimiter struct {
	limiters    map[string]*list.Element // identifier -> list element
	lruList     *list.List               // LRU list of *rateLimiterEntry
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	maxEntries  int
	idleTimeout time.Duration
	logger      *slog.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once

	// Statistics
	totalEvictions int64
	totalCleanups  int64
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond sustained
// requests and burst extra requests per identifier.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(RateLimiterConfig{Rate: requestsPerSecond, Burst: burst}, logger)
}

// NewRateLimiterWithConfig creates a rate limiter from a full configuration
// and starts its background cleanup goroutine. Call Stop to release it.
func NewRateLimiterWithConfig(cfg RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultRateLimiterMaxEntries
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultRateLimiterIdleTimeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
		logger.Warn("Rate limiter burst must be positive, using 1")
	}

	rl := &RateLimiter{
		limiters:    make(map[string]*list.Element),
		lruList:     list.New(),
		limit:       rate.Limit(cfg.Rate),
		burst:       cfg.Burst,
		maxEntries:  cfg.MaxEntries,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop(defaultRateLimiterCleanupInterval)

	return rl
}

// Allow checks if a request from the given identifier is allowed
func (rl *RateLimiter) Allow(identifier string) bool {
	allowed, _ := rl.AllowWithRetry(identifier)
	return allowed
}

// AllowWithRetry checks if a request is allowed and, when it is not, returns
// how long the caller should wait before retrying (rounded up to whole seconds).
func (rl *RateLimiter) AllowWithRetry(identifier string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry := rl.entryFor(identifier, now)
	if entry.limiter.AllowN(now, 1) {
		return true, 0
	}

	return false, rl.retryAfter(entry.limiter, now)
}

// entryFor returns the limiter for identifier, creating it if needed.
// Must be called with mutex locked.
func (rl *RateLimiter) entryFor(identifier string, now time.Time) *rateLimiterEntry {
	if elem, exists := rl.limiters[identifier]; exists {
		rl.lruList.MoveToFront(elem)
		entry := elem.Value.(*rateLimiterEntry)
		entry.lastAccess = now
		return entry
	}

	if len(rl.limiters) >= rl.maxEntries {
		rl.evictLRU()
	}

	entry := &rateLimiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastAccess: now,
	}
	rl.limiters[identifier] = rl.lruList.PushFront(entry)
	return entry
}

// retryAfter estimates the wait until one token is available
func (rl *RateLimiter) retryAfter(limiter *rate.Limiter, now time.Time) time.Duration {
	if rl.limit <= 0 {
		return time.Second
	}
	missing := 1 - limiter.TokensAt(now)
	if missing <= 0 {
		return time.Second
	}
	seconds := math.Ceil(missing / float64(rl.limit))
	return time.Duration(seconds) * time.Second
}

// evictLRU removes the least recently used entry.
// Must be called with mutex locked.
func (rl *RateLimiter) evictLRU() {
	elem := rl.lruList.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*rateLimiterEntry)
	delete(rl.limiters, entry.identifier)
	rl.lruList.Remove(elem)
	rl.totalEvictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"identifier", entry.identifier,
		"total_evictions", rl.totalEvictions,
		"current_entries", len(rl.limiters))
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(rl.idleTimeout)
		case <-rl.stopCleanup:
			return
		}
	}
}

// Cleanup removes limiters that haven't been accessed for maxIdleTime
func (rl *RateLimiter) Cleanup(maxIdleTime time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0

	// Entries are ordered most recent first, so idle ones cluster at the back
	for elem := rl.lruList.Back(); elem != nil; {
		entry := elem.Value.(*rateLimiterEntry)
		if now.Sub(entry.lastAccess) <= maxIdleTime {
			break
		}
		prev := elem.Prev()
		delete(rl.limiters, entry.identifier)
		rl.lruList.Remove(elem)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.totalCleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.limiters),
			"total_cleanups", rl.totalCleanups)
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	CurrentEntries int     // Current number of tracked identifiers
	MaxEntries     int     // Maximum allowed entries
	TotalEvictions int64   // Total number of LRU evictions
	TotalCleanups  int64   // Total number of cleanup operations
	MemoryPressure float64 // Percentage of max capacity used (0-100)
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := Stats{
		CurrentEntries: len(rl.limiters),
		MaxEntries:     rl.maxEntries,
		TotalEvictions: rl.totalEvictions,
		TotalCleanups:  rl.totalCleanups,
	}
	stats.MemoryPressure = float64(stats.CurrentEntries) / float64(rl.maxEntries) * 100.0

	return stats
}
