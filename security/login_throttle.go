package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxLoginFailures is the default number of failed logins allowed per IP per window
	DefaultMaxLoginFailures = 10

	// DefaultLoginFailureWindow is the default sliding window for counting failures
	DefaultLoginFailureWindow = 15 * time.Minute

	// DefaultLoginThrottleMaxEntries is the maximum number of IPs tracked
	DefaultLoginThrottleMaxEntries = 10000

	defaultLoginThrottleCleanupInterval = 5 * time.Minute
)

// loginFailureEntry tracks recent failed login timestamps for an IP address
type loginFailureEntry struct {
	ip       string
	failures []time.Time
}

// LoginThrottle blocks an IP address after too many failed logins within a
// sliding time window. Successful logins do not reset the count, so a valid
// account cannot be used to launder guesses against another.
type LoginThrottle struct {
	entries     map[string]*list.Element // IP -> list element
	lruList     *list.List               // LRU list of *loginFailureEntry
	mu          sync.Mutex
	maxFailures int
	window      time.Duration
	maxEntries  int
	clock       Clock
	logger      *slog.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once

	// Statistics
	totalBlocked   int64
	totalEvictions int64
}

// NewLoginThrottle creates a login throttle with default settings
func NewLoginThrottle(logger *slog.Logger) *LoginThrottle {
	return NewLoginThrottleWithConfig(DefaultMaxLoginFailures, DefaultLoginFailureWindow, DefaultLoginThrottleMaxEntries, logger)
}

// NewLoginThrottleWithConfig creates a login throttle with custom configuration
func NewLoginThrottleWithConfig(maxFailures int, window time.Duration, maxEntries int, logger *slog.Logger) *LoginThrottle {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxLoginFailures
		logger.Warn("Invalid maxFailures, using default", "maxFailures", maxFailures)
	}
	if window <= 0 {
		window = DefaultLoginFailureWindow
		logger.Warn("Invalid window, using default", "window", window)
	}
	if maxEntries <= 0 {
		maxEntries = DefaultLoginThrottleMaxEntries
	}

	lt := &LoginThrottle{
		entries:     make(map[string]*list.Element),
		lruList:     list.New(),
		maxFailures: maxFailures,
		window:      window,
		maxEntries:  maxEntries,
		clock:       SystemClock{},
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go lt.cleanupLoop(defaultLoginThrottleCleanupInterval)

	logger.Info("Login throttle initialized",
		"max_failures", maxFailures,
		"window", window,
		"max_entries", maxEntries)

	return lt
}

// SetClock replaces the clock used to age failures
func (lt *LoginThrottle) SetClock(clock Clock) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.clock = ClockOrDefault(clock)
}

// Allowed reports whether the IP may attempt another login.
// It does not record anything.
func (lt *LoginThrottle) Allowed(ip string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	elem, ok := lt.entries[ip]
	if !ok {
		return true
	}

	entry := elem.Value.(*loginFailureEntry)
	entry.failures = pruneBefore(entry.failures, lt.clock.Now().Add(-lt.window))
	if len(entry.failures) >= lt.maxFailures {
		lt.totalBlocked++
		return false
	}
	return true
}

// Failures returns the number of failures currently counted for ip
func (lt *LoginThrottle) Failures(ip string) int {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	elem, ok := lt.entries[ip]
	if !ok {
		return 0
	}
	entry := elem.Value.(*loginFailureEntry)
	entry.failures = pruneBefore(entry.failures, lt.clock.Now().Add(-lt.window))
	return len(entry.failures)
}

// RecordFailure records one failed login for ip
func (lt *LoginThrottle) RecordFailure(ip string) {
	now := lt.clockNow()

	lt.mu.Lock()
	defer lt.mu.Unlock()

	if elem, ok := lt.entries[ip]; ok {
		lt.lruList.MoveToFront(elem)
		entry := elem.Value.(*loginFailureEntry)
		entry.failures = append(pruneBefore(entry.failures, now.Add(-lt.window)), now)
		return
	}

	if len(lt.entries) >= lt.maxEntries {
		lt.evictLRU()
	}

	entry := &loginFailureEntry{ip: ip, failures: []time.Time{now}}
	lt.entries[ip] = lt.lruList.PushFront(entry)
}

func (lt *LoginThrottle) clockNow() time.Time {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.clock.Now()
}

// evictLRU removes the least recently used entry.
// Must be called with mutex locked.
func (lt *LoginThrottle) evictLRU() {
	elem := lt.lruList.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*loginFailureEntry)
	delete(lt.entries, entry.ip)
	lt.lruList.Remove(elem)
	lt.totalEvictions++
}

// pruneBefore drops timestamps older than cutoff. The slice is ordered oldest first.
func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

func (lt *LoginThrottle) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lt.Cleanup()
		case <-lt.stopCleanup:
			return
		}
	}
}

// Cleanup removes IPs whose failures have all aged out of the window
func (lt *LoginThrottle) Cleanup() {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	cutoff := lt.clock.Now().Add(-lt.window)
	removed := 0
	for ip, elem := range lt.entries {
		entry := elem.Value.(*loginFailureEntry)
		entry.failures = pruneBefore(entry.failures, cutoff)
		if len(entry.failures) == 0 {
			delete(lt.entries, ip)
			lt.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		lt.logger.Debug("Login throttle cleanup completed",
			"removed", removed,
			"remaining", len(lt.entries))
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (lt *LoginThrottle) Stop() {
	lt.stopOnce.Do(func() {
		close(lt.stopCleanup)
	})
}

// LoginThrottleStats holds login throttle statistics for monitoring
type LoginThrottleStats struct {
	TrackedIPs     int
	TotalBlocked   int64
	TotalEvictions int64
}

// GetStats returns current login throttle statistics
func (lt *LoginThrottle) GetStats() LoginThrottleStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	return LoginThrottleStats{
		TrackedIPs:     len(lt.entries),
		TotalBlocked:   lt.totalBlocked,
		TotalEvictions: lt.totalEvictions,
	}
}
