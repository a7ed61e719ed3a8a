package security

import "time"

// Clock supplies the current time. Components that judge expiry take a Clock
// so tests can control time deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now
type SystemClock struct{}

// Now returns the current wall-clock time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ClockOrDefault returns clock, or SystemClock when clock is nil
func ClockOrDefault(clock Clock) Clock {
	if clock == nil {
		return SystemClock{}
	}
	return clock
}

// ExpiresAt computes the expiry timestamp ttl after the clock's current time
func ExpiresAt(clock Clock, ttl time.Duration) time.Time {
	return ClockOrDefault(clock).Now().Add(ttl)
}

// IsExpired reports whether expiresAt has been reached.
// An entity expiring exactly now is expired. A zero expiresAt is treated as
// expired, so a record that lost its expiry can never be redeemed.
func IsExpired(clock Clock, expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return true
	}
	return !ClockOrDefault(clock).Now().Before(expiresAt)
}

// SecondsToDuration converts a TTL configured in seconds to a time.Duration
func SecondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}
