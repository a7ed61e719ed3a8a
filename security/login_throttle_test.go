package security

import (
	"sync"
	"testing"
	"time"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLoginThrottle_BlocksAfterMaxFailures(t *testing.T) {
	lt := NewLoginThrottleWithConfig(3, time.Minute, 100, nil)
	defer lt.Stop()

	clock := &steppingClock{now: time.Unix(1000, 0)}
	lt.SetClock(clock)

	ip := "192.168.1.1"
	for i := 0; i < 3; i++ {
		if !lt.Allowed(ip) {
			t.Fatalf("Allowed() after %d failures = false, want true", i)
		}
		lt.RecordFailure(ip)
	}

	if lt.Allowed(ip) {
		t.Error("Allowed() after 3 failures = true, want false")
	}
	if got := lt.GetStats().TotalBlocked; got != 1 {
		t.Errorf("TotalBlocked = %d, want 1", got)
	}

	// Other IPs are unaffected
	if !lt.Allowed("10.0.0.1") {
		t.Error("Allowed() for a different IP = false, want true")
	}
}

func TestLoginThrottle_WindowSlides(t *testing.T) {
	lt := NewLoginThrottleWithConfig(2, time.Minute, 100, nil)
	defer lt.Stop()

	clock := &steppingClock{now: time.Unix(1000, 0)}
	lt.SetClock(clock)

	ip := "192.168.1.1"
	lt.RecordFailure(ip)
	clock.Advance(30 * time.Second)
	lt.RecordFailure(ip)

	if lt.Allowed(ip) {
		t.Fatal("Allowed() = true, want false")
	}

	// The first failure ages out
	clock.Advance(31 * time.Second)
	if !lt.Allowed(ip) {
		t.Error("Allowed() after window slid = false, want true")
	}
	if got := lt.Failures(ip); got != 1 {
		t.Errorf("Failures() = %d, want 1", got)
	}
}

func TestLoginThrottle_Cleanup(t *testing.T) {
	lt := NewLoginThrottleWithConfig(2, time.Minute, 100, nil)
	defer lt.Stop()

	clock := &steppingClock{now: time.Unix(1000, 0)}
	lt.SetClock(clock)

	lt.RecordFailure("a")
	lt.RecordFailure("b")
	clock.Advance(2 * time.Minute)
	lt.RecordFailure("c")

	lt.Cleanup()

	if got := lt.GetStats().TrackedIPs; got != 1 {
		t.Errorf("TrackedIPs = %d, want 1", got)
	}
}

func TestLoginThrottle_LRUEviction(t *testing.T) {
	lt := NewLoginThrottleWithConfig(1, time.Minute, 2, nil)
	defer lt.Stop()

	lt.RecordFailure("a")
	lt.RecordFailure("b")
	lt.RecordFailure("c")

	stats := lt.GetStats()
	if stats.TrackedIPs != 2 {
		t.Errorf("TrackedIPs = %d, want 2", stats.TrackedIPs)
	}
	if stats.TotalEvictions != 1 {
		t.Errorf("TotalEvictions = %d, want 1", stats.TotalEvictions)
	}
	if !lt.Allowed("a") {
		t.Error("evicted IP should be allowed")
	}
}

func TestLoginThrottle_InvalidConfigUsesDefaults(t *testing.T) {
	lt := NewLoginThrottleWithConfig(0, 0, 0, nil)
	defer lt.Stop()

	if lt.maxFailures != DefaultMaxLoginFailures {
		t.Errorf("maxFailures = %d, want %d", lt.maxFailures, DefaultMaxLoginFailures)
	}
	if lt.window != DefaultLoginFailureWindow {
		t.Errorf("window = %v, want %v", lt.window, DefaultLoginFailureWindow)
	}
	if lt.maxEntries != DefaultLoginThrottleMaxEntries {
		t.Errorf("maxEntries = %d, want %d", lt.maxEntries, DefaultLoginThrottleMaxEntries)
	}
}

func TestLoginThrottle_StopTwice(t *testing.T) {
	lt := NewLoginThrottle(nil)
	lt.Stop()
	lt.Stop()
}
