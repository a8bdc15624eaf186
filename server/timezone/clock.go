// Package timezone provides the clock abstraction, timezone snapshots, and
// the periodic timezone/DST change detector used by the cache service.
//
// All time-based decisions in the service go through a Clock so tests can
// drive virtual time deterministically.
package timezone

import (
	"sync"
	"time"
)

// Clock provides wall-clock time and the local timezone.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// SystemClock is the real clock.
type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (*SystemClock) Now() time.Time {
	return time.Now()
}

func (*SystemClock) Location() *time.Location {
	return time.Local
}

// FakeClock is a settable clock for tests. Safe for concurrent use.
type FakeClock struct {
	mu  sync.RWMutex
	now time.Time
	loc *time.Location
}

// NewFakeClock creates a fake clock pinned at now, in now's location.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now, loc: now.Location()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now.In(c.loc)
}

func (c *FakeClock) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loc
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetNow pins the clock at a specific instant.
func (c *FakeClock) SetNow(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// SetLocation simulates the device moving to a different timezone.
func (c *FakeClock) SetLocation(loc *time.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loc = loc
}

// LocalDate formats t's calendar day in the clock's location.
func LocalDate(clock Clock, t time.Time) string {
	return t.In(clock.Location()).Format(DateLayout)
}

// Today returns the current calendar day in the clock's location.
func Today(clock Clock) string {
	return clock.Now().In(clock.Location()).Format(DateLayout)
}

// DateLayout is the calendar-day format used by content dates.
const DateLayout = "2006-01-02"
