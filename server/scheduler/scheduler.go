// Package scheduler arms the daily refresh timer. It is an explicit
// Idle/Armed state machine over a cancellable one-shot timer: firing
// invalidates today's cached slot and immediately re-arms for the next
// computed instant. Actual content population belongs to the upstream caller.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/todayfeed/server/timezone"
)

// State is the scheduler's timer state.
type State int

const (
	// StateIdle means no timer is armed.
	StateIdle State = iota
	// StateArmed means a timer is counting down to the next refresh instant.
	StateArmed
)

func (s State) String() string {
	if s == StateArmed {
		return "armed"
	}
	return "idle"
}

const (
	// minDelay is the anti-thrash guard against repeated immediate fires.
	minDelay = 5 * time.Minute
	// maxDelay bounds a sane next-refresh distance; beyond it the
	// computation is discarded in favor of now+24h.
	maxDelay = 25 * time.Hour
	// errorRearmDelay is the fallback re-arm distance after a refresh
	// callback failure.
	errorRearmDelay = time.Hour
)

// RefreshFunc runs when the timer fires; it must not block on the network.
type RefreshFunc func(ctx context.Context) error

// Scheduler computes the next refresh instant (timezone and DST aware) and
// keeps exactly one timer armed for it. Cancel-then-create: two live timers
// for the same purpose never exist.
type Scheduler struct {
	clock       timezone.Clock
	timers      TimerFactory
	refresh     RefreshFunc
	refreshHour int

	mu     sync.Mutex
	state  State
	timer  Timer
	nextAt time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

func New(clock timezone.Clock, timers TimerFactory, refreshHour int, refresh RefreshFunc) *Scheduler {
	if timers == nil {
		timers = RealTimers
	}
	if refreshHour < 0 || refreshHour > 23 {
		refreshHour = 3
	}
	return &Scheduler{
		clock:       clock,
		timers:      timers,
		refresh:     refresh,
		refreshHour: refreshHour,
	}
}

// Start arms the first timer. Idempotent while running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.armLocked("startup")
}

// Stop cancels the armed timer and returns the scheduler to Idle.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.ctx, s.cancel = nil, nil
	}
	s.disarmLocked()
}

// State returns the current timer state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextAt returns the next refresh instant while armed.
func (s *Scheduler) NextAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextAt, s.state == StateArmed
}

// Rearm cancels the current timer and arms a freshly computed one. Called by
// the timezone detector when the offset changes under an armed timer.
func (s *Scheduler) Rearm(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return
	}
	s.armLocked(reason)
}

func (s *Scheduler) armLocked(reason string) {
	s.disarmLocked()

	now := s.clock.Now().In(s.clock.Location())
	next := NextRefresh(now, s.refreshHour)
	s.armAtLocked(next, reason)
}

func (s *Scheduler) armAtLocked(next time.Time, reason string) {
	now := s.clock.Now()
	delay := next.Sub(now)
	s.timer = s.timers(delay, s.fire)
	s.nextAt = next
	s.state = StateArmed

	slog.Info("refresh timer armed",
		"next_refresh", next.Format(time.RFC3339),
		"delay", delay.String(),
		"reason", reason)
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = StateIdle
	s.nextAt = time.Time{}
}

// fire runs the refresh callback and re-arms. Any error or panic inside the
// callback re-arms at a fixed fallback distance instead of crashing.
func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.state = StateIdle
	s.timer = nil
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	err := s.runRefresh(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return
	}
	if err != nil {
		slog.Error("refresh failed, re-arming with fallback delay", "error", err)
		s.armAtLocked(s.clock.Now().Add(errorRearmDelay), "refresh-error")
		return
	}
	s.armLocked("refresh-complete")
}

func (s *Scheduler) runRefresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("refresh callback panicked", "panic", r)
			err = errPanic
		}
	}()
	if s.refresh == nil {
		return nil
	}
	return s.refresh(ctx)
}

var errPanic = errors.New("refresh callback panicked")

// NextRefresh computes the next refresh instant after now.
//
// The refresh-hour instant for a day is adjusted when a DST transition lands
// within an hour of it: on spring forward the instant shifts later by the
// gained offset, on fall back it stays put. Results outside (0, 25h] fall
// back to now+24h, and anything under five minutes out is clamped to five
// minutes as an anti-thrash guard.
func NextRefresh(now time.Time, refreshHour int) time.Time {
	target := refreshInstant(now, refreshHour)
	if !now.Before(target) {
		target = refreshInstant(now.AddDate(0, 0, 1), refreshHour)
	}

	delta := target.Sub(now)
	if delta < 0 || delta > maxDelay {
		target = now.Add(24 * time.Hour)
	}
	if target.Sub(now) < minDelay {
		target = now.Add(minDelay)
	}
	return target
}

// refreshInstant returns the DST-adjusted refresh instant on day's date.
func refreshInstant(day time.Time, refreshHour int) time.Time {
	loc := day.Location()
	instant := time.Date(day.Year(), day.Month(), day.Day(), refreshHour, 0, 0, 0, loc)

	_, offsetBefore := instant.Add(-time.Hour).Zone()
	_, offsetAfter := instant.Add(time.Hour).Zone()
	if offsetAfter > offsetBefore {
		// Spring forward: the clock jumped ahead, push the instant later by
		// the gained offset so it stays on the wall-clock side of the gap.
		instant = instant.Add(time.Duration(offsetAfter-offsetBefore) * time.Second)
	}
	return instant
}
