package scheduler

import (
	"sync"
	"time"
)

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop cancels the timer; it reports whether the timer was still armed.
	Stop() bool
}

// TimerFactory creates one-shot timers. The production factory wraps
// time.AfterFunc; tests substitute a fake that fires on demand so virtual
// time stays deterministic.
type TimerFactory func(d time.Duration, fn func()) Timer

// RealTimers is the production timer factory.
func RealTimers(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// FakeTimer is a manually fired timer for tests.
type FakeTimer struct {
	Delay time.Duration

	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *FakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	armed := !t.stopped && t.fn != nil
	t.stopped = true
	return armed
}

// Stopped reports whether the timer has been cancelled or fired.
func (t *FakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback unless the timer was stopped or already fired.
func (t *FakeTimer) Fire() {
	t.mu.Lock()
	fn := t.fn
	fired := t.stopped
	t.stopped = true
	t.fn = nil
	t.mu.Unlock()
	if !fired && fn != nil {
		fn()
	}
}

// FakeTimers collects created fake timers in order.
type FakeTimers struct {
	mu     sync.Mutex
	timers []*FakeTimer
}

func NewFakeTimers() *FakeTimers {
	return &FakeTimers{}
}

// Factory is the TimerFactory backed by this collection.
func (f *FakeTimers) Factory(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &FakeTimer{Delay: d, fn: fn}
	f.timers = append(f.timers, timer)
	return timer
}

// Latest returns the most recently created timer, or nil.
func (f *FakeTimers) Latest() *FakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		return nil
	}
	return f.timers[len(f.timers)-1]
}

// Created returns how many timers have been created.
func (f *FakeTimers) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}
