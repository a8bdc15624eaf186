package syncer

import "sync"

// Status is the connectivity state reported by the monitor.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	// StatusLimited is a reachable but constrained network, such as a
	// captive portal or a metered link. Sync still runs on it.
	StatusLimited Status = "limited"
)

// Reachable reports whether sync should be attempted under this status.
func (s Status) Reachable() bool {
	return s == StatusOnline || s == StatusLimited
}

// Monitor reports connectivity and streams transitions. Implementations live
// outside this subsystem; the fakes below exist for wiring and tests.
type Monitor interface {
	IsOnline() bool
	Status() Status
	// Subscribe returns a channel of status transitions and a cancel
	// function that closes it.
	Subscribe() (<-chan Status, func())
}

// StaticMonitor always reports a fixed status and never emits transitions.
type StaticMonitor struct {
	Fixed Status
}

func (m StaticMonitor) IsOnline() bool { return m.Fixed.Reachable() }

func (m StaticMonitor) Status() Status { return m.Fixed }

func (m StaticMonitor) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

// FakeMonitor is a controllable monitor for tests. SetStatus records the new
// status and pushes it to every live subscriber.
type FakeMonitor struct {
	mu     sync.Mutex
	status Status
	subs   map[chan Status]struct{}
}

func NewFakeMonitor(initial Status) *FakeMonitor {
	return &FakeMonitor{
		status: initial,
		subs:   make(map[chan Status]struct{}),
	}
}

func (m *FakeMonitor) IsOnline() bool {
	return m.Status().Reachable()
}

func (m *FakeMonitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *FakeMonitor) Subscribe() (<-chan Status, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Status, 8)
	m.subs[ch] = struct{}{}
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// SetStatus changes the reported status and notifies subscribers.
func (m *FakeMonitor) SetStatus(status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	for ch := range m.subs {
		select {
		case ch <- status:
		default:
		}
	}
}
