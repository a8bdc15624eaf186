// Package syncer reconciles locally cached content and queued interactions
// whenever connectivity comes back. The whole sequence is best-effort: a
// failing step is logged and retried with exponential backoff, never allowed
// to block reads of the cached content.
package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/todayfeed/server/cache"
	"github.com/hrygo/todayfeed/server/errlog"
	"github.com/hrygo/todayfeed/server/scheduler"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
)

// Config bounds the retry behavior.
type Config struct {
	// BaseDelay is the first retry distance; each subsequent retry doubles it.
	BaseDelay time.Duration
	// MaxSyncRetries caps whole-sequence retries before giving up until the
	// next connectivity transition.
	MaxSyncRetries int
	// MaxInteractionRetries caps per-interaction delivery attempts; an
	// interaction past the cap is dropped, not retried further.
	MaxInteractionRetries int
}

func (c *Config) normalize() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.MaxSyncRetries <= 0 {
		c.MaxSyncRetries = 5
	}
	if c.MaxInteractionRetries <= 0 {
		c.MaxInteractionRetries = 3
	}
}

// disconnectRecord is a diagnostics snapshot taken when connectivity drops.
type disconnectRecord struct {
	At             time.Time `json:"at"`
	Status         Status    `json:"status"`
	QueueDepth     int       `json:"queueDepth"`
	CacheSizeBytes int       `json:"cacheSizeBytes"`
}

// syncRecord is persisted after every fully successful sync.
type syncRecord struct {
	At     time.Time `json:"at"`
	Status Status    `json:"status"`
}

// Coordinator owns the pending-interaction queue and the sync sequence.
// Exactly one sync runs at a time; concurrent attempts short-circuit.
type Coordinator struct {
	store   *store.Store
	cache   *cache.Cache
	clock   timezone.Clock
	errors  *errlog.Log
	monitor Monitor
	sink    InteractionSink
	timers  scheduler.TimerFactory
	config  Config

	mu         sync.Mutex
	syncing    bool
	retryTimer scheduler.Timer
	cancelSub  func()
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(s *store.Store, c *cache.Cache, clock timezone.Clock, errors *errlog.Log, monitor Monitor, sink InteractionSink, timers scheduler.TimerFactory, config Config) *Coordinator {
	config.normalize()
	if timers == nil {
		timers = scheduler.RealTimers
	}
	return &Coordinator{
		store:   s,
		cache:   c,
		clock:   clock,
		errors:  errors,
		monitor: monitor,
		sink:    sink,
		timers:  timers,
		config:  config,
	}
}

// Run subscribes to connectivity transitions until ctx is cancelled or Close
// is called. Reachable transitions trigger a sync, offline transitions
// snapshot diagnostics and cancel any pending retry.
func (co *Coordinator) Run(ctx context.Context) {
	co.mu.Lock()
	if co.ctx != nil {
		co.mu.Unlock()
		return
	}
	co.ctx, co.cancel = context.WithCancel(ctx)
	ctx = co.ctx
	ch, cancelSub := co.monitor.Subscribe()
	co.cancelSub = cancelSub
	co.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case status, ok := <-ch:
				if !ok {
					return
				}
				if status.Reachable() {
					if co.BackgroundSyncEnabled(ctx) {
						co.SyncNow(ctx)
					}
				} else {
					co.onDisconnect(ctx)
				}
			}
		}
	}()
}

// Close cancels the connectivity subscription and any pending retry timer.
// Idempotent. An in-flight sync is allowed to complete; its store writes are
// idempotent anyway.
func (co *Coordinator) Close() {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.cancel != nil {
		co.cancel()
		co.ctx, co.cancel = nil, nil
	}
	if co.cancelSub != nil {
		co.cancelSub()
		co.cancelSub = nil
	}
	co.stopRetryLocked()
}

// QueueInteraction appends a user action to the pending queue for later
// delivery. Queueing works regardless of connectivity.
func (co *Coordinator) QueueInteraction(ctx context.Context, kind, contentID string, extra map[string]string) error {
	co.mu.Lock()
	defer co.mu.Unlock()

	queue, err := loadQueue(ctx, co.store)
	if err != nil {
		// A corrupt queue is abandoned rather than blocking new entries.
		co.record(ctx, "queue_interaction", err)
		queue = nil
	}
	queue = append(queue, NewInteraction(kind, contentID, extra, co.clock.Now()))
	if err := saveQueue(ctx, co.store, queue); err != nil {
		co.record(ctx, "queue_interaction", err)
		return err
	}
	slog.Info("interaction queued", "type", kind, "content_id", contentID, "queue_depth", len(queue))
	return nil
}

// PendingCount returns the current queue depth.
func (co *Coordinator) PendingCount(ctx context.Context) int {
	queue, err := loadQueue(ctx, co.store)
	if err != nil {
		return 0
	}
	return len(queue)
}

// Syncing reports whether a sync sequence is currently running.
func (co *Coordinator) Syncing() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.syncing
}

// LastSync returns the timestamp of the last fully successful sync.
func (co *Coordinator) LastSync(ctx context.Context) (time.Time, bool) {
	raw, ok, err := co.store.Get(ctx, store.KeyLastSync)
	if err != nil || !ok {
		return time.Time{}, false
	}
	var rec syncRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return time.Time{}, false
	}
	return rec.At, true
}

// BackgroundSyncEnabled reports whether connectivity transitions trigger
// sync automatically. Defaults to enabled when never set.
func (co *Coordinator) BackgroundSyncEnabled(ctx context.Context) bool {
	raw, ok, err := co.store.Get(ctx, store.KeyBackgroundSync)
	if err != nil || !ok {
		return true
	}
	return raw != "false"
}

// SetBackgroundSync toggles automatic sync on connectivity transitions.
// Manual SyncNow calls are unaffected.
func (co *Coordinator) SetBackgroundSync(ctx context.Context, enabled bool) {
	if err := co.store.Set(ctx, store.KeyBackgroundSync, strconv.FormatBool(enabled)); err != nil {
		co.record(ctx, "background_sync", err)
	}
}

// RetryCount returns the persisted whole-sequence retry count.
func (co *Coordinator) RetryCount(ctx context.Context) int {
	raw, ok, err := co.store.Get(ctx, store.KeySyncRetryCount)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SyncNow runs the sync sequence once. It returns false when another sync is
// already in flight or the network is unreachable.
func (co *Coordinator) SyncNow(ctx context.Context) bool {
	if !co.monitor.IsOnline() {
		slog.Info("sync skipped, offline")
		return false
	}

	co.mu.Lock()
	if co.syncing {
		co.mu.Unlock()
		slog.Info("sync skipped, duplicate attempt while in progress")
		return false
	}
	co.syncing = true
	co.stopRetryLocked()
	co.mu.Unlock()

	defer func() {
		co.mu.Lock()
		co.syncing = false
		co.mu.Unlock()
	}()

	slog.Info("sync started", "status", co.monitor.Status())
	var failed []string

	// Step 1: clear a stale today slot so the upstream caller refetches.
	// Timezone changes never reach this point: the detector invalidates and
	// persists its snapshot the moment it sees one, so the only staleness
	// left to catch here is a calendar day rolling past the refresh hour.
	if co.cache.NeedsRefresh(ctx) {
		co.cache.InvalidateToday(ctx)
	}

	// Step 2: drain queued interactions. Items that failed delivery but are
	// still retriable stay queued, and a backoff retry picks them up.
	if err := co.drainQueue(ctx); err != nil {
		co.record(ctx, "sync_drain_queue", err)
		failed = append(failed, "drain_queue")
	} else if co.PendingCount(ctx) > 0 {
		failed = append(failed, "drain_queue")
	}

	// Step 3: integrity check and size budget.
	report := co.cache.CheckIntegrity(ctx)
	if !report.Intact() {
		slog.Warn("integrity issues found during sync", "score", report.Score)
	}
	co.cache.EvictIfOverBudget(ctx)

	// Step 4: drop history entries that no longer parse as valid content.
	if dropped := co.cache.CleanHistory(ctx); dropped > 0 {
		slog.Info("history cleaned during sync", "dropped", dropped)
	}

	// Step 5: stamp the sync.
	if err := co.writeSyncRecord(ctx); err != nil {
		co.record(ctx, "sync_stamp", err)
		failed = append(failed, "stamp")
	}

	if len(failed) > 0 {
		co.scheduleRetry(ctx, failed)
		return true
	}

	co.setRetryCount(ctx, 0)
	slog.Info("sync complete")
	return true
}

// drainQueue processes each pending interaction independently. Delivery
// failure increments that item's retry count and keeps it queued unless it
// exceeds the per-interaction cap; success removes it. Only the retriable
// remainder is written back.
func (co *Coordinator) drainQueue(ctx context.Context) error {
	queue, err := loadQueue(ctx, co.store)
	if err != nil {
		// Corrupt queue data cannot be replayed; drop it and move on.
		_ = saveQueue(ctx, co.store, nil)
		return err
	}
	if len(queue) == 0 {
		return nil
	}

	var remainder []PendingInteraction
	delivered, dropped := 0, 0
	for _, interaction := range queue {
		if err := co.deliver(ctx, interaction); err != nil {
			interaction.RetryCount++
			if interaction.RetryCount > co.config.MaxInteractionRetries {
				dropped++
				slog.Warn("interaction dropped after retry limit",
					"queue_id", interaction.QueueID,
					"type", interaction.Type,
					"retries", interaction.RetryCount)
				continue
			}
			remainder = append(remainder, interaction)
			continue
		}
		delivered++
	}

	slog.Info("interaction queue drained",
		"delivered", delivered,
		"requeued", len(remainder),
		"dropped", dropped)
	return saveQueue(ctx, co.store, remainder)
}

func (co *Coordinator) deliver(ctx context.Context, interaction PendingInteraction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("interaction sink panicked: %v", r)
		}
	}()
	if co.sink == nil {
		return nil
	}
	return co.sink.Deliver(ctx, interaction)
}

func (co *Coordinator) writeSyncRecord(ctx context.Context) error {
	raw, err := json.Marshal(syncRecord{At: co.clock.Now(), Status: co.monitor.Status()})
	if err != nil {
		return err
	}
	return co.store.Set(ctx, store.KeyLastSync, string(raw))
}

// scheduleRetry arms a one-shot retry with exponential backoff. The retry
// count persists across restarts and resets only on a fully successful sync.
func (co *Coordinator) scheduleRetry(ctx context.Context, failed []string) {
	retries := co.RetryCount(ctx)
	if retries >= co.config.MaxSyncRetries {
		slog.Warn("sync retries exhausted, waiting for next connectivity change",
			"retries", retries, "failed_steps", failed)
		return
	}
	co.setRetryCount(ctx, retries+1)
	delay := co.config.BaseDelay << retries

	co.mu.Lock()
	defer co.mu.Unlock()
	co.stopRetryLocked()
	parent := co.ctx
	if parent == nil {
		parent = ctx
	}
	co.retryTimer = co.timers(delay, func() {
		if parent.Err() != nil {
			return
		}
		co.SyncNow(parent)
	})
	slog.Info("sync retry scheduled", "delay", delay.String(), "attempt", retries+1, "failed_steps", failed)
}

func (co *Coordinator) stopRetryLocked() {
	if co.retryTimer != nil {
		co.retryTimer.Stop()
		co.retryTimer = nil
	}
}

func (co *Coordinator) setRetryCount(ctx context.Context, n int) {
	if err := co.store.Set(ctx, store.KeySyncRetryCount, strconv.Itoa(n)); err != nil {
		co.record(ctx, "sync_retry_count", err)
	}
}

// onDisconnect snapshots queue depth and cache size for diagnostics, cancels
// any pending retry, and leaves all cached content untouched so reads keep
// working offline.
func (co *Coordinator) onDisconnect(ctx context.Context) {
	co.mu.Lock()
	co.stopRetryLocked()
	co.mu.Unlock()

	rec := disconnectRecord{
		At:             co.clock.Now(),
		Status:         co.monitor.Status(),
		QueueDepth:     co.PendingCount(ctx),
		CacheSizeBytes: co.cache.SizeEstimate(ctx),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := co.store.Set(ctx, store.KeyLastDisconnect, string(raw)); err != nil {
		co.record(ctx, "disconnect_snapshot", err)
		return
	}
	slog.Info("connectivity lost", "queue_depth", rec.QueueDepth, "cache_size_bytes", rec.CacheSizeBytes)
}

func (co *Coordinator) record(ctx context.Context, operation string, err error) {
	co.errors.Append(ctx, errlog.Record{
		Operation:          operation,
		Message:            err.Error(),
		ConnectivityStatus: string(co.monitor.Status()),
	})
}
