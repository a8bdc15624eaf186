// Package server wires the cache subsystem together behind a single service
// facade: one store, one cache, and the four background loops (refresh timer,
// timezone detector, sync coordinator, periodic maintenance).
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/server/cache"
	"github.com/hrygo/todayfeed/server/errlog"
	"github.com/hrygo/todayfeed/server/health"
	"github.com/hrygo/todayfeed/server/scheduler"
	"github.com/hrygo/todayfeed/server/syncer"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
	"github.com/hrygo/todayfeed/store/db"
)

// Service is the single owned instance of the Today Feed cache subsystem.
// Construct it once at process start and inject it wherever it is needed.
type Service struct {
	Profile *profile.Profile
	Store   *store.Store

	clock    timezone.Clock
	errors   *errlog.Log
	cache    *cache.Cache
	sched    *scheduler.Scheduler
	detector *timezone.Detector
	sync     *syncer.Coordinator
	health   *health.Reporter

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
	dispose sync.Once
}

// Options carries the external collaborators the subsystem depends on.
type Options struct {
	// Driver is the persistence backend; defaults to the profile's driver.
	Driver store.Driver
	// Clock defaults to the system clock in the local timezone.
	Clock timezone.Clock
	// Monitor reports connectivity; defaults to always-online.
	Monitor syncer.Monitor
	// Sink receives replayed interactions; nil discards them.
	Sink syncer.InteractionSink
	// Timers lets tests substitute fake timers.
	Timers scheduler.TimerFactory
}

// NewService assembles the subsystem. Store initialization is the only error
// allowed to propagate; everything past this point degrades gracefully.
func NewService(ctx context.Context, p *profile.Profile, opts Options) (*Service, error) {
	if opts.Clock == nil {
		opts.Clock = timezone.NewSystemClock()
	}
	if opts.Monitor == nil {
		opts.Monitor = syncer.StaticMonitor{Fixed: syncer.StatusOnline}
	}
	if opts.Driver == nil {
		driver, err := db.NewDriver(p)
		if err != nil {
			return nil, errors.Wrap(err, "create store driver")
		}
		opts.Driver = driver
	}

	st := store.New(opts.Driver, p)
	if err := st.Migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "migrate store")
	}

	errlg := errlog.New(st, opts.Clock)
	c := cache.New(st, opts.Clock, errlg, cache.Config{
		MaxBytes:          p.MaxCacheBytes,
		MaxHistoryDays:    p.MaxHistoryDays,
		MaxHistoryEntries: p.MaxHistoryEntries,
		RefreshHour:       p.RefreshHour,
	})

	s := &Service{
		Profile: p,
		Store:   st,
		clock:   opts.Clock,
		errors:  errlg,
		cache:   c,
		health:  health.New(st, c, errlg, opts.Clock, p.MaxCacheBytes),
	}

	s.sched = scheduler.New(opts.Clock, opts.Timers, p.RefreshHour, func(ctx context.Context) error {
		s.cache.InvalidateToday(ctx)
		return nil
	})

	s.detector = timezone.NewDetector(st, opts.Clock, timezone.DetectorConfig{
		CheckInterval:      p.TimezoneCheckInterval,
		OffsetDelta:        p.TimezoneOffsetDelta,
		DSTStalenessWindow: p.DSTStalenessWindow,
	}, c.LastRefresh, s.onTimezoneChange)

	s.sync = syncer.New(st, c, opts.Clock, errlg, opts.Monitor, opts.Sink, opts.Timers, syncer.Config{
		BaseDelay:             p.SyncBaseDelay,
		MaxSyncRetries:        p.MaxSyncRetries,
		MaxInteractionRetries: p.MaxInteractionRetries,
	})

	return s, nil
}

// Start launches the background loops. Call once; Dispose stops everything.
func (s *Service) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	s.sched.Start(ctx)
	s.sync.Run(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.detector.Run(ctx)
	}()

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	slog.Info("today feed service started",
		"mode", s.Profile.Mode,
		"driver", s.Profile.Driver,
		"refresh_hour", s.Profile.RefreshHour)
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.Profile.CleanupInterval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cache.Maintenance(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// onTimezoneChange re-arms the refresh timer (the offset shifts the next
// instant) and, when the change is significant, refreshes immediately.
func (s *Service) onTimezoneChange(ctx context.Context, decision timezone.Decision) {
	s.sched.Rearm("timezone-change")
	if decision.ImmediateRefresh {
		s.cache.InvalidateToday(ctx)
		s.sync.SyncNow(ctx)
	}
}

// CacheToday stores a freshly fetched content item as today's slot.
func (s *Service) CacheToday(ctx context.Context, item cache.ContentItem, fromAPI bool) {
	s.cache.CacheToday(ctx, item, fromAPI)
}

// TodayContent returns today's cached item under the given read policy.
func (s *Service) TodayContent(ctx context.Context, policy cache.ReadPolicy) *cache.ContentItem {
	return s.cache.Today(ctx, policy)
}

// PreviousDayContent returns archived fallback content, marker-decorated.
func (s *Service) PreviousDayContent(ctx context.Context) *cache.ContentItem {
	return s.cache.PreviousDay(ctx)
}

// FallbackContentWithMetadata returns the best available fallback along with
// provenance and staleness metadata.
func (s *Service) FallbackContentWithMetadata(ctx context.Context) (*cache.ContentItem, cache.FallbackMetadata) {
	return s.cache.FallbackWithMetadata(ctx)
}

// NeedsRefresh reports whether the upstream caller should fetch new content.
func (s *Service) NeedsRefresh(ctx context.Context) bool {
	return s.cache.NeedsRefresh(ctx)
}

// ContentHistory returns the archived history, newest first.
func (s *Service) ContentHistory(ctx context.Context) []cache.HistoryEntry {
	return s.cache.History(ctx)
}

// MarkContentAsViewed flags the item as engaged wherever it is stored.
func (s *Service) MarkContentAsViewed(ctx context.Context, id string) {
	s.cache.MarkViewed(ctx, id)
}

// QueueInteraction records a user action for later delivery.
func (s *Service) QueueInteraction(ctx context.Context, kind, contentID string, extra map[string]string) error {
	return s.sync.QueueInteraction(ctx, kind, contentID, extra)
}

// SyncWhenOnline runs the sync sequence if the network is reachable and no
// sync is already in flight.
func (s *Service) SyncWhenOnline(ctx context.Context) bool {
	return s.sync.SyncNow(ctx)
}

// SetBackgroundSync toggles automatic sync on connectivity transitions.
func (s *Service) SetBackgroundSync(ctx context.Context, enabled bool) {
	s.sync.SetBackgroundSync(ctx, enabled)
}

// InvalidateContent removes the selected cache regions, recording the reason.
func (s *Service) InvalidateContent(ctx context.Context, flags cache.InvalidationFlags, reason string) {
	s.cache.Invalidate(ctx, flags, reason)
}

// SelectiveCleanup removes auxiliary cache regions, never today's slot.
func (s *Service) SelectiveCleanup(ctx context.Context, flags cache.InvalidationFlags) {
	s.cache.SelectiveCleanup(ctx, flags)
}

// ClearAllCache wipes every cached value except the version marker.
func (s *Service) ClearAllCache(ctx context.Context) {
	s.cache.ClearAll(ctx)
}

// CacheStats returns the current cache footprint.
func (s *Service) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.CacheStats(ctx)
}

// HealthStatus returns the scored health report.
func (s *Service) HealthStatus(ctx context.Context) health.Report {
	return s.health.Check(ctx)
}

// Diagnostics is the full operational snapshot exposed for debugging.
type Diagnostics struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Mode        string            `json:"mode"`
	Stats       cache.Stats       `json:"stats"`
	Health      health.Report     `json:"health"`
	Timezone    timezone.Snapshot `json:"timezone"`

	SchedulerState string     `json:"schedulerState"`
	NextRefresh    *time.Time `json:"nextRefresh,omitempty"`

	Syncing        bool       `json:"syncing"`
	BackgroundSync bool       `json:"backgroundSync"`
	SyncRetryCount int        `json:"syncRetryCount"`
	LastSync       *time.Time `json:"lastSync,omitempty"`

	RecentErrors []errlog.Record `json:"recentErrors"`
}

// DiagnosticInfo aggregates read-only state from every component.
func (s *Service) DiagnosticInfo(ctx context.Context) Diagnostics {
	diag := Diagnostics{
		GeneratedAt:    s.clock.Now(),
		Mode:           s.Profile.Mode,
		Stats:          s.cache.CacheStats(ctx),
		Health:         s.health.Check(ctx),
		Timezone:       timezone.TakeSnapshot(s.clock),
		SchedulerState: s.sched.State().String(),
		Syncing:        s.sync.Syncing(),
		BackgroundSync: s.sync.BackgroundSyncEnabled(ctx),
		SyncRetryCount: s.sync.RetryCount(ctx),
		RecentErrors:   s.errors.Recent(ctx),
	}
	if next, ok := s.sched.NextAt(); ok {
		diag.NextRefresh = &next
	}
	if last, ok := s.sync.LastSync(ctx); ok {
		diag.LastSync = &last
	}
	return diag
}

// Dispose stops all background loops and closes the store. Idempotent; any
// in-flight store write completes since writes are idempotent.
func (s *Service) Dispose() {
	s.dispose.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.sched.Stop()
		s.sync.Close()
		s.wg.Wait()
		if err := s.Store.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
		slog.Info("today feed service disposed")
	})
}
