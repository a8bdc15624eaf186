package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
)

// Stats is a point-in-time summary of the cache footprint.
type Stats struct {
	TotalBytes          int        `json:"total_bytes"`
	MaxBytes            int        `json:"max_bytes"`
	UtilizationPercent  float64    `json:"utilization_percent"`
	KeyCount            int        `json:"key_count"`
	HistoryEntries      int        `json:"history_entries"`
	PendingInteractions int        `json:"pending_interactions"`
	HasToday            bool       `json:"has_today"`
	HasPrevious         bool       `json:"has_previous"`
	LastRefresh         *time.Time `json:"last_refresh,omitempty"`
	Evictions           int64      `json:"evictions"`
}

// CacheStats aggregates the current footprint. Individual probes failing
// degrade to zero values rather than failing the call.
func (c *Cache) CacheStats(ctx context.Context) Stats {
	stats := Stats{
		TotalBytes: c.sizeEstimate(ctx),
		MaxBytes:   c.config.MaxBytes,
		Evictions:  c.evictions.Load(),
	}
	if stats.MaxBytes > 0 {
		stats.UtilizationPercent = 100 * float64(stats.TotalBytes) / float64(stats.MaxBytes)
	}
	if keys, err := c.store.Keys(ctx); err == nil {
		stats.KeyCount = len(keys)
	}
	stats.HistoryEntries = len(c.History(ctx))
	stats.PendingInteractions = c.pendingCount(ctx)
	if ok, err := c.store.ContainsKey(ctx, store.KeyTodayContent); err == nil {
		stats.HasToday = ok
	}
	if ok, err := c.store.ContainsKey(ctx, store.KeyPreviousContent); err == nil {
		stats.HasPrevious = ok
	}
	if ts, ok := c.LastRefresh(ctx); ok {
		stats.LastRefresh = &ts
	}
	return stats
}

// FallbackSource names where fallback content came from.
type FallbackSource string

const (
	FallbackPreviousDay FallbackSource = "previous_day"
	FallbackHistory     FallbackSource = "history"
	FallbackNone        FallbackSource = "none"
)

// FallbackMetadata describes the provenance and staleness of a fallback read.
type FallbackMetadata struct {
	Source   FallbackSource `json:"source"`
	AgeHours float64        `json:"age_hours"`
	// Staleness is "fresh" under 24h, "moderate" under 48h, "conservative"
	// beyond that.
	Staleness string `json:"staleness"`
	// Reason is set when no fallback content exists.
	Reason string `json:"reason,omitempty"`
}

// FallbackWithMetadata returns the best available fallback item together with
// its provenance. A missing fallback is not an error: the metadata carries a
// human-readable reason instead.
func (c *Cache) FallbackWithMetadata(ctx context.Context) (*ContentItem, FallbackMetadata) {
	item := c.loadItem(ctx, store.KeyPreviousContent, "get_fallback")
	source := FallbackPreviousDay
	if item == nil {
		if entries := c.History(ctx); len(entries) > 0 {
			item = &entries[0].Item
			source = FallbackHistory
		}
	}
	if item == nil {
		return nil, FallbackMetadata{
			Source: FallbackNone,
			Reason: "no cached content available; connect to refresh",
		}
	}
	decorateFallback(item)

	metadata := FallbackMetadata{Source: source}
	if date, err := item.Date(c.clock.Location()); err == nil {
		metadata.AgeHours = c.clock.Now().Sub(date).Hours()
	}
	switch {
	case metadata.AgeHours < 24:
		metadata.Staleness = "fresh"
	case metadata.AgeHours < 48:
		metadata.Staleness = "moderate"
	default:
		metadata.Staleness = "conservative"
	}
	return item, metadata
}

// InvalidationFlags selects which slots an invalidation or cleanup touches.
type InvalidationFlags struct {
	Today    bool `json:"today"`
	Previous bool `json:"previous"`
	History  bool `json:"history"`
	Pending  bool `json:"pending"`
	Metadata bool `json:"metadata"`
}

// invalidationRecord is persisted under the manual-invalidation key for
// diagnostics.
type invalidationRecord struct {
	Reason    string            `json:"reason"`
	Flags     InvalidationFlags `json:"flags"`
	Timestamp time.Time         `json:"timestamp"`
}

// Invalidate removes the selected slots and records the reason. Today is
// archived before removal so the previous-day fallback stays available.
func (c *Cache) Invalidate(ctx context.Context, flags InvalidationFlags, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if flags.Today {
		c.archiveToday(ctx)
		c.removeKey(ctx, store.KeyTodayContent)
		c.removeKey(ctx, store.KeyContentMetadata)
	}
	c.applyCleanup(ctx, flags)

	record := invalidationRecord{Reason: reason, Flags: flags, Timestamp: c.clock.Now()}
	if raw, err := json.Marshal(record); err == nil {
		if err := c.store.Set(ctx, store.KeyManualInvalidation, string(raw)); err != nil {
			c.record(ctx, "invalidate", err)
		}
	}
	slog.Info("manual invalidation", "reason", reason)
}

// SelectiveCleanup removes the selected non-today slots without touching the
// today content.
func (c *Cache) SelectiveCleanup(ctx context.Context, flags InvalidationFlags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flags.Today = false
	c.applyCleanup(ctx, flags)
}

func (c *Cache) applyCleanup(ctx context.Context, flags InvalidationFlags) {
	if flags.Previous {
		c.removeKey(ctx, store.KeyPreviousContent)
	}
	if flags.History {
		c.removeKey(ctx, store.KeyContentHistory)
	}
	if flags.Pending {
		c.removeKey(ctx, store.KeyPendingInteractions)
	}
	if flags.Metadata {
		c.removeKey(ctx, store.KeyContentMetadata)
	}
}

// expirationRecord documents the retention cutoff applied by the last
// maintenance pass.
type expirationRecord struct {
	CutoffDate     string    `json:"cutoff_date"`
	MaxHistoryDays int       `json:"max_history_days"`
	AppliedAt      time.Time `json:"applied_at"`
}

// Maintenance runs the periodic cleanup pass: opportunistic history trim and
// a budget check, stamping the last-cleanup key.
func (c *Cache) Maintenance(ctx context.Context) {
	c.mu.Lock()
	c.writeHistory(ctx, c.trimHistory(c.History(ctx), c.config.MaxHistoryDays))
	c.mu.Unlock()

	c.EvictIfOverBudget(ctx)

	now := c.clock.Now()
	expiration := expirationRecord{
		CutoffDate:     timezone.LocalDate(c.clock, now.Add(-time.Duration(c.config.MaxHistoryDays)*24*time.Hour)),
		MaxHistoryDays: c.config.MaxHistoryDays,
		AppliedAt:      now,
	}
	if raw, err := json.Marshal(expiration); err == nil {
		if err := c.store.Set(ctx, store.KeyContentExpiration, string(raw)); err != nil {
			c.record(ctx, "maintenance", err)
		}
	}

	if err := c.store.Set(ctx, store.KeyLastCleanup, now.Format(time.RFC3339)); err != nil {
		c.record(ctx, "maintenance", err)
	}
}

func (c *Cache) pendingCount(ctx context.Context) int {
	raw, ok, err := c.store.Get(ctx, store.KeyPendingInteractions)
	if err != nil || !ok {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return 0
	}
	return len(items)
}
