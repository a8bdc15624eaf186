// Package cache implements the Today Feed cache store: a single "today"
// content slot plus a bounded history, persisted through the key-value store.
// It owns serialization, the byte-size budget with progressive eviction, and
// integrity validation.
//
// Cache operations never propagate failures outward. Read paths return nil on
// missing or corrupt data; write paths record failures in the error log and
// degrade gracefully. Absence of fresh content is never an error state.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hrygo/todayfeed/server/errlog"
	"github.com/hrygo/todayfeed/server/markdown"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
)

// ReadPolicy selects staleness behavior on read paths.
type ReadPolicy int

const (
	// StrictToday returns content only when its date matches the current
	// local calendar day.
	StrictToday ReadPolicy = iota
	// AllowStale returns whatever is cached, regardless of date.
	AllowStale
)

// Config carries the cache store tuning knobs.
type Config struct {
	// MaxBytes is the serialized-size budget over all tracked keys.
	MaxBytes int
	// MaxHistoryDays bounds history by distinct content days.
	MaxHistoryDays int
	// MaxHistoryEntries bounds history by entry count.
	MaxHistoryEntries int
	// RefreshHour is the local hour past which a new day makes cached
	// content stale.
	RefreshHour int
}

// Cache is the cache store. All mutating operations serialize on an internal
// mutex; persisted writes stay last-write-wins.
type Cache struct {
	store  *store.Store
	clock  timezone.Clock
	errors *errlog.Log
	config Config

	mu        sync.Mutex
	evictions atomic.Int64
}

func New(store *store.Store, clock timezone.Clock, errors *errlog.Log, config Config) *Cache {
	if config.MaxBytes <= 0 {
		config.MaxBytes = 10 * 1024 * 1024
	}
	if config.MaxHistoryDays <= 0 {
		config.MaxHistoryDays = 7
	}
	if config.MaxHistoryEntries <= 0 {
		config.MaxHistoryEntries = 50
	}
	if config.RefreshHour < 0 || config.RefreshHour > 23 {
		config.RefreshHour = 3
	}
	return &Cache{
		store:  store,
		clock:  clock,
		errors: errors,
		config: config,
	}
}

// CacheToday writes item into the today slot, together with its metadata
// sidecar, the refresh timestamp, and a history entry. The size budget is
// enforced before and after the write. Failures are recorded and swallowed.
func (c *Cache) CacheToday(ctx context.Context, item ContentItem, fromAPI bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item.SchemaVersion = ItemSchemaVersion
	item.IsCached = true

	encoded, err := encodeItem(&item)
	if err != nil {
		c.record(ctx, "cache_today", err)
		return
	}

	// Evict proactively if this write would blow the budget.
	newSize := entrySize(encoded)
	if current := c.sizeEstimate(ctx); current+newSize > c.config.MaxBytes {
		c.evict(ctx, "pre-write", c.config.MaxBytes-newSize)
	}

	now := c.clock.Now()
	_, offsetSeconds := now.In(c.clock.Location()).Zone()
	metadata := Metadata{
		SchemaVersion:         ItemSchemaVersion,
		CachedAt:              now,
		ContentDate:           item.ContentDate,
		TimezoneOffsetMinutes: offsetSeconds / 60,
		FromAPI:               fromAPI,
		EstimatedBytes:        newSize,
		ConfidenceScore:       item.ConfidenceScore,
	}
	encodedMetadata, err := json.Marshal(metadata)
	if err != nil {
		c.record(ctx, "cache_today", err)
		return
	}

	if err := c.store.Set(ctx, store.KeyTodayContent, encoded); err != nil {
		c.record(ctx, "cache_today", err)
		return
	}
	if err := c.store.Set(ctx, store.KeyContentMetadata, string(encodedMetadata)); err != nil {
		c.record(ctx, "cache_today", err)
	}
	if err := c.store.Set(ctx, store.KeyLastRefresh, now.Format(time.RFC3339)); err != nil {
		c.record(ctx, "cache_today", err)
	}

	c.appendHistory(ctx, item)

	// The write itself may have pushed us over budget.
	if c.sizeEstimate(ctx) > c.config.MaxBytes {
		c.evict(ctx, "post-write", c.config.MaxBytes)
	}

	slog.Info("cached today content",
		"id", item.ID,
		"content_date", item.ContentDate,
		"from_api", fromAPI,
		"estimated_bytes", newSize)
}

// Today returns the cached today item. Under StrictToday the item's content
// date must equal the current local calendar day; AllowStale returns any
// cached item with a log marker.
func (c *Cache) Today(ctx context.Context, policy ReadPolicy) *ContentItem {
	item := c.loadItem(ctx, store.KeyTodayContent, "get_today")
	if item == nil {
		return nil
	}
	today := timezone.Today(c.clock)
	if item.ContentDate == today {
		return item
	}
	if policy == AllowStale {
		slog.Info("returning stale cached content",
			"content_date", item.ContentDate, "today", today)
		return item
	}
	return nil
}

// PreviousDay returns the archived previous-day item, falling back to the
// most recent history entry. The result is decorated with the cached-content
// marker so the UI can surface fallback provenance.
func (c *Cache) PreviousDay(ctx context.Context) *ContentItem {
	item := c.loadItem(ctx, store.KeyPreviousContent, "get_previous_day")
	if item == nil {
		if entries := c.History(ctx); len(entries) > 0 {
			item = &entries[0].Item
		}
	}
	if item == nil {
		return nil
	}
	decorateFallback(item)
	return item
}

// ArchiveToday copies the current today slot (allowing stale) into the
// previous-day slot. Called immediately before invalidating today.
func (c *Cache) ArchiveToday(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.archiveToday(ctx)
}

func (c *Cache) archiveToday(ctx context.Context) {
	item := c.Today(ctx, AllowStale)
	if item == nil {
		return
	}
	encoded, err := encodeItem(item)
	if err != nil {
		c.record(ctx, "archive_today", err)
		return
	}
	if err := c.store.Set(ctx, store.KeyPreviousContent, encoded); err != nil {
		c.record(ctx, "archive_today", err)
	}
}

// InvalidateToday archives then deletes the today content and metadata keys,
// leaving the cache empty until the upstream caller fetches new content.
func (c *Cache) InvalidateToday(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.archiveToday(ctx)
	if err := c.store.Remove(ctx, store.KeyTodayContent); err != nil {
		c.record(ctx, "invalidate_today", err)
	}
	if err := c.store.Remove(ctx, store.KeyContentMetadata); err != nil {
		c.record(ctx, "invalidate_today", err)
	}
	slog.Info("invalidated today content")
}

// NeedsRefresh reports whether cached content is due for replacement: the
// cache is empty, or a new calendar day has started and the refresh hour has
// passed.
func (c *Cache) NeedsRefresh(ctx context.Context) bool {
	item := c.loadItem(ctx, store.KeyTodayContent, "needs_refresh")
	if item == nil {
		return true
	}
	now := c.clock.Now().In(c.clock.Location())
	if item.ContentDate == now.Format(timezone.DateLayout) {
		return false
	}
	return now.Hour() >= c.config.RefreshHour
}

// MarkViewed sets the engaged flag on the cached item with the given id, in
// both the today slot and history.
func (c *Cache) MarkViewed(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item := c.loadItem(ctx, store.KeyTodayContent, "mark_viewed"); item != nil && item.ID == id {
		item.HasEngaged = true
		if encoded, err := encodeItem(item); err == nil {
			if err := c.store.Set(ctx, store.KeyTodayContent, encoded); err != nil {
				c.record(ctx, "mark_viewed", err)
			}
		}
	}

	entries := c.History(ctx)
	changed := false
	for i := range entries {
		if entries[i].Item.ID == id && !entries[i].Item.HasEngaged {
			entries[i].Item.HasEngaged = true
			changed = true
		}
	}
	if changed {
		c.writeHistory(ctx, entries)
	}
}

// LastRefresh returns when content was last written, if known.
func (c *Cache) LastRefresh(ctx context.Context) (time.Time, bool) {
	raw, ok, err := c.store.Get(ctx, store.KeyLastRefresh)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ClearAll removes every cached key except the layout version.
func (c *Cache) ClearAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.store.Keys(ctx)
	if err != nil {
		c.record(ctx, "clear_all", err)
		return
	}
	for _, key := range keys {
		if key == store.KeyCacheVersion {
			continue
		}
		if err := c.store.Remove(ctx, key); err != nil {
			c.record(ctx, "clear_all", err)
		}
	}
	slog.Info("cleared all cached content", "keys", len(keys))
}

// loadItem reads and decodes a content item key. Malformed data is treated as
// missing and recorded.
func (c *Cache) loadItem(ctx context.Context, key string, operation string) *ContentItem {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.record(ctx, operation, err)
		return nil
	}
	if !ok {
		return nil
	}
	item, err := decodeItem(raw)
	if err != nil {
		c.record(ctx, operation, err)
		return nil
	}
	return item
}

// record appends a swallowed failure to the error log.
func (c *Cache) record(ctx context.Context, operation string, err error) {
	c.errors.Append(ctx, errlog.Record{
		Operation:      operation,
		Message:        err.Error(),
		CacheSizeBytes: c.sizeEstimate(ctx),
	})
}

func decorateFallback(item *ContentItem) {
	item.IsCached = true
	if item.RichContent != "" {
		if !markdown.HasCachedMarker(item.RichContent) {
			item.RichContent = markdown.InjectCachedMarker(item.RichContent)
		}
		return
	}
	if !markdown.HasCachedMarker(item.Summary) {
		item.Summary = markdown.CachedContentMarker + " " + item.Summary
	}
}
