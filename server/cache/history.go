package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
)

// History returns the archived entries, newest first. A corrupt history list
// is recorded and treated as empty.
func (c *Cache) History(ctx context.Context) []HistoryEntry {
	raw, ok, err := c.store.Get(ctx, store.KeyContentHistory)
	if err != nil {
		c.record(ctx, "get_history", err)
		return nil
	}
	if !ok {
		return nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		c.record(ctx, "get_history", err)
		return nil
	}
	sortHistory(entries)
	return entries
}

// CleanHistory drops entries whose items no longer validate, writing back the
// survivors. Returns how many entries were dropped.
func (c *Cache) CleanHistory(ctx context.Context) int {
	entries := c.History(ctx)
	if len(entries) == 0 {
		return 0
	}
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Item.SchemaVersion == ItemSchemaVersion && len(entry.Item.Validate(c.clock)) == 0 {
			kept = append(kept, entry)
		}
	}
	dropped := len(entries) - len(kept)
	if dropped > 0 {
		slog.Info("cleaned invalid history entries", "dropped", dropped)
		c.writeHistory(ctx, kept)
	}
	return dropped
}

// appendHistory adds item to the history list, replacing any entry for the
// same content date, then trims to the retention policy.
func (c *Cache) appendHistory(ctx context.Context, item ContentItem) {
	entries := c.History(ctx)
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Item.ContentDate != item.ContentDate {
			kept = append(kept, entry)
		}
	}
	kept = append(kept, HistoryEntry{Item: item, ArchivedAt: c.clock.Now()})
	c.writeHistory(ctx, c.trimHistory(kept, c.config.MaxHistoryDays))
}

// trimHistory enforces the retention policy: at most maxDays distinct content
// days, at most MaxHistoryEntries entries, and nothing older than the
// expiration window.
func (c *Cache) trimHistory(entries []HistoryEntry, maxDays int) []HistoryEntry {
	sortHistory(entries)

	expiration := time.Duration(c.config.MaxHistoryDays) * 24 * time.Hour
	cutoff := c.clock.Now().Add(-expiration).In(c.clock.Location()).Format(timezone.DateLayout)

	var kept []HistoryEntry
	days := map[string]bool{}
	for _, entry := range entries {
		if entry.Item.ContentDate < cutoff {
			continue
		}
		if !days[entry.Item.ContentDate] {
			if len(days) >= maxDays {
				continue
			}
			days[entry.Item.ContentDate] = true
		}
		kept = append(kept, entry)
		if len(kept) >= c.config.MaxHistoryEntries {
			break
		}
	}
	return kept
}

func (c *Cache) writeHistory(ctx context.Context, entries []HistoryEntry) {
	if len(entries) == 0 {
		if err := c.store.Remove(ctx, store.KeyContentHistory); err != nil {
			c.record(ctx, "write_history", err)
		}
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		c.record(ctx, "write_history", err)
		return
	}
	if err := c.store.Set(ctx, store.KeyContentHistory, string(raw)); err != nil {
		c.record(ctx, "write_history", err)
	}
}

// sortHistory orders entries newest first by content date, breaking ties by
// archive time.
func sortHistory(entries []HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Item.ContentDate != entries[j].Item.ContentDate {
			return entries[i].Item.ContentDate > entries[j].Item.ContentDate
		}
		return entries[i].ArchivedAt.After(entries[j].ArchivedAt)
	})
}
