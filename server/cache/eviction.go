package cache

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/hrygo/todayfeed/store"
)

// entryOverheadBytes is the fixed per-key overhead added to each tracked
// entry's estimate.
const entryOverheadBytes = 100

// evictionHistoryDays is what history is trimmed to in the first eviction
// step, before more destructive steps are considered.
const evictionHistoryDays = 3

// entrySize estimates the serialized footprint of one stored value:
// 2 bytes per character (wide-character assumption) plus fixed overhead.
func entrySize(value string) int {
	return 2*utf8.RuneCountInString(value) + entryOverheadBytes
}

// SizeEstimate returns the estimated byte footprint over all tracked keys.
func (c *Cache) SizeEstimate(ctx context.Context) int {
	return c.sizeEstimate(ctx)
}

func (c *Cache) sizeEstimate(ctx context.Context) int {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return 0
	}
	total := 0
	for _, key := range keys {
		value, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		total += entrySize(value)
	}
	return total
}

// Evictions returns how many eviction passes have run since startup.
func (c *Cache) Evictions() int64 {
	return c.evictions.Load()
}

// EvictIfOverBudget runs an eviction pass when the estimate exceeds the
// budget. Returns whether a pass ran.
func (c *Cache) EvictIfOverBudget(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sizeEstimate(ctx) <= c.config.MaxBytes {
		return false
	}
	c.evict(ctx, "over-budget", c.config.MaxBytes)
	return true
}

// evict walks the eviction ladder in order, stopping as soon as the estimate
// fits target. Target is the budget, less any headroom reserved for a pending
// write. Content itself is the last thing removed; today's slot is never
// dropped here.
func (c *Cache) evict(ctx context.Context, reason string, target int) {
	if target < 0 {
		target = 0
	}
	c.evictions.Add(1)
	before := c.sizeEstimate(ctx)

	steps := []struct {
		name string
		run  func()
	}{
		{"trim history", func() {
			c.writeHistory(ctx, c.trimHistory(c.History(ctx), evictionHistoryDays))
		}},
		{"drop pending interactions", func() {
			c.removeKey(ctx, store.KeyPendingInteractions)
		}},
		{"drop previous day", func() {
			hasToday, err := c.store.ContainsKey(ctx, store.KeyTodayContent)
			if err == nil && hasToday {
				c.removeKey(ctx, store.KeyPreviousContent)
			}
		}},
		{"drop history", func() {
			c.removeKey(ctx, store.KeyContentHistory)
		}},
		{"drop metadata", func() {
			c.removeKey(ctx, store.KeyContentMetadata)
		}},
	}

	for _, step := range steps {
		if c.sizeEstimate(ctx) <= target {
			break
		}
		step.run()
		slog.Info("eviction step applied", "step", step.name, "reason", reason)
	}

	slog.Info("eviction pass finished",
		"reason", reason,
		"bytes_before", before,
		"bytes_after", c.sizeEstimate(ctx),
		"target", target,
		"budget", c.config.MaxBytes)
}

func (c *Cache) removeKey(ctx context.Context, key string) {
	if err := c.store.Remove(ctx, key); err != nil {
		c.record(ctx, "eviction", err)
	}
}
