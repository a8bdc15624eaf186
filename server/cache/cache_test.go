package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/server/errlog"
	"github.com/hrygo/todayfeed/server/markdown"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
	"github.com/hrygo/todayfeed/store/db/memory"
)

func newTestCache(t *testing.T, now time.Time, config Config) (*Cache, *store.Store, *timezone.FakeClock, *errlog.Log) {
	t.Helper()
	p := &profile.Profile{}
	p.FromEnv()
	require.NoError(t, p.Validate())
	s := store.New(memory.NewDriver(), p)
	clock := timezone.NewFakeClock(now)
	errors := errlog.New(s, clock)
	return New(s, clock, errors, config), s, clock, errors
}

func testItem(date string) ContentItem {
	return ContentItem{
		ID:              "item-" + date,
		Title:           "Daily Insight",
		Summary:         "Walking boosts your momentum.",
		ContentDate:     date,
		ConfidenceScore: 0.8,
	}
}

func TestCacheTodayIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, _, _, _ := newTestCache(t, now, Config{})

	item := testItem("2026-08-20")
	c.CacheToday(ctx, item, true)
	c.CacheToday(ctx, item, true)

	got := c.Today(ctx, StrictToday)
	require.NotNil(t, got)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, item.Title, got.Title)
	assert.Equal(t, item.Summary, got.Summary)
	assert.Equal(t, item.ContentDate, got.ContentDate)
	assert.Equal(t, item.ConfidenceScore, got.ConfidenceScore)
	assert.True(t, got.IsCached)

	// Re-caching the same day does not duplicate history.
	assert.Len(t, c.History(ctx), 1)
}

func TestStalenessLaw(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, _, clock, _ := newTestCache(t, now, Config{})

	c.CacheToday(ctx, testItem("2026-08-20"), true)

	t.Run("MatchingDateReturnsItem", func(t *testing.T) {
		assert.NotNil(t, c.Today(ctx, StrictToday))
	})

	t.Run("NewDayReturnsNilUnderStrict", func(t *testing.T) {
		clock.Advance(24 * time.Hour)
		assert.Nil(t, c.Today(ctx, StrictToday))
	})

	t.Run("AllowStaleReturnsItem", func(t *testing.T) {
		got := c.Today(ctx, AllowStale)
		require.NotNil(t, got)
		assert.Equal(t, "2026-08-20", got.ContentDate)
	})
}

func TestNeedsRefresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	t.Run("EmptyCache", func(t *testing.T) {
		c, _, _, _ := newTestCache(t, now, Config{})
		assert.True(t, c.NeedsRefresh(ctx))
	})

	t.Run("FreshContent", func(t *testing.T) {
		c, _, _, _ := newTestCache(t, now, Config{})
		c.CacheToday(ctx, testItem("2026-08-20"), true)
		assert.False(t, c.NeedsRefresh(ctx))
	})

	t.Run("NewDayPastRefreshHour", func(t *testing.T) {
		c, _, clock, _ := newTestCache(t, now, Config{RefreshHour: 3})
		c.CacheToday(ctx, testItem("2026-08-20"), true)

		// 03:01 the next day.
		clock.SetNow(time.Date(2026, 8, 21, 3, 1, 0, 0, time.UTC))
		assert.True(t, c.NeedsRefresh(ctx))
	})

	t.Run("NewDayBeforeRefreshHour", func(t *testing.T) {
		c, _, clock, _ := newTestCache(t, now, Config{RefreshHour: 3})
		c.CacheToday(ctx, testItem("2026-08-20"), true)

		clock.SetNow(time.Date(2026, 8, 21, 1, 0, 0, 0, time.UTC))
		assert.False(t, c.NeedsRefresh(ctx))
	})
}

func TestHistoryBound(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	c, _, clock, _ := newTestCache(t, now, Config{MaxHistoryDays: 3})

	for day := 1; day <= 6; day++ {
		clock.SetNow(time.Date(2026, 8, day, 9, 0, 0, 0, time.UTC))
		c.CacheToday(ctx, testItem(fmt.Sprintf("2026-08-%02d", day)), true)
	}

	entries := c.History(ctx)
	require.Len(t, entries, 3)
	// Newest first, oldest days dropped.
	assert.Equal(t, "2026-08-06", entries[0].Item.ContentDate)
	assert.Equal(t, "2026-08-04", entries[2].Item.ContentDate)
}

func TestCorruptTodayKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, s, _, errors := newTestCache(t, now, Config{})

	require.NoError(t, s.Set(ctx, store.KeyTodayContent, "not json at all"))

	assert.Nil(t, c.Today(ctx, StrictToday))

	records := errors.Recent(ctx)
	require.NotEmpty(t, records)
	assert.Equal(t, "get_today", records[len(records)-1].Operation)
}

func TestUnknownSchemaVersionQuarantined(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, s, _, errors := newTestCache(t, now, Config{})

	require.NoError(t, s.Set(ctx, store.KeyTodayContent,
		`{"schema_version": 99, "id": "future", "content_date": "2026-08-20"}`))

	assert.Nil(t, c.Today(ctx, AllowStale))
	assert.NotEmpty(t, errors.Recent(ctx))
}

func TestSizeBudget(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, _, clock, _ := newTestCache(t, now, Config{MaxBytes: 4000})

	big := testItem("2026-08-20")
	big.RichContent = strings.Repeat("momentum ", 170) // ~1.5k chars, ~3k estimated bytes

	c.CacheToday(ctx, big, true)
	assert.LessOrEqual(t, c.SizeEstimate(ctx), 4000)

	clock.SetNow(time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC))
	next := testItem("2026-08-21")
	next.RichContent = big.RichContent
	c.CacheToday(ctx, next, true)

	assert.LessOrEqual(t, c.SizeEstimate(ctx), 4000)
	assert.Positive(t, c.Evictions(), "eviction must have been triggered")

	// Today's slot survives eviction.
	assert.NotNil(t, c.Today(ctx, StrictToday))
}

func TestPreviousDayFallback(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	t.Run("FromArchivedSlot", func(t *testing.T) {
		c, _, clock, _ := newTestCache(t, now, Config{})
		item := testItem("2026-08-20")
		item.RichContent = "Read this insight today."
		c.CacheToday(ctx, item, true)
		c.InvalidateToday(ctx)

		clock.Advance(24 * time.Hour)
		got := c.PreviousDay(ctx)
		require.NotNil(t, got)
		assert.True(t, strings.HasPrefix(got.RichContent, markdown.CachedContentMarker))
	})

	t.Run("FromHistoryWhenSlotMissing", func(t *testing.T) {
		c, s, _, _ := newTestCache(t, now, Config{})
		c.CacheToday(ctx, testItem("2026-08-20"), true)
		require.NoError(t, s.Remove(ctx, store.KeyPreviousContent))
		require.NoError(t, s.Remove(ctx, store.KeyTodayContent))

		got := c.PreviousDay(ctx)
		require.NotNil(t, got)
		assert.True(t, strings.Contains(got.Summary, markdown.CachedContentMarker))
	})

	t.Run("NothingCached", func(t *testing.T) {
		c, _, _, _ := newTestCache(t, now, Config{})
		assert.Nil(t, c.PreviousDay(ctx))
	})
}

func TestInvalidateTodayArchivesFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, s, _, _ := newTestCache(t, now, Config{})

	c.CacheToday(ctx, testItem("2026-08-20"), true)
	c.InvalidateToday(ctx)

	assert.Nil(t, c.Today(ctx, AllowStale))
	ok, err := s.ContainsKey(ctx, store.KeyContentMetadata)
	require.NoError(t, err)
	assert.False(t, ok)

	previous := c.PreviousDay(ctx)
	require.NotNil(t, previous)
	assert.Equal(t, "item-2026-08-20", previous.ID)
}

func TestMarkViewed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, _, _, _ := newTestCache(t, now, Config{})

	c.CacheToday(ctx, testItem("2026-08-20"), true)
	c.MarkViewed(ctx, "item-2026-08-20")

	got := c.Today(ctx, StrictToday)
	require.NotNil(t, got)
	assert.True(t, got.HasEngaged)

	entries := c.History(ctx)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Item.HasEngaged)
}

func TestCheckIntegrity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	t.Run("CleanCache", func(t *testing.T) {
		c, _, _, _ := newTestCache(t, now, Config{})
		c.CacheToday(ctx, testItem("2026-08-20"), true)

		report := c.CheckIntegrity(ctx)
		assert.True(t, report.Intact(), "issues: %v warnings: %v corrupted: %v",
			report.Issues, report.Warnings, report.CorruptedKeys)
	})

	t.Run("CorruptedKeyCosts25", func(t *testing.T) {
		c, s, _, _ := newTestCache(t, now, Config{})
		require.NoError(t, s.Set(ctx, store.KeyTodayContent, "garbage"))

		report := c.CheckIntegrity(ctx)
		assert.Equal(t, 75, report.Score)
		assert.Contains(t, report.CorruptedKeys, store.KeyTodayContent)
	})

	t.Run("MetadataDateMismatchCosts20", func(t *testing.T) {
		c, s, _, _ := newTestCache(t, now, Config{})
		c.CacheToday(ctx, testItem("2026-08-20"), true)

		raw, ok, err := s.Get(ctx, store.KeyContentMetadata)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.Set(ctx, store.KeyContentMetadata,
			strings.Replace(raw, "2026-08-20", "2026-08-19", 1)))

		report := c.CheckIntegrity(ctx)
		assert.Equal(t, 80, report.Score)
		require.Len(t, report.Issues, 1)
	})

	t.Run("InvalidHistoryItemWarns", func(t *testing.T) {
		c, _, _, _ := newTestCache(t, now, Config{})
		bad := testItem("2026-08-20")
		bad.Title = ""
		c.CacheToday(ctx, bad, true)

		report := c.CheckIntegrity(ctx)
		assert.Less(t, report.Score, 100)
		assert.NotEmpty(t, report.Warnings)
	})

	t.Run("CorruptQueueFailsCheck", func(t *testing.T) {
		c, s, _, _ := newTestCache(t, now, Config{})
		c.CacheToday(ctx, testItem("2026-08-20"), true)
		require.NoError(t, s.Set(ctx, store.KeyPendingInteractions, "{corrupt"))

		report := c.CheckIntegrity(ctx)
		assert.Equal(t, 75, report.Score)
		assert.Contains(t, report.CorruptedKeys, store.KeyPendingInteractions)
		assert.False(t, report.Intact())
	})

	t.Run("CorruptSyncStateFailsCheck", func(t *testing.T) {
		c, s, _, _ := newTestCache(t, now, Config{})
		require.NoError(t, s.Set(ctx, store.KeySyncErrors, "not json"))
		require.NoError(t, s.Set(ctx, store.KeyLastSync, "[]"))

		report := c.CheckIntegrity(ctx)
		assert.Equal(t, 50, report.Score)
		assert.ElementsMatch(t,
			[]string{store.KeySyncErrors, store.KeyLastSync},
			report.CorruptedKeys)
	})

	t.Run("ScoreFlooredAtZero", func(t *testing.T) {
		c, s, _, _ := newTestCache(t, now, Config{})
		require.NoError(t, s.Set(ctx, store.KeyTodayContent, "x"))
		require.NoError(t, s.Set(ctx, store.KeyContentMetadata, "x"))
		require.NoError(t, s.Set(ctx, store.KeyContentHistory, "x"))
		require.NoError(t, s.Set(ctx, store.KeyPreviousContent, "x"))

		report := c.CheckIntegrity(ctx)
		assert.Equal(t, 0, report.Score)
	})
}

func TestFallbackWithMetadata(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	t.Run("NoContent", func(t *testing.T) {
		c, _, _, _ := newTestCache(t, now, Config{})
		item, metadata := c.FallbackWithMetadata(ctx)
		assert.Nil(t, item)
		assert.Equal(t, FallbackNone, metadata.Source)
		assert.NotEmpty(t, metadata.Reason)
	})

	t.Run("PreviousDayIsFresh", func(t *testing.T) {
		c, _, clock, _ := newTestCache(t, now, Config{})
		c.CacheToday(ctx, testItem("2026-08-20"), true)
		c.InvalidateToday(ctx)

		clock.SetNow(time.Date(2026, 8, 20, 22, 0, 0, 0, time.UTC))
		item, metadata := c.FallbackWithMetadata(ctx)
		require.NotNil(t, item)
		assert.Equal(t, FallbackPreviousDay, metadata.Source)
		assert.Equal(t, "fresh", metadata.Staleness)
	})

	t.Run("OldContentIsConservative", func(t *testing.T) {
		c, _, clock, _ := newTestCache(t, now, Config{})
		c.CacheToday(ctx, testItem("2026-08-20"), true)
		c.InvalidateToday(ctx)

		clock.SetNow(time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC))
		_, metadata := c.FallbackWithMetadata(ctx)
		assert.Equal(t, "conservative", metadata.Staleness)
	})
}

func TestClearAllKeepsVersion(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, s, _, _ := newTestCache(t, now, Config{})

	require.NoError(t, s.Migrate(ctx))
	c.CacheToday(ctx, testItem("2026-08-20"), true)
	c.ClearAll(ctx)

	assert.Nil(t, c.Today(ctx, AllowStale))
	assert.Empty(t, c.History(ctx))
	ok, err := s.ContainsKey(ctx, store.KeyCacheVersion)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSelectiveCleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, s, _, _ := newTestCache(t, now, Config{})

	c.CacheToday(ctx, testItem("2026-08-20"), true)
	require.NoError(t, s.Set(ctx, store.KeyPendingInteractions, `[{"queue_id":"q1"}]`))

	c.SelectiveCleanup(ctx, InvalidationFlags{History: true, Pending: true, Today: true})

	// Today is never touched by selective cleanup.
	assert.NotNil(t, c.Today(ctx, StrictToday))
	assert.Empty(t, c.History(ctx))
	ok, err := s.ContainsKey(ctx, store.KeyPendingInteractions)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMaintenanceStampsCleanupKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	c, s, _, _ := newTestCache(t, now, Config{MaxHistoryDays: 7})

	c.CacheToday(ctx, testItem("2026-08-20"), true)
	c.Maintenance(ctx)

	raw, ok, err := s.Get(ctx, store.KeyLastCleanup)
	require.NoError(t, err)
	require.True(t, ok)
	stamp, err := time.Parse(time.RFC3339, raw)
	require.NoError(t, err)
	assert.True(t, stamp.Equal(now))

	raw, ok, err = s.Get(ctx, store.KeyContentExpiration)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"cutoff_date":"2026-08-13"`)
	assert.Contains(t, raw, `"max_history_days":7`)
}
