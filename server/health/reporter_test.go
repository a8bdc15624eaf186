package health

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/server/cache"
	"github.com/hrygo/todayfeed/server/errlog"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
	"github.com/hrygo/todayfeed/store/db/memory"
)

const maxTestBytes = 1 << 20

func newTestReporter(t *testing.T) (*Reporter, *cache.Cache, *store.Store, *memory.Driver, *timezone.FakeClock, *errlog.Log) {
	t.Helper()
	p := &profile.Profile{}
	p.FromEnv()
	require.NoError(t, p.Validate())

	driver := memory.NewDriver()
	s := store.New(driver, p)
	clock := timezone.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	errlg := errlog.New(s, clock)
	c := cache.New(s, clock, errlg, cache.Config{MaxBytes: maxTestBytes})
	return New(s, c, errlg, clock, maxTestBytes), c, s, driver, clock, errlg
}

func item(date string) cache.ContentItem {
	return cache.ContentItem{
		ID:              "item-" + date,
		Title:           "Daily Insight",
		Summary:         "Short walks add up.",
		ContentDate:     date,
		ConfidenceScore: 0.9,
	}
}

func TestFullyPopulatedCacheIsHealthy(t *testing.T) {
	ctx := context.Background()
	r, c, _, _, clock, _ := newTestReporter(t)

	c.CacheToday(ctx, item("2026-08-19"), true)
	clock.Advance(24 * time.Hour)
	c.CacheToday(ctx, item("2026-08-20"), true)

	report := r.Check(ctx)
	assert.Equal(t, weightAvailability, report.Availability)
	assert.Equal(t, weightErrors, report.ErrorRate)
	assert.Equal(t, weightStorage, report.Storage)
	assert.Equal(t, weightIntegrity, report.Integrity)
	assert.Equal(t, 100, report.Score)
	assert.Equal(t, StatusHealthy, report.Status)
}

func TestEmptyCacheLosesAvailability(t *testing.T) {
	ctx := context.Background()
	r, _, _, _, _, _ := newTestReporter(t)

	report := r.Check(ctx)
	assert.Equal(t, 0, report.Availability)
	assert.Equal(t, 70, report.Score)
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestErrorRateTiers(t *testing.T) {
	ctx := context.Background()
	r, _, _, _, _, errlg := newTestReporter(t)

	tiers := []struct {
		name  string
		count int
		want  int
	}{
		{"TwoErrors", 2, 20},
		{"FiveErrors", 3, 15},
		{"TenErrors", 5, 8},
		{"Flood", 10, 0},
	}
	total := 0
	for _, tier := range tiers {
		t.Run(tier.name, func(t *testing.T) {
			for i := total; i < total+tier.count; i++ {
				errlg.Append(ctx, errlog.Record{Operation: "probe", Message: "boom"})
			}
			total += tier.count

			report := r.Check(ctx)
			assert.Equal(t, total, report.ErrorsLast24h)
			assert.Equal(t, tier.want, report.ErrorRate)
		})
	}
}

func TestOldErrorsAgeOut(t *testing.T) {
	ctx := context.Background()
	r, _, _, _, clock, errlg := newTestReporter(t)

	errlg.Append(ctx, errlog.Record{Operation: "probe", Message: "boom"})
	clock.Advance(25 * time.Hour)

	report := r.Check(ctx)
	assert.Equal(t, 0, report.ErrorsLast24h)
	assert.Equal(t, weightErrors, report.ErrorRate)
}

func TestStorageUtilizationPenalty(t *testing.T) {
	ctx := context.Background()
	_, c, s, _, clock, errlg := newTestReporter(t)

	c.CacheToday(ctx, item("2026-08-20"), true)
	size := c.SizeEstimate(ctx)
	require.Positive(t, size)

	// A budget just above the current size puts utilization past 90%.
	tight := New(s, c, errlg, clock, size+1)
	report := tight.Check(ctx)
	assert.Equal(t, 0, report.Storage)

	// A budget with ample headroom scores full weight.
	roomy := New(s, c, errlg, clock, size*10)
	assert.Equal(t, weightStorage, roomy.Check(ctx).Storage)
}

func TestIntegrityPenalty(t *testing.T) {
	ctx := context.Background()
	r, _, s, _, _, _ := newTestReporter(t)

	require.NoError(t, s.Set(ctx, store.KeyTodayContent, "{definitely not json"))

	report := r.Check(ctx)
	assert.Less(t, report.IntegrityScore, 80)
	assert.Less(t, report.Integrity, weightIntegrity)
}

func TestBrokenStoreScoresWorstCase(t *testing.T) {
	ctx := context.Background()
	r, _, _, driver, _, _ := newTestReporter(t)

	driver.FailWrites = errors.New("disk full")
	report := r.Check(ctx)
	assert.Equal(t, 0, report.Latency)
	assert.Equal(t, StatusUnhealthy, report.Status)
}
