// Package health scores the cache subsystem for operational visibility. The
// reporter is strictly read-side: it never mutates cached state, and a
// sub-metric that fails to compute contributes its worst case instead of
// aborting the report.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/todayfeed/server/cache"
	"github.com/hrygo/todayfeed/server/errlog"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
)

// Status labels for the composite score.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Sub-score weights. They sum to 100.
const (
	weightAvailability = 30
	weightErrors       = 25
	weightLatency      = 20
	weightStorage      = 15
	weightIntegrity    = 10
)

// probeKey is written and removed by the latency probe. It lives inside the
// namespace so a crashed probe is cleaned up by version wipes.
const probeKey = "health_probe"

// Report is one scored snapshot of the subsystem.
type Report struct {
	Score  int    `json:"score"`
	Status string `json:"status"`

	Availability int `json:"availability"`
	ErrorRate    int `json:"errorRate"`
	Latency      int `json:"latency"`
	Storage      int `json:"storage"`
	Integrity    int `json:"integrity"`

	ProbeDuration  time.Duration `json:"probeDuration"`
	ErrorsLast24h  int           `json:"errorsLast24h"`
	CacheSizeBytes int           `json:"cacheSizeBytes"`
	MaxCacheBytes  int           `json:"maxCacheBytes"`
	IntegrityScore int           `json:"integrityScore"`
	GeneratedAt    time.Time     `json:"generatedAt"`
}

// Reporter aggregates cache, error log, and store state into a Report.
type Reporter struct {
	store    *store.Store
	cache    *cache.Cache
	errors   *errlog.Log
	clock    timezone.Clock
	maxBytes int
}

func New(s *store.Store, c *cache.Cache, errors *errlog.Log, clock timezone.Clock, maxBytes int) *Reporter {
	return &Reporter{store: s, cache: c, errors: errors, clock: clock, maxBytes: maxBytes}
}

// Check produces a scored report. It never returns an error; anything that
// cannot be measured scores as its worst case.
func (r *Reporter) Check(ctx context.Context) Report {
	report := Report{GeneratedAt: r.clock.Now()}

	report.Availability = r.guarded(func() int { return r.availability(ctx) })
	report.ErrorRate = r.guarded(func() int { return r.errorRate(ctx, &report) })
	report.Latency = r.guarded(func() int { return r.latency(ctx, &report) })
	report.Storage = r.guarded(func() int { return r.storage(ctx, &report) })
	report.Integrity = r.guarded(func() int { return r.integrity(ctx, &report) })

	report.Score = report.Availability + report.ErrorRate + report.Latency + report.Storage + report.Integrity
	switch {
	case report.Score >= 90:
		report.Status = StatusHealthy
	case report.Score >= 70:
		report.Status = StatusDegraded
	default:
		report.Status = StatusUnhealthy
	}
	return report
}

// guarded runs a sub-metric, converting a panic into a zero contribution.
func (r *Reporter) guarded(fn func() int) (score int) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("health sub-metric panicked", "panic", rec)
			score = 0
		}
	}()
	return fn()
}

// availability starts at full weight and deducts for each missing content
// tier: today's slot, the previous-day fallback, and history.
func (r *Reporter) availability(ctx context.Context) int {
	score := weightAvailability
	if r.cache.Today(ctx, cache.AllowStale) == nil {
		score -= 15
	}
	if r.cache.PreviousDay(ctx) == nil {
		score -= 10
	}
	if len(r.cache.History(ctx)) == 0 {
		score -= 5
	}
	if score < 0 {
		score = 0
	}
	return score
}

// errorRate tiers on the number of recorded errors in the last 24 hours.
func (r *Reporter) errorRate(ctx context.Context, report *Report) int {
	count := r.errors.CountSince(ctx, r.clock.Now().Add(-24*time.Hour))
	report.ErrorsLast24h = count
	switch {
	case count == 0:
		return weightErrors
	case count <= 2:
		return 20
	case count <= 5:
		return 15
	case count <= 10:
		return 8
	default:
		return 0
	}
}

// latency measures one write/read/remove round-trip against the store.
func (r *Reporter) latency(ctx context.Context, report *Report) int {
	start := time.Now()
	if err := r.store.Set(ctx, probeKey, "ok"); err != nil {
		return 0
	}
	if _, _, err := r.store.Get(ctx, probeKey); err != nil {
		return 0
	}
	if err := r.store.Remove(ctx, probeKey); err != nil {
		return 0
	}
	elapsed := time.Since(start)
	report.ProbeDuration = elapsed

	switch {
	case elapsed < 5*time.Millisecond:
		return weightLatency
	case elapsed < 20*time.Millisecond:
		return 15
	case elapsed < 50*time.Millisecond:
		return 10
	case elapsed < 200*time.Millisecond:
		return 5
	default:
		return 0
	}
}

// storage penalizes utilization above 80% and 90% of the byte budget.
func (r *Reporter) storage(ctx context.Context, report *Report) int {
	size := r.cache.SizeEstimate(ctx)
	report.CacheSizeBytes = size
	report.MaxCacheBytes = r.maxBytes
	if r.maxBytes <= 0 {
		return weightStorage
	}
	utilization := float64(size) / float64(r.maxBytes)
	switch {
	case utilization > 0.9:
		return 0
	case utilization > 0.8:
		return 8
	default:
		return weightStorage
	}
}

// integrity maps the cache integrity score onto its weight.
func (r *Reporter) integrity(ctx context.Context, report *Report) int {
	score := r.cache.CheckIntegrity(ctx).Score
	report.IntegrityScore = score
	switch {
	case score >= 80:
		return weightIntegrity
	case score >= 60:
		return 5
	default:
		return 0
	}
}
