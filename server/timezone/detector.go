package timezone

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/todayfeed/store"
)

// Decision describes a detected timezone or DST change and whether it
// warrants refreshing cached content out of cycle.
type Decision struct {
	ZoneChanged      bool
	DSTChanged       bool
	ImmediateRefresh bool
	Previous         Snapshot
	Current          Snapshot
}

// DetectorConfig carries the change-detection thresholds. The immediate
// refresh heuristics are unverified against real travel scenarios, so they
// stay configurable rather than hard-coded.
type DetectorConfig struct {
	// CheckInterval is how often the detector runs.
	CheckInterval time.Duration
	// OffsetDelta is the offset change beyond which a refresh fires
	// immediately (a "real" timezone change, e.g. travel).
	OffsetDelta time.Duration
	// DSTStalenessWindow: a DST flip triggers an immediate refresh only if
	// more than this much time has passed since the last refresh.
	DSTStalenessWindow time.Duration
}

// Detector periodically compares the current timezone snapshot against the
// persisted one and notifies the handler on significant changes.
type Detector struct {
	store  *store.Store
	clock  Clock
	config DetectorConfig

	// lastRefresh reports when content was last refreshed, if known.
	lastRefresh func(ctx context.Context) (time.Time, bool)
	// handler runs on every detected change, after the snapshot has been
	// persisted.
	handler func(ctx context.Context, decision Decision)
}

func NewDetector(
	store *store.Store,
	clock Clock,
	config DetectorConfig,
	lastRefresh func(ctx context.Context) (time.Time, bool),
	handler func(ctx context.Context, decision Decision),
) *Detector {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 2 * time.Hour
	}
	if config.OffsetDelta <= 0 {
		config.OffsetDelta = 2 * time.Hour
	}
	if config.DSTStalenessWindow <= 0 {
		config.DSTStalenessWindow = 12 * time.Hour
	}
	return &Detector{
		store:       store,
		clock:       clock,
		config:      config,
		lastRefresh: lastRefresh,
		handler:     handler,
	}
}

// Run checks once at startup and then on every tick until ctx is done.
func (d *Detector) Run(ctx context.Context) {
	if _, err := d.CheckNow(ctx); err != nil {
		slog.Error("timezone check failed", "error", err)
	}

	ticker := time.NewTicker(d.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.CheckNow(ctx); err != nil {
				slog.Error("timezone check failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("timezone detector stopped")
			return
		}
	}
}

// CheckNow compares the fresh snapshot against the persisted one. It returns
// a Decision when a change was detected, nil otherwise. On first run it only
// persists the current state; there is nothing to compare against.
func (d *Detector) CheckNow(ctx context.Context) (*Decision, error) {
	current := TakeSnapshot(d.clock)
	defer d.recordCheck(ctx)

	previous, ok, err := d.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, d.persistSnapshot(ctx, current)
	}

	zoneChanged := !current.SameZone(previous)
	dstChanged := current.IsDST != previous.IsDST
	if !zoneChanged && !dstChanged {
		return nil, nil
	}

	decision := Decision{
		ZoneChanged: zoneChanged,
		DSTChanged:  dstChanged,
		Previous:    previous,
		Current:     current,
	}
	decision.ImmediateRefresh = d.shouldRefreshNow(ctx, decision)

	slog.Info("timezone change detected",
		"previous", previous.Name,
		"current", current.Name,
		"offset_delta", current.OffsetDelta(previous).String(),
		"dst_changed", dstChanged,
		"immediate_refresh", decision.ImmediateRefresh)

	if err := d.persistSnapshot(ctx, current); err != nil {
		return nil, err
	}
	if d.handler != nil {
		d.handler(ctx, decision)
	}
	return &decision, nil
}

// shouldRefreshNow applies the immediate-refresh heuristics: a large offset
// jump, or a DST flip on content that has not refreshed for a while.
func (d *Detector) shouldRefreshNow(ctx context.Context, decision Decision) bool {
	if decision.Current.OffsetDelta(decision.Previous) > d.config.OffsetDelta {
		return true
	}
	if decision.DSTChanged && d.lastRefresh != nil {
		last, ok := d.lastRefresh(ctx)
		if !ok || d.clock.Now().Sub(last) > d.config.DSTStalenessWindow {
			return true
		}
	}
	return false
}

func (d *Detector) loadSnapshot(ctx context.Context) (Snapshot, bool, error) {
	raw, ok, err := d.store.Get(ctx, store.KeyTimezoneSnapshot)
	if err != nil {
		return Snapshot{}, false, errors.Wrap(err, "failed to read timezone snapshot")
	}
	if !ok {
		return Snapshot{}, false, nil
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		// Corrupt snapshot: treat as first run.
		slog.Warn("timezone snapshot corrupt, resetting", "error", err)
		return Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

func (d *Detector) persistSnapshot(ctx context.Context, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to marshal timezone snapshot")
	}
	return d.store.Set(ctx, store.KeyTimezoneSnapshot, string(raw))
}

func (d *Detector) recordCheck(ctx context.Context) {
	if err := d.store.Set(ctx, store.KeyLastTimezoneCheck, d.clock.Now().Format(time.RFC3339)); err != nil {
		slog.Error("failed to record timezone check", "error", err)
	}
}
