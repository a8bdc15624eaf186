// Package errlog keeps a bounded ring of sync error records in the store.
// Read paths that swallow failures append here so diagnostics can surface
// what went wrong without any error ever propagating to the caller.
package errlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hrygo/todayfeed/internal/observability"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
)

// MaxRecords caps the persisted ring; oldest records are dropped beyond it.
const MaxRecords = 50

// Record captures one swallowed failure with enough context to debug it later.
type Record struct {
	Operation          string    `json:"operation"`
	Message            string    `json:"message"`
	Timestamp          time.Time `json:"timestamp"`
	ConnectivityStatus string    `json:"connectivity_status,omitempty"`
	CacheSizeBytes     int       `json:"cache_size_bytes,omitempty"`
}

// Log appends records to the persisted ring. A Log write failing is itself
// swallowed (logged only); the error log must never take down a caller.
type Log struct {
	store *store.Store
	clock timezone.Clock
}

func New(store *store.Store, clock timezone.Clock) *Log {
	return &Log{store: store, clock: clock}
}

// Append records a failure. Never returns an error.
func (l *Log) Append(ctx context.Context, record Record) {
	if record.Timestamp.IsZero() {
		record.Timestamp = l.clock.Now()
	}
	slog.Warn("recorded sync error",
		observability.LogFieldOperation, record.Operation,
		"message", record.Message,
		"connectivity", record.ConnectivityStatus)

	records := l.load(ctx)
	records = append(records, record)
	if len(records) > MaxRecords {
		records = records[len(records)-MaxRecords:]
	}
	raw, err := json.Marshal(records)
	if err != nil {
		slog.Error("failed to marshal error log", "error", err)
		return
	}
	if err := l.store.Set(ctx, store.KeySyncErrors, string(raw)); err != nil {
		slog.Error("failed to persist error log", "error", err)
	}
}

// Recent returns all records in the ring, oldest first.
func (l *Log) Recent(ctx context.Context) []Record {
	return l.load(ctx)
}

// CountSince returns the number of records newer than the cutoff.
func (l *Log) CountSince(ctx context.Context, cutoff time.Time) int {
	count := 0
	for _, r := range l.load(ctx) {
		if r.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// Clear drops the ring.
func (l *Log) Clear(ctx context.Context) {
	if err := l.store.Remove(ctx, store.KeySyncErrors); err != nil {
		slog.Error("failed to clear error log", "error", err)
	}
}

func (l *Log) load(ctx context.Context) []Record {
	raw, ok, err := l.store.Get(ctx, store.KeySyncErrors)
	if err != nil || !ok {
		return nil
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		// A corrupt ring is dropped rather than repaired.
		slog.Warn("error log corrupt, resetting", "error", err)
		return nil
	}
	return records
}
