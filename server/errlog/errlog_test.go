package errlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store"
	"github.com/hrygo/todayfeed/store/db/memory"
)

func newTestLog(t *testing.T) (*Log, *store.Store, *timezone.FakeClock) {
	t.Helper()
	p := &profile.Profile{}
	p.FromEnv()
	require.NoError(t, p.Validate())
	s := store.New(memory.NewDriver(), p)
	clock := timezone.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	return New(s, clock), s, clock
}

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	l, _, clock := newTestLog(t)

	l.Append(ctx, Record{Operation: "get_today", Message: "corrupt json"})

	records := l.Recent(ctx)
	require.Len(t, records, 1)
	assert.Equal(t, "get_today", records[0].Operation)
	assert.True(t, records[0].Timestamp.Equal(clock.Now()))
}

func TestRingCapsAtMaxRecords(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLog(t)

	for i := 0; i < MaxRecords+10; i++ {
		l.Append(ctx, Record{Operation: fmt.Sprintf("op-%d", i), Message: "boom"})
	}

	records := l.Recent(ctx)
	require.Len(t, records, MaxRecords)
	// Oldest entries were dropped.
	assert.Equal(t, "op-10", records[0].Operation)
	assert.Equal(t, fmt.Sprintf("op-%d", MaxRecords+9), records[len(records)-1].Operation)
}

func TestCountSince(t *testing.T) {
	ctx := context.Background()
	l, _, clock := newTestLog(t)

	l.Append(ctx, Record{Operation: "old", Message: "boom"})
	clock.Advance(25 * time.Hour)
	l.Append(ctx, Record{Operation: "fresh", Message: "boom"})

	assert.Equal(t, 1, l.CountSince(ctx, clock.Now().Add(-24*time.Hour)))
	assert.Equal(t, 2, l.CountSince(ctx, clock.Now().Add(-48*time.Hour)))
}

func TestCorruptRingResets(t *testing.T) {
	ctx := context.Background()
	l, s, _ := newTestLog(t)

	require.NoError(t, s.Set(ctx, store.KeySyncErrors, "{broken"))
	l.Append(ctx, Record{Operation: "after_corruption", Message: "boom"})

	records := l.Recent(ctx)
	require.Len(t, records, 1)
	assert.Equal(t, "after_corruption", records[0].Operation)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLog(t)

	l.Append(ctx, Record{Operation: "op", Message: "boom"})
	l.Clear(ctx)
	assert.Empty(t, l.Recent(ctx))
}
