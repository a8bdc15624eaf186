package timezone

import (
	"time"
)

// Snapshot captures the local timezone state at a point in time. A persisted
// snapshot is compared against a freshly computed one to detect timezone or
// DST changes.
type Snapshot struct {
	Name                string    `json:"name"`
	OffsetMinutes       int       `json:"offset_minutes"`
	IsDST               bool      `json:"is_dst"`
	WinterOffsetMinutes int       `json:"winter_offset_minutes"`
	SummerOffsetMinutes int       `json:"summer_offset_minutes"`
	CapturedAt          time.Time `json:"captured_at"`
}

// TakeSnapshot computes the current timezone snapshot from the clock.
func TakeSnapshot(clock Clock) Snapshot {
	now := clock.Now().In(clock.Location())
	name, offsetSeconds := now.Zone()

	// Reference offsets at mid-winter and mid-summer of the current year
	// bracket the zone's standard and daylight offsets regardless of
	// hemisphere.
	loc := clock.Location()
	winter := time.Date(now.Year(), time.January, 1, 12, 0, 0, 0, loc)
	summer := time.Date(now.Year(), time.July, 1, 12, 0, 0, 0, loc)
	_, winterOffset := winter.Zone()
	_, summerOffset := summer.Zone()

	return Snapshot{
		Name:                name,
		OffsetMinutes:       offsetSeconds / 60,
		IsDST:               now.IsDST(),
		WinterOffsetMinutes: winterOffset / 60,
		SummerOffsetMinutes: summerOffset / 60,
		CapturedAt:          now,
	}
}

// SameZone reports whether two snapshots describe the same timezone.
// Identifier-or-offset inequality counts as a timezone change.
func (s Snapshot) SameZone(other Snapshot) bool {
	return s.Name == other.Name && s.OffsetMinutes == other.OffsetMinutes
}

// OffsetDelta returns the absolute offset difference between two snapshots.
func (s Snapshot) OffsetDelta(other Snapshot) time.Duration {
	delta := s.OffsetMinutes - other.OffsetMinutes
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta) * time.Minute
}

// Offset returns the UTC offset as a duration.
func (s Snapshot) Offset() time.Duration {
	return time.Duration(s.OffsetMinutes) * time.Minute
}
