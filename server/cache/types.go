package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/todayfeed/server/timezone"
)

// ItemSchemaVersion gates deserialization of persisted items. Records with a
// different version are quarantined (treated as missing) rather than parsed
// best-effort.
const ItemSchemaVersion = 1

// ContentItem is the daily content payload this cache manages. The payload is
// opaque to the cache beyond its date, id, and confidence fields.
type ContentItem struct {
	SchemaVersion int    `json:"schema_version"`
	ID            string `json:"id"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	// ContentDate carries calendar-day semantics, not an instant.
	ContentDate             string  `json:"content_date"`
	ConfidenceScore         float64 `json:"confidence_score"`
	IsCached                bool    `json:"is_cached"`
	HasEngaged              bool    `json:"has_engaged"`
	RichContent             string  `json:"rich_content,omitempty"`
	EstimatedReadingMinutes int     `json:"estimated_reading_minutes,omitempty"`
}

// Date parses the item's calendar day in the given location.
func (c *ContentItem) Date(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(timezone.DateLayout, c.ContentDate, loc)
}

// Validate returns the item's semantic problems, empty when valid. now bounds
// the future-date check: a content date past tomorrow is invalid.
func (c *ContentItem) Validate(clock timezone.Clock) []string {
	var issues []string
	if c.Title == "" {
		issues = append(issues, "empty title")
	}
	if c.Summary == "" {
		issues = append(issues, "empty summary")
	}
	if c.ConfidenceScore < 0 || c.ConfidenceScore > 1 {
		issues = append(issues, fmt.Sprintf("confidence score %v out of [0,1]", c.ConfidenceScore))
	}
	date, err := c.Date(clock.Location())
	if err != nil {
		issues = append(issues, fmt.Sprintf("unparseable content date %q", c.ContentDate))
	} else if date.Sub(clock.Now()) > 48*time.Hour {
		issues = append(issues, fmt.Sprintf("content date %s is in the far future", c.ContentDate))
	}
	return issues
}

// Metadata is the sidecar record paired with today's content. It is
// overwritten on every cache write.
type Metadata struct {
	SchemaVersion         int       `json:"schema_version"`
	CachedAt              time.Time `json:"cached_at"`
	ContentDate           string    `json:"content_date"`
	TimezoneOffsetMinutes int       `json:"timezone_offset_minutes"`
	// FromAPI distinguishes API-origin content from fallback content.
	FromAPI         bool    `json:"from_api"`
	EstimatedBytes  int     `json:"estimated_bytes"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// HistoryEntry is one archived item in the bounded history list.
type HistoryEntry struct {
	Item       ContentItem `json:"item"`
	ArchivedAt time.Time   `json:"archived_at"`
}

// decodeItem parses a persisted ContentItem, rejecting unknown schema
// versions.
func decodeItem(raw string) (*ContentItem, error) {
	var item ContentItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, errors.Wrap(err, "malformed content item")
	}
	if item.SchemaVersion != ItemSchemaVersion {
		return nil, errors.Errorf("unknown content schema version %d", item.SchemaVersion)
	}
	return &item, nil
}

func encodeItem(item *ContentItem) (string, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal content item")
	}
	return string(raw), nil
}
