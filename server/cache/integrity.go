package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hrygo/todayfeed/store"
)

// IntegrityReport is the result of validating all JSON-bearing cache keys.
type IntegrityReport struct {
	// Score runs from 100 (clean) to 0: -20 per structural issue, -10 per
	// warning, -25 per corrupted key.
	Score         int      `json:"score"`
	Issues        []string `json:"issues,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	CorruptedKeys []string `json:"corrupted_keys,omitempty"`
}

// Intact reports whether validation found nothing at all.
func (r IntegrityReport) Intact() bool {
	return r.Score == 100
}

// CheckIntegrity validates every JSON-bearing key: parseability, the
// metadata/content date pairing, and the semantic validity of history items.
func (c *Cache) CheckIntegrity(ctx context.Context) IntegrityReport {
	report := IntegrityReport{}

	today := c.checkTodayPair(ctx, &report)
	c.checkHistory(ctx, &report)
	c.checkPrevious(ctx, &report)
	c.checkAuxKeys(ctx, &report)

	if today != nil {
		if issues := today.Validate(c.clock); len(issues) > 0 {
			for _, issue := range issues {
				report.Warnings = append(report.Warnings, "today content: "+issue)
			}
		}
	}

	report.Score = 100 - 20*len(report.Issues) - 10*len(report.Warnings) - 25*len(report.CorruptedKeys)
	if report.Score < 0 {
		report.Score = 0
	}
	return report
}

func (c *Cache) checkTodayPair(ctx context.Context, report *IntegrityReport) *ContentItem {
	var today *ContentItem
	raw, ok, err := c.store.Get(ctx, store.KeyTodayContent)
	if err == nil && ok {
		today, err = decodeItem(raw)
		if err != nil {
			report.CorruptedKeys = append(report.CorruptedKeys, store.KeyTodayContent)
		}
	}

	rawMetadata, ok, err := c.store.Get(ctx, store.KeyContentMetadata)
	if err != nil || !ok {
		if today != nil {
			report.Issues = append(report.Issues, "today content present without metadata")
		}
		return today
	}

	var metadata Metadata
	if err := json.Unmarshal([]byte(rawMetadata), &metadata); err != nil {
		report.CorruptedKeys = append(report.CorruptedKeys, store.KeyContentMetadata)
		return today
	}
	if today != nil && metadata.ContentDate != today.ContentDate {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"metadata content date %s does not match content date %s",
			metadata.ContentDate, today.ContentDate))
	}
	return today
}

func (c *Cache) checkHistory(ctx context.Context, report *IntegrityReport) {
	raw, ok, err := c.store.Get(ctx, store.KeyContentHistory)
	if err != nil || !ok {
		return
	}
	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		report.CorruptedKeys = append(report.CorruptedKeys, store.KeyContentHistory)
		return
	}
	for i, entry := range entries {
		if entry.Item.SchemaVersion != ItemSchemaVersion {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"history entry %d: unknown schema version %d", i, entry.Item.SchemaVersion))
			continue
		}
		for _, issue := range entry.Item.Validate(c.clock) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("history entry %d: %s", i, issue))
		}
	}
}

func (c *Cache) checkPrevious(ctx context.Context, report *IntegrityReport) {
	raw, ok, err := c.store.Get(ctx, store.KeyPreviousContent)
	if err != nil || !ok {
		return
	}
	if _, err := decodeItem(raw); err != nil {
		report.CorruptedKeys = append(report.CorruptedKeys, store.KeyPreviousContent)
	}
}

// auxJSONKeys lists the remaining JSON-bearing keys with their expected
// top-level shape. Their payloads belong to other packages, so validation
// stops at parseability.
var auxJSONKeys = []struct {
	key    string
	decode func(raw string) error
}{
	{store.KeyPendingInteractions, decodeJSONList},
	{store.KeySyncErrors, decodeJSONList},
	{store.KeyTimezoneSnapshot, decodeJSONObject},
	{store.KeyLastSync, decodeJSONObject},
	{store.KeyLastDisconnect, decodeJSONObject},
	{store.KeyManualInvalidation, decodeJSONObject},
	{store.KeyContentExpiration, decodeJSONObject},
}

func (c *Cache) checkAuxKeys(ctx context.Context, report *IntegrityReport) {
	for _, aux := range auxJSONKeys {
		raw, ok, err := c.store.Get(ctx, aux.key)
		if err != nil || !ok {
			continue
		}
		if err := aux.decode(raw); err != nil {
			report.CorruptedKeys = append(report.CorruptedKeys, aux.key)
		}
	}
}

func decodeJSONList(raw string) error {
	var entries []json.RawMessage
	return json.Unmarshal([]byte(raw), &entries)
}

func decodeJSONObject(raw string) error {
	var fields map[string]json.RawMessage
	return json.Unmarshal([]byte(raw), &fields)
}
