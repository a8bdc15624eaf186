package syncer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/todayfeed/store"
)

// PendingInteraction is a user action recorded while the delivery target was
// unreachable, queued for later replay. Delivery is at-least-once; the
// downstream consumer must tolerate duplicates.
type PendingInteraction struct {
	QueueID        string            `json:"queueId"`
	Type           string            `json:"type"`
	ContentID      string            `json:"contentId"`
	Timestamp      time.Time         `json:"timestamp"`
	Extra          map[string]string `json:"extra,omitempty"`
	RetryCount     int               `json:"retryCount"`
	DeviceTimezone string            `json:"deviceTimezone"`
}

// NewInteraction builds a queue entry with a fresh queue id.
func NewInteraction(kind, contentID string, extra map[string]string, now time.Time) PendingInteraction {
	name, _ := now.Zone()
	return PendingInteraction{
		QueueID:        shortuuid.New(),
		Type:           kind,
		ContentID:      contentID,
		Timestamp:      now,
		Extra:          extra,
		DeviceTimezone: name,
	}
}

// InteractionSink delivers a replayed interaction downstream. The production
// sink is supplied by the caller that owns the content API client.
type InteractionSink interface {
	Deliver(ctx context.Context, interaction PendingInteraction) error
}

// SinkFunc adapts a function to InteractionSink.
type SinkFunc func(ctx context.Context, interaction PendingInteraction) error

func (f SinkFunc) Deliver(ctx context.Context, interaction PendingInteraction) error {
	return f(ctx, interaction)
}

func loadQueue(ctx context.Context, s *store.Store) ([]PendingInteraction, error) {
	raw, ok, err := s.Get(ctx, store.KeyPendingInteractions)
	if err != nil {
		return nil, errors.Wrap(err, "read pending interactions")
	}
	if !ok {
		return nil, nil
	}
	var queue []PendingInteraction
	if err := json.Unmarshal([]byte(raw), &queue); err != nil {
		return nil, errors.Wrap(err, "decode pending interactions")
	}
	return queue, nil
}

// saveQueue writes the queue back, removing the key entirely when empty so an
// absent key always means "nothing pending".
func saveQueue(ctx context.Context, s *store.Store, queue []PendingInteraction) error {
	if len(queue) == 0 {
		return errors.Wrap(s.Remove(ctx, store.KeyPendingInteractions), "clear pending interactions")
	}
	raw, err := json.Marshal(queue)
	if err != nil {
		return errors.Wrap(err, "encode pending interactions")
	}
	return errors.Wrap(s.Set(ctx, store.KeyPendingInteractions, string(raw)), "write pending interactions")
}
