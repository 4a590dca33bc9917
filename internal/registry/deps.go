package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/notify"
	"github.com/mmynk/bailago/internal/storage"
)

// Deps are the collaborators shared by every registry.
type Deps struct {
	// Clock defaults to clock.System.
	Clock clock.Clock

	// Notifier may be nil, in which case notifications are dropped.
	Notifier notify.Dispatcher

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// snapshotRecords encodes every entity of s, in insertion order.
func snapshotRecords[T any](s *storage.EntityStore[T]) ([]storage.Record, error) {
	keys := s.Keys()
	records := make([]storage.Record, 0, len(keys))
	for _, id := range keys {
		v, _ := s.Get(id)
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", id, err)
		}
		records = append(records, storage.Record{ID: id, Payload: payload})
	}
	return records, nil
}

// restoreRecords decodes records into a fresh store.
func restoreRecords[T any](records []storage.Record) (*storage.EntityStore[T], error) {
	s := storage.NewEntityStore[T]()
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", rec.ID, err)
		}
		s.Put(rec.ID, v)
	}
	return s, nil
}
