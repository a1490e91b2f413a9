package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
	"github.com/calden87/tuyatrace/internal/pulsar"
	"github.com/calden87/tuyatrace/internal/store"
)

// EventSource yields decoded stream events.
type EventSource interface {
	NextEvent(ctx context.Context) (pulsar.Event, error)
}

// EventStore is the slice of the store the watcher writes through.
type EventStore interface {
	UpsertLogs(ctx context.Context, records []store.Record) (int, error)
}

// Sink receives each newly stored record for downstream fan-out.
// Duplicate deliveries never reach a sink.
type Sink interface {
	Publish(ctx context.Context, rec store.Record) error
}

// Watcher streams live events into the store.
type Watcher struct {
	source EventSource
	store  EventStore
	sinks  []Sink
	log    *logging.Logger

	count atomic.Int64
}

// New creates a Watcher. Sinks are optional.
func New(source EventSource, st EventStore, log *logging.Logger, sinks ...Sink) *Watcher {
	return &Watcher{
		source: source,
		store:  st,
		sinks:  sinks,
		log:    log.With("component", "watcher"),
	}
}

// Count returns the number of events stored in this session.
func (w *Watcher) Count() int64 {
	return w.count.Load()
}

// Run consumes the stream until it ends.
//
// Returns nil on graceful stream close, ctx.Err() on cancellation, and
// the underlying error on storage failure. The watcher never retries:
// reconnection belongs to the subscriber, dedup to the store.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		ev, err := w.source.NextEvent(ctx)
		if err != nil {
			if errors.Is(err, pulsar.ErrStreamClosed) {
				w.log.Info("stream ended", "events_stored", w.count.Load())
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading stream: %w", err)
		}

		rec := recordFromEvent(ev)
		inserted, err := w.store.UpsertLogs(ctx, []store.Record{rec})
		if err != nil {
			// Storage failure is fatal: losing live events silently is
			// worse than stopping.
			return err
		}

		if inserted > 0 {
			w.count.Add(1)
			w.log.Info("event stored",
				"device_id", rec.DeviceID, "code", rec.Code, "event_time", rec.EventTime)
			w.fanOut(ctx, rec)
		} else {
			w.log.Debug("duplicate event absorbed",
				"device_id", rec.DeviceID, "event_time", rec.EventTime)
		}
	}
}

// fanOut hands a newly stored record to every sink. Sink failure is an
// observability loss, not an ingestion failure.
func (w *Watcher) fanOut(ctx context.Context, rec store.Record) {
	for _, sink := range w.sinks {
		if err := sink.Publish(ctx, rec); err != nil {
			w.log.Warn("sink publish failed", "device_id", rec.DeviceID, "error", err)
		}
	}
}

// recordFromEvent translates a stream event into a storable record.
//
// The event identifier is a deterministic hash of the identifying fields,
// so broker redeliveries map onto the same deduplication key.
func recordFromEvent(ev pulsar.Event) store.Record {
	data, _ := json.Marshal(ev.Data) // map keys marshal sorted
	idPayload := fmt.Sprintf("%s:%d:%s:%s", ev.DeviceID, ev.Timestamp, ev.Type, data)
	sum := sha256.Sum256([]byte(idPayload))

	return store.Record{
		DeviceID:  ev.DeviceID,
		EventID:   hex.EncodeToString(sum[:])[:15],
		EventTime: ev.Timestamp,
		Source:    "stream",
		Code:      ev.Type,
		Value:     string(data),
		Status:    "stream",
		RawJSON:   string(ev.Raw),
	}
}
