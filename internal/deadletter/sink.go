// Package deadletter makes the exhausted-retry path explicit: every dead
// letter is logged, optionally persisted for manual replay, and pruned on
// a schedule once its retention lapses.
package deadletter

import (
	"context"
	"log"
	"time"

	"github.com/taskflow/notify/internal/broker"
)

// Store persists dead letters. internal/store/postgres implements it.
type Store interface {
	InsertDeadLetter(ctx context.Context, dl broker.DeadLetter) error
	CountDeadLetters(ctx context.Context) (int64, error)
	PurgeDeadLettersBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sink logs every dead letter and, when a store is configured, persists it
// so dlqreplay can put it back on its queue. Persistence failures are
// logged and swallowed: the sink is the end of the line and must never
// fail the consumer worker.
type Sink struct {
	logSink broker.LogSink
	store   Store // optional, nil = log only
}

// NewSink creates a log-only sink.
func NewSink() *Sink {
	return &Sink{}
}

// WithStore adds persistence to the sink.
func (s *Sink) WithStore(store Store) *Sink {
	s.store = store
	return s
}

func (s *Sink) Receive(ctx context.Context, dl broker.DeadLetter) {
	s.logSink.Receive(ctx, dl)
	if s.store == nil {
		return
	}
	if err := s.store.InsertDeadLetter(ctx, dl); err != nil {
		log.Printf("deadletter: persist msg=%s failed: %v", dl.Envelope.ID, err)
	}
}
