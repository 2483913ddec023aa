package broker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

// DeadLetter is a message that exhausted every retry attempt. It carries
// the original envelope untouched so it can be replayed verbatim.
type DeadLetter struct {
	ID        uuid.UUID
	Queue     string
	Envelope  domain.Envelope
	Attempts  int
	LastError string
	FailedAt  time.Time
}

// DeadLetterSink receives exhausted messages. Implementations must be
// fire-and-forget: they handle their own errors and never block the
// consumer worker for long.
type DeadLetterSink interface {
	Receive(ctx context.Context, dl DeadLetter)
}

// LogSink is the minimum viable dead-letter sink: every exhausted message
// is at least visible in the logs instead of vanishing.
type LogSink struct{}

func (s *LogSink) Receive(ctx context.Context, dl DeadLetter) {
	log.Printf("deadletter: queue=%s msg=%s kind=%s attempts=%d err=%s",
		dl.Queue, dl.Envelope.ID, dl.Envelope.Kind, dl.Attempts, dl.LastError)
}
