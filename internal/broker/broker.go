// Package broker defines the contracts shared by the message broker
// backends: publishing, queue subscription, the retry policy applied as
// middleware around every consumer, and the dead-letter path for messages
// that exhaust their retries.
package broker

import (
	"context"
	"time"

	"github.com/taskflow/notify/internal/domain"
)

// Handler processes one delivered message. A nil return acknowledges the
// message; an error triggers the broker retry policy.
type Handler func(ctx context.Context, env domain.Envelope) error

// Publisher is the producer side of the broker. Publish returns only after
// the message is accepted by every queue bound to its kind, so a caller
// that sees nil knows the event will be delivered at least once.
type Publisher interface {
	Publish(ctx context.Context, env domain.Envelope) error
}

// Subscriber registers a consumer queue. Queues are provisioned from
// registration; there is no separate topology step.
type Subscriber interface {
	Subscribe(queue string, kind domain.EventKind, h Handler)
}

// Broker is implemented by both backends (in-memory channel and Redis
// Streams). Run blocks until ctx is cancelled and all consumer workers
// have stopped.
type Broker interface {
	Publisher
	Subscriber
	Run(ctx context.Context)
}

// Outcome constants for consume metrics.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeDeadLetter = "dead_letter"
	OutcomeCancelled  = "cancelled"
)

// MetricsSink records broker metrics. All methods must be non-blocking and
// fire-and-forget.
type MetricsSink interface {
	EventPublished(kind string)
	PublishError()
	ConsumeAttemptCompleted(queue string, attempt int, outcome string, duration time.Duration)
	RetryScheduled(queue string)
	DeadLettered(queue string)
	MessageInFlightIncr()
	MessageInFlightDecr()
}
