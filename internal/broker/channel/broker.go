// Package channel implements the broker on in-process buffered channels.
// It is the local-development and test backend: delivery is at-least-once
// within the process but nothing survives a restart. Durable deployments
// use the redisq backend.
package channel

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/taskflow/notify/internal/broker"
	"github.com/taskflow/notify/internal/domain"
)

// ErrQueueFull is returned by Publish when a bound queue buffer stays full
// past the publish timeout.
var ErrQueueFull = errors.New("channel: queue buffer full")

// DefaultPublishTimeout bounds how long Publish blocks on a full buffer.
const DefaultPublishTimeout = 5 * time.Second

// DrainTimeout is the maximum time spent processing buffered messages
// after shutdown is signalled.
const DrainTimeout = 30 * time.Second

type queue struct {
	name    string
	kind    domain.EventKind
	ch      chan domain.Envelope
	handler broker.Handler
}

// Broker routes envelopes to one buffered channel per subscribed queue,
// with a dedicated worker goroutine per queue so one slow or poisoned
// consumer never delays another.
type Broker struct {
	mu             sync.Mutex
	queues         []*queue
	buffer         int
	publishTimeout time.Duration
	retrier        *broker.Retrier
	metrics        broker.MetricsSink // optional, nil = disabled
}

// Option configures the broker.
type Option func(*Broker)

// WithPublishTimeout overrides the publish timeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(b *Broker) { b.publishTimeout = d }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink broker.MetricsSink) Option {
	return func(b *Broker) { b.metrics = sink }
}

// New creates a channel broker. All queue buffers share the same capacity.
func New(retrier *broker.Retrier, buffer int, opts ...Option) *Broker {
	b := &Broker{
		buffer:         buffer,
		publishTimeout: DefaultPublishTimeout,
		retrier:        retrier,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe provisions a queue bound to one event kind. Must be called
// before Run.
func (b *Broker) Subscribe(name string, kind domain.EventKind, h broker.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = append(b.queues, &queue{
		name:    name,
		kind:    kind,
		ch:      make(chan domain.Envelope, b.buffer),
		handler: b.retrier.Wrap(name, h),
	})
}

// Publish delivers env to every queue bound to its kind. It blocks until
// each queue accepts the message, the timeout elapses, or ctx is
// cancelled; any failure is reported to the caller.
func (b *Broker) Publish(ctx context.Context, env domain.Envelope) error {
	b.mu.Lock()
	queues := b.queues
	b.mu.Unlock()

	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()

	for _, q := range queues {
		if q.kind != env.Kind {
			continue
		}
		select {
		case q.ch <- env:
		case <-ctx.Done():
			if b.metrics != nil {
				b.metrics.PublishError()
			}
			return ctx.Err()
		case <-timer.C:
			if b.metrics != nil {
				b.metrics.PublishError()
			}
			return ErrQueueFull
		}
	}

	if b.metrics != nil {
		b.metrics.EventPublished(string(env.Kind))
	}
	return nil
}

// Run consumes every queue until ctx is cancelled, then drains buffered
// messages with a timeout before returning.
func (b *Broker) Run(ctx context.Context) {
	b.mu.Lock()
	queues := b.queues
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(q *queue) {
			defer wg.Done()
			b.consume(ctx, q)
		}(q)
	}
	wg.Wait()
}

func (b *Broker) consume(ctx context.Context, q *queue) {
	for {
		select {
		case <-ctx.Done():
			b.drain(q)
			return
		case env := <-q.ch:
			if err := q.handler(ctx, env); err != nil {
				log.Printf("channel: queue=%s msg=%s abandoned: %v", q.name, env.ID, err)
			}
		}
	}
}

// drain processes messages left in the buffer after shutdown is signalled.
// Uses a background context since the run context is already cancelled.
func (b *Broker) drain(q *queue) {
	drainCtx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			log.Printf("channel: queue=%s drain timeout, processed %d messages", q.name, count)
			return
		case env := <-q.ch:
			if err := q.handler(drainCtx, env); err != nil {
				log.Printf("channel: queue=%s drain msg=%s abandoned: %v", q.name, env.ID, err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("channel: queue=%s drain complete, processed %d messages", q.name, count)
			}
			return
		}
	}
}
