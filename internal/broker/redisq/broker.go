// Package redisq implements the broker on Redis Streams. Each consumer
// queue is a stream with a consumer group, which gives durable,
// at-least-once delivery: messages survive restarts, and entries claimed
// by a crashed worker are reclaimed after an idle threshold.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskflow/notify/internal/broker"
	"github.com/taskflow/notify/internal/domain"
)

const (
	// Group is the consumer group name shared by all workers of a queue.
	Group = "notify"

	streamPrefix = "notify:q:"
	envelopeKey  = "envelope"

	readBlock    = 5 * time.Second
	readCount    = 16
	claimMinIdle = time.Minute
)

type subscription struct {
	queue   string
	kind    domain.EventKind
	handler broker.Handler
}

// Broker publishes to and consumes from one Redis stream per queue.
type Broker struct {
	client   *redis.Client
	consumer string
	retrier  *broker.Retrier
	metrics  broker.MetricsSink // optional, nil = disabled

	mu   sync.Mutex
	subs []*subscription
}

// Option configures the broker.
type Option func(*Broker)

// WithMetrics attaches a metrics sink.
func WithMetrics(sink broker.MetricsSink) Option {
	return func(b *Broker) { b.metrics = sink }
}

// WithConsumerName overrides the consumer name within the group. The
// default is host-pid, so concurrent workers on one host stay distinct.
func WithConsumerName(name string) Option {
	return func(b *Broker) { b.consumer = name }
}

// New creates a Redis Streams broker.
func New(client *redis.Client, retrier *broker.Retrier, opts ...Option) *Broker {
	host, err := os.Hostname()
	if err != nil {
		host = "notify"
	}
	b := &Broker{
		client:   client,
		consumer: fmt.Sprintf("%s-%d", host, os.Getpid()),
		retrier:  retrier,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// StreamName returns the Redis stream key for a queue.
func StreamName(queue string) string {
	return streamPrefix + queue
}

// Subscribe provisions a queue bound to one event kind. Must be called
// before Run.
func (b *Broker) Subscribe(queue string, kind domain.EventKind, h broker.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, &subscription{
		queue:   queue,
		kind:    kind,
		handler: b.retrier.Wrap(queue, h),
	})
}

// Publish appends env to the stream of every queue bound to its kind.
// It returns after Redis acknowledges each append, so a nil return means
// the event is durable.
func (b *Broker) Publish(ctx context.Context, env domain.Envelope) error {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	body, err := json.Marshal(env)
	if err != nil {
		if b.metrics != nil {
			b.metrics.PublishError()
		}
		return fmt.Errorf("marshal envelope: %w", err)
	}

	for _, sub := range subs {
		if sub.kind != env.Kind {
			continue
		}
		if err := b.PublishTo(ctx, sub.queue, body); err != nil {
			if b.metrics != nil {
				b.metrics.PublishError()
			}
			return err
		}
	}

	if b.metrics != nil {
		b.metrics.EventPublished(string(env.Kind))
	}
	return nil
}

// PublishTo appends a marshalled envelope to a single queue stream. The
// dead-letter replay tool uses it to return a message to the queue it
// originally failed on.
func (b *Broker) PublishTo(ctx context.Context, queue string, envelope []byte) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(queue),
		Values: map[string]any{envelopeKey: envelope},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", StreamName(queue), err)
	}
	return nil
}

// Run ensures the consumer groups exist, then consumes every subscribed
// queue until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		if err := b.ensureGroup(ctx, sub.queue); err != nil {
			log.Printf("redisq: queue=%s group setup failed: %v", sub.queue, err)
		}
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *subscription) {
			defer wg.Done()
			b.consume(ctx, sub)
		}(sub)
	}
	wg.Wait()
}

func (b *Broker) ensureGroup(ctx context.Context, queue string) error {
	err := b.client.XGroupCreateMkStream(ctx, StreamName(queue), Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func (b *Broker) consume(ctx context.Context, sub *subscription) {
	stream := StreamName(sub.queue)
	for {
		if ctx.Err() != nil {
			return
		}

		b.reclaim(ctx, sub)

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    Group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Printf("redisq: queue=%s read failed: %v", sub.queue, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, sr := range res {
			for _, msg := range sr.Messages {
				b.handle(ctx, sub, msg)
			}
		}
	}
}

// reclaim takes over pending entries abandoned by crashed consumers so
// at-least-once holds across worker failures.
func (b *Broker) reclaim(ctx context.Context, sub *subscription) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamName(sub.queue),
		Group:    Group,
		Consumer: b.consumer,
		MinIdle:  claimMinIdle,
		Start:    "0",
		Count:    readCount,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			log.Printf("redisq: queue=%s autoclaim failed: %v", sub.queue, err)
		}
		return
	}
	for _, msg := range msgs {
		b.handle(ctx, sub, msg)
	}
}

// handle decodes one stream entry, runs the wrapped handler, and
// acknowledges unless the handler was cancelled mid-flight. The retrier
// inside the wrapped handler owns retries and dead-lettering, so an ack
// here never loses a message.
func (b *Broker) handle(ctx context.Context, sub *subscription, msg redis.XMessage) {
	env, err := decodeMessage(msg)
	if err != nil {
		// Malformed entries can never succeed; ack them out of the way.
		log.Printf("redisq: queue=%s entry=%s dropped: %v", sub.queue, msg.ID, err)
		b.ack(sub.queue, msg.ID)
		return
	}

	if err := sub.handler(ctx, env); err != nil {
		// Cancelled mid-flight. Leave the entry pending for redelivery.
		log.Printf("redisq: queue=%s msg=%s left pending: %v", sub.queue, env.ID, err)
		return
	}
	b.ack(sub.queue, msg.ID)
}

func (b *Broker) ack(queue, entryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.XAck(ctx, StreamName(queue), Group, entryID).Err(); err != nil {
		log.Printf("redisq: queue=%s ack %s failed: %v", queue, entryID, err)
	}
}

func decodeMessage(msg redis.XMessage) (domain.Envelope, error) {
	raw, ok := msg.Values[envelopeKey]
	if !ok {
		return domain.Envelope{}, errors.New("missing envelope field")
	}
	s, ok := raw.(string)
	if !ok {
		return domain.Envelope{}, fmt.Errorf("envelope field has type %T", raw)
	}
	var env domain.Envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return domain.Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
