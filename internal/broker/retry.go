package broker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

// RetryPolicy describes the backoff applied between consumer attempts.
// The delay after failed attempt n is InitialDelay + Step*(n-1), capped at
// MaxDelay.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Step         time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy is three attempts with 2s, 4s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		Step:         2 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Delay returns the wait after failed attempt n (1-based). Attempts at or
// beyond MaxAttempts never wait; they dead-letter instead.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialDelay + p.Step*time.Duration(attempt-1)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retrier wraps consumer handlers with the retry policy and routes
// exhausted messages to the dead-letter sink. It is broker middleware:
// consumer code never sees attempt counts or backoff.
type Retrier struct {
	policy  RetryPolicy
	sink    DeadLetterSink
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

// NewRetrier creates retry middleware with the given policy and sink.
// A nil sink falls back to the logging sink.
func NewRetrier(policy RetryPolicy, sink DeadLetterSink) *Retrier {
	if sink == nil {
		sink = &LogSink{}
	}
	return &Retrier{
		policy: policy,
		sink:   sink,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches a metrics sink to the retrier.
func (r *Retrier) WithMetrics(sink MetricsSink) *Retrier {
	r.metrics = sink
	return r
}

// WithClock overrides the clock used to stamp dead letters.
func (r *Retrier) WithClock(now func() time.Time) *Retrier {
	r.clock = now
	return r
}

// Wrap returns a handler that retries h per the policy. The wrapped handler
// returns nil once the message is resolved, whether by success or by
// dead-lettering, so backends can always acknowledge. Only context
// cancellation propagates, leaving the message unacknowledged for
// redelivery.
func (r *Retrier) Wrap(queue string, h Handler) Handler {
	return func(ctx context.Context, env domain.Envelope) error {
		if r.metrics != nil {
			r.metrics.MessageInFlightIncr()
			defer r.metrics.MessageInFlightDecr()
		}

		var lastErr error

		for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
			if attempt > 1 {
				backoff := r.policy.Delay(attempt - 1)
				log.Printf("broker: queue=%s msg=%s attempt=%d backoff=%s", queue, env.ID, attempt, backoff)
				if r.metrics != nil {
					r.metrics.RetryScheduled(queue)
				}

				timer := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					if !timer.Stop() {
						<-timer.C
					}
					if r.metrics != nil {
						r.metrics.ConsumeAttemptCompleted(queue, attempt, OutcomeCancelled, 0)
					}
					return ctx.Err()
				case <-timer.C:
				}
			}

			started := time.Now()
			err := h(ctx, env)
			elapsed := time.Since(started)

			if err == nil {
				if r.metrics != nil {
					r.metrics.ConsumeAttemptCompleted(queue, attempt, OutcomeSuccess, elapsed)
				}
				return nil
			}
			if ctx.Err() != nil {
				if r.metrics != nil {
					r.metrics.ConsumeAttemptCompleted(queue, attempt, OutcomeCancelled, elapsed)
				}
				return ctx.Err()
			}

			lastErr = err
			if r.metrics != nil {
				r.metrics.ConsumeAttemptCompleted(queue, attempt, OutcomeError, elapsed)
			}
			log.Printf("broker: queue=%s msg=%s attempt=%d failed: %v", queue, env.ID, attempt, err)
		}

		dl := DeadLetter{
			ID:        uuid.New(),
			Queue:     queue,
			Envelope:  env,
			Attempts:  r.policy.MaxAttempts,
			LastError: lastErr.Error(),
			FailedAt:  r.clock(),
		}
		if r.metrics != nil {
			r.metrics.DeadLettered(queue)
		}
		r.sink.Receive(ctx, dl)
		return nil
	}
}
