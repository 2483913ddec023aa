package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
	"github.com/taskflow/notify/internal/testutil"
)

// fastPolicy keeps retry tests quick.
func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Step:         time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	}
}

type mockDeadLetterSink struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func (s *mockDeadLetterSink) Receive(ctx context.Context, dl DeadLetter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, dl)
}

func (s *mockDeadLetterSink) received() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadLetter(nil), s.letters...)
}

func testEnvelope(t *testing.T) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(domain.KindTaskCreated, time.Now(), domain.TaskCreated{
		TaskID:    uuid.New(),
		Title:     "test task",
		ProjectID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	return env
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	if got := p.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) = %v, want 2s", got)
	}
	if got := p.Delay(2); got != 4*time.Second {
		t.Errorf("Delay(2) = %v, want 4s", got)
	}
	// Far along the schedule the cap takes over.
	if got := p.Delay(50); got != 30*time.Second {
		t.Errorf("Delay(50) = %v, want the 30s cap", got)
	}
	// Out-of-range attempts are clamped.
	if got := p.Delay(0); got != 2*time.Second {
		t.Errorf("Delay(0) = %v, want 2s", got)
	}
}

func TestRetrier_SuccessFirstAttempt(t *testing.T) {
	sink := &mockDeadLetterSink{}
	r := NewRetrier(fastPolicy(), sink)

	calls := 0
	h := r.Wrap("task-created", func(ctx context.Context, env domain.Envelope) error {
		calls++
		return nil
	})

	if err := h(context.Background(), testEnvelope(t)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if len(sink.received()) != 0 {
		t.Errorf("no dead letters expected, got %d", len(sink.received()))
	}
}

func TestRetrier_SuccessAfterRetries(t *testing.T) {
	sink := &mockDeadLetterSink{}
	r := NewRetrier(fastPolicy(), sink)

	calls := 0
	h := r.Wrap("task-created", func(ctx context.Context, env domain.Envelope) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err := h(context.Background(), testEnvelope(t)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("handler called %d times, want 3", calls)
	}
	if len(sink.received()) != 0 {
		t.Errorf("no dead letters expected, got %d", len(sink.received()))
	}
}

func TestRetrier_ExhaustionDeadLetters(t *testing.T) {
	sink := &mockDeadLetterSink{}
	failedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRetrier(fastPolicy(), sink).
		WithClock(testutil.NewFakeClock(failedAt).Now)

	env := testEnvelope(t)
	calls := 0
	h := r.Wrap("task-created", func(ctx context.Context, e domain.Envelope) error {
		calls++
		return errors.New("poisoned")
	})

	// Exhaustion resolves the message: the wrapped handler reports nil so
	// backends acknowledge.
	if err := h(context.Background(), env); err != nil {
		t.Fatalf("exhausted handler should return nil, got: %v", err)
	}
	if calls != 3 {
		t.Errorf("handler called %d times, want 3", calls)
	}

	letters := sink.received()
	if len(letters) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(letters))
	}
	dl := letters[0]
	if dl.Queue != "task-created" {
		t.Errorf("Queue = %q, want task-created", dl.Queue)
	}
	if dl.Envelope.ID != env.ID {
		t.Errorf("Envelope.ID = %v, want %v", dl.Envelope.ID, env.ID)
	}
	if dl.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", dl.Attempts)
	}
	if dl.LastError != "poisoned" {
		t.Errorf("LastError = %q, want poisoned", dl.LastError)
	}
	if !dl.FailedAt.Equal(failedAt) {
		t.Errorf("FailedAt = %v, want %v", dl.FailedAt, failedAt)
	}
}

func TestRetrier_ContextCancelledDuringBackoff(t *testing.T) {
	sink := &mockDeadLetterSink{}
	policy := fastPolicy()
	policy.InitialDelay = 10 * time.Second // long enough that the test cancels first
	r := NewRetrier(policy, sink)

	ctx, cancel := context.WithCancel(context.Background())
	h := r.Wrap("task-created", func(ctx context.Context, env domain.Envelope) error {
		cancel()
		return errors.New("fail then cancel")
	})

	err := h(ctx, testEnvelope(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if len(sink.received()) != 0 {
		t.Errorf("cancelled message must not dead-letter, got %d", len(sink.received()))
	}
}

func TestRetrier_NilSinkFallsBackToLogging(t *testing.T) {
	r := NewRetrier(fastPolicy(), nil)
	h := r.Wrap("task-created", func(ctx context.Context, env domain.Envelope) error {
		return errors.New("always")
	})

	// Must not panic without a sink.
	if err := h(context.Background(), testEnvelope(t)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
}
