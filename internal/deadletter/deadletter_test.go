package deadletter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/broker"
	"github.com/taskflow/notify/internal/domain"
)

type mockStore struct {
	mu         sync.Mutex
	inserted   []broker.DeadLetter
	insertErr  error
	purged     []time.Time
	purgeCount int64
}

func (s *mockStore) InsertDeadLetter(ctx context.Context, dl broker.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, dl)
	return nil
}

func (s *mockStore) CountDeadLetters(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.inserted)), nil
}

func (s *mockStore) PurgeDeadLettersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged = append(s.purged, cutoff)
	return s.purgeCount, nil
}

func testDeadLetter(t *testing.T) broker.DeadLetter {
	t.Helper()
	env, err := domain.NewEnvelope(domain.KindTaskCreated, time.Now(), domain.TaskCreated{
		TaskID:    uuid.New(),
		ProjectID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	return broker.DeadLetter{
		ID:        uuid.New(),
		Queue:     "task-created",
		Envelope:  env,
		Attempts:  3,
		LastError: "poisoned",
		FailedAt:  time.Now().UTC(),
	}
}

func TestSink_LogOnly(t *testing.T) {
	s := NewSink()
	// Without a store this must be a safe no-op beyond logging.
	s.Receive(context.Background(), testDeadLetter(t))
}

func TestSink_PersistsWithStore(t *testing.T) {
	store := &mockStore{}
	s := NewSink().WithStore(store)

	dl := testDeadLetter(t)
	s.Receive(context.Background(), dl)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d dead letters, want 1", len(store.inserted))
	}
	if store.inserted[0].ID != dl.ID {
		t.Errorf("inserted ID = %v, want %v", store.inserted[0].ID, dl.ID)
	}
}

func TestSink_SwallowsPersistenceFailure(t *testing.T) {
	store := &mockStore{insertErr: errors.New("db down")}
	s := NewSink().WithStore(store)

	// Must not panic or propagate; the sink is fire-and-forget.
	s.Receive(context.Background(), testDeadLetter(t))
}

func TestJanitor_SweepPurgesWithRetentionCutoff(t *testing.T) {
	store := &mockStore{purgeCount: 4}
	j := NewJanitor(store, 24*time.Hour, "0 * * * *")

	before := time.Now().UTC().Add(-24 * time.Hour)
	j.sweep()
	after := time.Now().UTC().Add(-24 * time.Hour)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.purged) != 1 {
		t.Fatalf("purge called %d times, want 1", len(store.purged))
	}
	cutoff := store.purged[0]
	if cutoff.Before(before) || cutoff.After(after) {
		t.Errorf("cutoff = %v, want within [%v, %v]", cutoff, before, after)
	}
}

func TestJanitor_BadScheduleFailsStart(t *testing.T) {
	j := NewJanitor(&mockStore{}, time.Hour, "every day at noon")
	if err := j.Start(); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestJanitor_StartStop(t *testing.T) {
	j := NewJanitor(&mockStore{}, time.Hour, "0 * * * *")
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	j.Stop()

	// Stop without Start is a no-op.
	NewJanitor(&mockStore{}, time.Hour, "0 * * * *").Stop()
}
