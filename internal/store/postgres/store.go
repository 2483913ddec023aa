// Package postgres backs the publish-time read-models (project and user
// display data) and the persistent dead-letter sink.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/taskflow/notify/internal/broker"
	"github.com/taskflow/notify/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("postgres: not found")

// Store implements emitter.Directory and the dead-letter store interfaces
// using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a store. Every operation runs under opTimeout.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Project returns the minimal project read-model.
func (s *Store) Project(ctx context.Context, id uuid.UUID) (domain.Project, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var p domain.Project
	err := s.db.QueryRowContext(ctx, queryGetProject, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// User returns the minimal user read-model.
func (s *Store) User(ctx context.Context, id uuid.UUID) (domain.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var u domain.User
	err := s.db.QueryRowContext(ctx, queryGetUser, id).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// InsertDeadLetter persists an exhausted message for manual replay.
// Re-inserting the same dead letter (redelivered sink call) is a no-op.
func (s *Store) InsertDeadLetter(ctx context.Context, dl broker.DeadLetter) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	envelope, err := json.Marshal(dl.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	_, err = s.db.ExecContext(ctx, queryInsertDeadLetter,
		dl.ID, dl.Queue, dl.Envelope.ID, envelope, dl.Attempts, dl.LastError, dl.FailedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns stored dead letters, oldest first.
func (s *Store) ListDeadLetters(ctx context.Context, limit, offset int) ([]broker.DeadLetter, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListDeadLetters, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var result []broker.DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return result, nil
}

// GetDeadLetter returns one stored dead letter by id.
func (s *Store) GetDeadLetter(ctx context.Context, id uuid.UUID) (broker.DeadLetter, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, queryGetDeadLetter, id)
	dl, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.DeadLetter{}, fmt.Errorf("dead letter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return broker.DeadLetter{}, err
	}
	return dl, nil
}

// DeleteDeadLetter removes one stored dead letter, typically after replay.
func (s *Store) DeleteDeadLetter(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, queryDeleteDeadLetter, id); err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	return nil
}

// CountDeadLetters reports the dead-letter backlog size.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, queryCountDeadLetters).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// PurgeDeadLettersBefore deletes dead letters that failed before cutoff
// and returns how many were removed.
func (s *Store) PurgeDeadLettersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, queryPurgeDeadLetters, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeadLetter(row scanner) (broker.DeadLetter, error) {
	var dl broker.DeadLetter
	var envelope []byte
	var eventID uuid.UUID
	err := row.Scan(&dl.ID, &dl.Queue, &eventID, &envelope, &dl.Attempts, &dl.LastError, &dl.FailedAt)
	if err != nil {
		return broker.DeadLetter{}, err
	}
	if err := json.Unmarshal(envelope, &dl.Envelope); err != nil {
		return broker.DeadLetter{}, fmt.Errorf("unmarshal envelope for %s: %w", dl.ID, err)
	}
	return dl, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
