package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind discriminates the domain event union.
type EventKind string

const (
	KindTaskCreated       EventKind = "task.created"
	KindTaskAssigned      EventKind = "task.assigned"
	KindTaskStatusChanged EventKind = "task.status_changed"
)

// Envelope is the broker wire format for a domain event. Delivery metadata
// (attempt counts, queue names) is attached by broker middleware and never
// appears here.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Kind       EventKind       `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope wraps an event payload for publishing.
func NewEnvelope(kind EventKind, occurredAt time.Time, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return Envelope{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: occurredAt.UTC(),
		Data:       data,
	}, nil
}

// Decode unmarshals the event payload into v. Callers are expected to have
// checked Kind first.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s event %s: %w", e.Kind, e.ID, err)
	}
	return nil
}

// TaskCreated records that a task was created. Events are self-contained:
// every field a consumer needs to render a notification is carried here, so
// consumers never re-query the store.
type TaskCreated struct {
	TaskID        uuid.UUID  `json:"task_id"`
	Title         string     `json:"title"`
	ProjectID     uuid.UUID  `json:"project_id"`
	ProjectName   string     `json:"project_name"`
	CreatedBy     uuid.UUID  `json:"created_by"`
	CreatedByName string     `json:"created_by_name"`
	AssigneeID    *uuid.UUID `json:"assignee_id,omitempty"`
	AssigneeEmail string     `json:"assignee_email,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TaskAssigned records that a task gained a new, non-empty assignee.
// There is no event for unassignment.
type TaskAssigned struct {
	TaskID         uuid.UUID `json:"task_id"`
	TaskTitle      string    `json:"task_title"`
	AssigneeID     uuid.UUID `json:"assignee_id"`
	AssigneeName   string    `json:"assignee_name"`
	AssigneeEmail  string    `json:"assignee_email"`
	AssignedBy     uuid.UUID `json:"assigned_by"`
	AssignedByName string    `json:"assigned_by_name"`
	ProjectID      uuid.UUID `json:"project_id"`
	ProjectName    string    `json:"project_name"`
	AssignedAt     time.Time `json:"assigned_at"`
}

// TaskStatusChanged records a committed status transition where the old and
// new values differ.
type TaskStatusChanged struct {
	TaskID        uuid.UUID  `json:"task_id"`
	TaskTitle     string     `json:"task_title"`
	OldStatus     Status     `json:"old_status"`
	NewStatus     Status     `json:"new_status"`
	ChangedBy     uuid.UUID  `json:"changed_by"`
	ChangedByName string     `json:"changed_by_name"`
	AssigneeID    *uuid.UUID `json:"assignee_id,omitempty"`
	AssigneeEmail string     `json:"assignee_email,omitempty"`
	ProjectID     uuid.UUID  `json:"project_id"`
	ProjectName   string     `json:"project_name"`
	ChangedAt     time.Time  `json:"changed_at"`
}
