// Package emitter builds domain events from committed task writes and
// publishes them to the broker. It runs inside the tracker's command
// handlers, after the row is persisted: a publish failure therefore means
// "write succeeded, notify failed", and callers must not treat the
// returned error as evidence that nothing changed.
package emitter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

// Publisher is the broker surface the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, env domain.Envelope) error
}

// Directory resolves the minimal read-models needed to make events
// self-contained. Lookups happen at publish time, never at consume time.
type Directory interface {
	Project(ctx context.Context, id uuid.UUID) (domain.Project, error)
	User(ctx context.Context, id uuid.UUID) (domain.User, error)
}

// TaskSnapshot is the pre- or post-image of a task write, as seen by the
// command handler. A nil AssigneeID means unassigned; an empty Status on a
// post-image means the caller did not supply one.
type TaskSnapshot struct {
	ID         uuid.UUID
	Title      string
	ProjectID  uuid.UUID
	Status     domain.Status
	AssigneeID *uuid.UUID
}

// Emitter publishes task lifecycle events.
type Emitter struct {
	pub   Publisher
	dir   Directory
	clock func() time.Time
}

// New creates an emitter.
func New(pub Publisher, dir Directory) *Emitter {
	return &Emitter{
		pub:   pub,
		dir:   dir,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the event timestamp source.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.clock = now
	return e
}

// TaskCreated publishes a TaskCreated event for a freshly persisted task.
func (e *Emitter) TaskCreated(ctx context.Context, task TaskSnapshot, actor domain.Identity) error {
	project, err := e.dir.Project(ctx, task.ProjectID)
	if err != nil {
		return fmt.Errorf("resolve project %s: %w", task.ProjectID, err)
	}

	now := e.clock()
	ev := domain.TaskCreated{
		TaskID:        task.ID,
		Title:         task.Title,
		ProjectID:     task.ProjectID,
		ProjectName:   project.Name,
		CreatedBy:     actor.UserID,
		CreatedByName: actor.Name,
		CreatedAt:     now,
	}
	if task.AssigneeID != nil {
		assignee, err := e.dir.User(ctx, *task.AssigneeID)
		if err != nil {
			return fmt.Errorf("resolve assignee %s: %w", *task.AssigneeID, err)
		}
		ev.AssigneeID = task.AssigneeID
		ev.AssigneeEmail = assignee.Email
	}

	return e.publish(ctx, domain.KindTaskCreated, now, ev)
}

// TaskUpdated compares the pre- and post-image of a task update and
// publishes the events the change implies: TaskStatusChanged when the
// caller supplied a status that differs from the prior value, and
// TaskAssigned when the assignee changed to a non-empty value. Clearing
// the assignee emits nothing; there is no unassignment event.
func (e *Emitter) TaskUpdated(ctx context.Context, before, after TaskSnapshot, actor domain.Identity) error {
	if statusChanged(before, after) {
		if err := e.statusChanged(ctx, before, after, actor); err != nil {
			return err
		}
	}
	if assigneeChanged(before, after) {
		if err := e.assigned(ctx, after, actor); err != nil {
			return err
		}
	}
	return nil
}

func statusChanged(before, after TaskSnapshot) bool {
	return after.Status != "" && after.Status != before.Status
}

func assigneeChanged(before, after TaskSnapshot) bool {
	if after.AssigneeID == nil {
		return false
	}
	return before.AssigneeID == nil || *before.AssigneeID != *after.AssigneeID
}

func (e *Emitter) statusChanged(ctx context.Context, before, after TaskSnapshot, actor domain.Identity) error {
	project, err := e.dir.Project(ctx, after.ProjectID)
	if err != nil {
		return fmt.Errorf("resolve project %s: %w", after.ProjectID, err)
	}

	now := e.clock()
	ev := domain.TaskStatusChanged{
		TaskID:        after.ID,
		TaskTitle:     after.Title,
		OldStatus:     before.Status,
		NewStatus:     after.Status,
		ChangedBy:     actor.UserID,
		ChangedByName: actor.Name,
		ProjectID:     after.ProjectID,
		ProjectName:   project.Name,
		ChangedAt:     now,
	}
	if after.AssigneeID != nil {
		assignee, err := e.dir.User(ctx, *after.AssigneeID)
		if err != nil {
			return fmt.Errorf("resolve assignee %s: %w", *after.AssigneeID, err)
		}
		ev.AssigneeID = after.AssigneeID
		ev.AssigneeEmail = assignee.Email
	}

	return e.publish(ctx, domain.KindTaskStatusChanged, now, ev)
}

func (e *Emitter) assigned(ctx context.Context, after TaskSnapshot, actor domain.Identity) error {
	project, err := e.dir.Project(ctx, after.ProjectID)
	if err != nil {
		return fmt.Errorf("resolve project %s: %w", after.ProjectID, err)
	}
	assignee, err := e.dir.User(ctx, *after.AssigneeID)
	if err != nil {
		return fmt.Errorf("resolve assignee %s: %w", *after.AssigneeID, err)
	}

	now := e.clock()
	ev := domain.TaskAssigned{
		TaskID:         after.ID,
		TaskTitle:      after.Title,
		AssigneeID:     *after.AssigneeID,
		AssigneeName:   assignee.Name,
		AssigneeEmail:  assignee.Email,
		AssignedBy:     actor.UserID,
		AssignedByName: actor.Name,
		ProjectID:      after.ProjectID,
		ProjectName:    project.Name,
		AssignedAt:     now,
	}

	return e.publish(ctx, domain.KindTaskAssigned, now, ev)
}

func (e *Emitter) publish(ctx context.Context, kind domain.EventKind, occurredAt time.Time, payload any) error {
	env, err := domain.NewEnvelope(kind, occurredAt, payload)
	if err != nil {
		return err
	}
	if err := e.pub.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}
