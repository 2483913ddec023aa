package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/taskflow/notify/internal/domain"
)

// StatusChanged consumes TaskStatusChanged events. The project group is
// always told in real time; the email to the assignee is gated on the
// transition's importance classification.
type StatusChanged struct {
	notifier Notifier
	email    EmailSender
}

// NewStatusChanged creates the status-change consumer.
func NewStatusChanged(n Notifier, e EmailSender) *StatusChanged {
	return &StatusChanged{notifier: n, email: e}
}

// Consume handles one TaskStatusChanged event.
func (c *StatusChanged) Consume(ctx context.Context, env domain.Envelope) error {
	var ev domain.TaskStatusChanged
	if err := env.Decode(&ev); err != nil {
		return err
	}
	important := domain.Transition{From: ev.OldStatus, To: ev.NewStatus}.Important()
	log.Printf("consumer: status changed task=%s %s->%s by=%s important=%t",
		ev.TaskID, ev.OldStatus, ev.NewStatus, ev.ChangedBy, important)

	c.notifier.Dispatch(ctx, domain.Intent{
		Type:      domain.PayloadTypeProject,
		Title:     "Task status updated",
		Message:   fmt.Sprintf("%s moved %q from %s to %s", ev.ChangedByName, ev.TaskTitle, ev.OldStatus, ev.NewStatus),
		GroupID:   domain.ProjectGroup(ev.ProjectID),
		ActionURL: taskURL(ev.ProjectID, ev.TaskID),
		ProjectID: ev.ProjectID,
		TaskID:    ev.TaskID,
		OldStatus: ev.OldStatus,
		NewStatus: ev.NewStatus,
		Timestamp: ev.ChangedAt,
	})

	if !important || ev.AssigneeEmail == "" {
		return nil
	}

	subject := fmt.Sprintf("Task update: %s", ev.TaskTitle)
	body := fmt.Sprintf("%s moved %q from %s to %s in project %s.",
		ev.ChangedByName, ev.TaskTitle, ev.OldStatus, ev.NewStatus, ev.ProjectName)
	if err := c.email.Send(ctx, ev.AssigneeEmail, subject, body); err != nil {
		return fmt.Errorf("email assignee: %w", err)
	}
	return nil
}
