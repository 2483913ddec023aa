package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

// Created consumes TaskCreated events. Every creation is broadcast to the
// project group; when the task already has an assignee, the assignee also
// gets a direct push and an email-style notification.
type Created struct {
	notifier Notifier
	email    EmailSender
}

// NewCreated creates the creation consumer.
func NewCreated(n Notifier, e EmailSender) *Created {
	return &Created{notifier: n, email: e}
}

// Consume handles one TaskCreated event.
func (c *Created) Consume(ctx context.Context, env domain.Envelope) error {
	var ev domain.TaskCreated
	if err := env.Decode(&ev); err != nil {
		return err
	}
	log.Printf("consumer: task created task=%s project=%s by=%s", ev.TaskID, ev.ProjectID, ev.CreatedBy)

	actionURL := taskURL(ev.ProjectID, ev.TaskID)

	c.notifier.Dispatch(ctx, domain.Intent{
		Type:      domain.PayloadTypeProject,
		Title:     "New task in " + ev.ProjectName,
		Message:   fmt.Sprintf("%s created %q", ev.CreatedByName, ev.Title),
		GroupID:   domain.ProjectGroup(ev.ProjectID),
		ActionURL: actionURL,
		ProjectID: ev.ProjectID,
		TaskID:    ev.TaskID,
		Timestamp: ev.CreatedAt,
	})

	if ev.AssigneeID == nil {
		return nil
	}

	c.notifier.Dispatch(ctx, domain.Intent{
		Type:      domain.PayloadTypeTask,
		Title:     "You were assigned a new task",
		Message:   fmt.Sprintf("%s assigned you %q in %s", ev.CreatedByName, ev.Title, ev.ProjectName),
		UserIDs:   []uuid.UUID{*ev.AssigneeID},
		ActionURL: actionURL,
		ProjectID: ev.ProjectID,
		TaskID:    ev.TaskID,
		Timestamp: ev.CreatedAt,
	})

	if ev.AssigneeEmail != "" {
		subject := fmt.Sprintf("New task: %s", ev.Title)
		body := fmt.Sprintf("%s assigned you %q in project %s.", ev.CreatedByName, ev.Title, ev.ProjectName)
		if err := c.email.Send(ctx, ev.AssigneeEmail, subject, body); err != nil {
			return fmt.Errorf("email assignee: %w", err)
		}
	}
	return nil
}

func taskURL(projectID, taskID uuid.UUID) string {
	return fmt.Sprintf("/projects/%s/tasks/%s", projectID, taskID)
}
