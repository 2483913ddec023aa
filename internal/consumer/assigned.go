package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

// Assigned consumes TaskAssigned events. The new assignee gets a direct
// push and the project group is told, unconditionally.
type Assigned struct {
	notifier Notifier
}

// NewAssigned creates the assignment consumer.
func NewAssigned(n Notifier) *Assigned {
	return &Assigned{notifier: n}
}

// Consume handles one TaskAssigned event.
func (c *Assigned) Consume(ctx context.Context, env domain.Envelope) error {
	var ev domain.TaskAssigned
	if err := env.Decode(&ev); err != nil {
		return err
	}
	log.Printf("consumer: task assigned task=%s assignee=%s by=%s", ev.TaskID, ev.AssigneeID, ev.AssignedBy)

	actionURL := taskURL(ev.ProjectID, ev.TaskID)

	c.notifier.Dispatch(ctx, domain.Intent{
		Type:      domain.PayloadTypeTask,
		Title:     "Task assigned to you",
		Message:   fmt.Sprintf("%s assigned you %q in %s", ev.AssignedByName, ev.TaskTitle, ev.ProjectName),
		UserIDs:   []uuid.UUID{ev.AssigneeID},
		ActionURL: actionURL,
		ProjectID: ev.ProjectID,
		TaskID:    ev.TaskID,
		Timestamp: ev.AssignedAt,
	})

	c.notifier.Dispatch(ctx, domain.Intent{
		Type:      domain.PayloadTypeProject,
		Title:     "Task reassigned in " + ev.ProjectName,
		Message:   fmt.Sprintf("%s assigned %q to %s", ev.AssignedByName, ev.TaskTitle, ev.AssigneeName),
		GroupID:   domain.ProjectGroup(ev.ProjectID),
		ActionURL: actionURL,
		ProjectID: ev.ProjectID,
		TaskID:    ev.TaskID,
		Timestamp: ev.AssignedAt,
	})

	return nil
}
