// Package consumer holds the broker consumers that turn domain events into
// notification intents. Each consumer type gets its own queue; the broker
// retries and dead-letters around them, so consumer code is written for the
// single-attempt case.
package consumer

import (
	"context"

	"github.com/taskflow/notify/internal/broker"
	"github.com/taskflow/notify/internal/domain"
)

// Queue names, one durable queue per consumer type.
const (
	QueueTaskCreated       = "task-created"
	QueueTaskAssigned      = "task-assigned"
	QueueTaskStatusChanged = "task-status-changed"
)

// Notifier is the dispatch surface consumers push intents into. Delivery
// from here is best-effort; Dispatch never reports failure back.
type Notifier interface {
	Dispatch(ctx context.Context, intent domain.Intent)
}

// EmailSender delivers email-style notifications. The production wiring is
// a simulator that only logs.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Register binds every consumer to its queue. Queues are provisioned by
// the broker from these registrations.
func Register(s broker.Subscriber, created *Created, assigned *Assigned, status *StatusChanged) {
	s.Subscribe(QueueTaskCreated, domain.KindTaskCreated, created.Consume)
	s.Subscribe(QueueTaskAssigned, domain.KindTaskAssigned, assigned.Consume)
	s.Subscribe(QueueTaskStatusChanged, domain.KindTaskStatusChanged, status.Consume)
}
