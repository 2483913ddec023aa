// Package dispatch turns notification intents into rendered payloads and
// pushes them to live connections. Delivery is strictly best-effort: each
// target is attempted independently, failures are logged and counted, and
// nothing propagates upstream. The broker guarantees the event was
// processed; dispatch does not guarantee the notification was seen.
package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

// Target constants for delivery metrics.
const (
	TargetGroup = "group"
	TargetUser  = "user"
)

// Hub is the push surface dispatch delivers to. Dispatch treats the hub's
// registry as a read-only broadcast target; only the hub itself mutates it.
type Hub interface {
	PushToGroup(ctx context.Context, group string, p domain.Payload) error
	PushToUser(ctx context.Context, userID uuid.UUID, p domain.Payload) error
}

// MetricsSink records delivery outcomes. Non-blocking, fire-and-forget.
type MetricsSink interface {
	DeliveryCompleted(target string, outcome string)
}

// Service renders and delivers notifications.
type Service struct {
	hub     Hub
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

// New creates a dispatch service.
func New(hub Hub) *Service {
	return &Service{
		hub:   hub,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches a metrics sink.
func (s *Service) WithMetrics(sink MetricsSink) *Service {
	s.metrics = sink
	return s
}

// WithClock overrides the payload timestamp fallback source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.clock = now
	return s
}

// Dispatch delivers an intent to its group target and to every connection
// of every user target. A failure on one target never prevents delivery to
// any other.
func (s *Service) Dispatch(ctx context.Context, intent domain.Intent) {
	payload := s.render(intent)

	if intent.GroupID != "" {
		if err := s.hub.PushToGroup(ctx, intent.GroupID, payload); err != nil {
			log.Printf("dispatch: group=%s push failed: %v", intent.GroupID, err)
			s.completed(TargetGroup, "failed")
		} else {
			s.completed(TargetGroup, "success")
		}
	}

	for _, userID := range intent.UserIDs {
		if err := s.hub.PushToUser(ctx, userID, payload); err != nil {
			log.Printf("dispatch: user=%s push failed: %v", userID, err)
			s.completed(TargetUser, "failed")
			continue
		}
		s.completed(TargetUser, "success")
	}
}

func (s *Service) completed(target, outcome string) {
	if s.metrics != nil {
		s.metrics.DeliveryCompleted(target, outcome)
	}
}

func (s *Service) render(intent domain.Intent) domain.Payload {
	ts := intent.Timestamp
	if ts.IsZero() {
		ts = s.clock()
	}
	p := domain.Payload{
		Type:      intent.Type,
		Title:     intent.Title,
		Message:   intent.Message,
		Timestamp: ts.UTC().Format(time.RFC3339),
		ActionURL: intent.ActionURL,
		OldStatus: string(intent.OldStatus),
		NewStatus: string(intent.NewStatus),
	}
	if intent.ProjectID != uuid.Nil {
		p.ProjectID = intent.ProjectID.String()
	}
	if intent.TaskID != uuid.Nil {
		p.TaskID = intent.TaskID.String()
	}
	return p
}
