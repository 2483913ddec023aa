package metrics

import "time"

// Sink defines the interface for recording metrics across the pipeline.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Broker metrics
	EventPublished(kind string)
	PublishError()
	ConsumeAttemptCompleted(queue string, attempt int, outcome string, duration time.Duration)
	RetryScheduled(queue string)
	DeadLettered(queue string)
	MessageInFlightIncr()
	MessageInFlightDecr()

	// Dispatch metrics
	DeliveryCompleted(target string, outcome string)

	// Hub metrics
	ConnectionOpened()
	ConnectionClosed()
	GroupMembershipsUpdate(count int)
	PushDropped()
}
