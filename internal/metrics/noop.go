package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) EventPublished(kind string)                                                         {}
func (n *NoopSink) PublishError()                                                                      {}
func (n *NoopSink) ConsumeAttemptCompleted(queue string, attempt int, outcome string, d time.Duration) {}
func (n *NoopSink) RetryScheduled(queue string)                                                        {}
func (n *NoopSink) DeadLettered(queue string)                                                          {}
func (n *NoopSink) MessageInFlightIncr()                                                               {}
func (n *NoopSink) MessageInFlightDecr()                                                               {}
func (n *NoopSink) DeliveryCompleted(target string, outcome string)                                    {}
func (n *NoopSink) ConnectionOpened()                                                                  {}
func (n *NoopSink) ConnectionClosed()                                                                  {}
func (n *NoopSink) GroupMembershipsUpdate(count int)                                                   {}
func (n *NoopSink) PushDropped()                                                                       {}
