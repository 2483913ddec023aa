package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Broker metrics
	eventsPublishedTotal  *prometheus.CounterVec
	publishErrorsTotal    prometheus.Counter
	consumeAttemptsTotal  *prometheus.CounterVec
	consumeDuration       prometheus.Histogram
	retriesScheduledTotal *prometheus.CounterVec
	deadLettersTotal      *prometheus.CounterVec
	messagesInFlight      prometheus.Gauge

	// Dispatch metrics
	deliveriesTotal *prometheus.CounterVec

	// Hub metrics
	connectionsOpen  prometheus.Gauge
	groupMemberships prometheus.Gauge
	pushesDropped    prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
// Metrics that fail to register still collect locally as no-op collectors.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initBrokerMetrics(reg)
	s.initDispatchMetrics(reg)
	s.initHubMetrics(reg)
	return s
}

func (s *PrometheusSink) initBrokerMetrics(reg prometheus.Registerer) {
	s.eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_broker_events_published_total",
		Help: "Total number of domain events published, by kind.",
	}, []string{"kind"})

	s.publishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_broker_publish_errors_total",
		Help: "Total number of failed publish calls.",
	})

	s.consumeAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_broker_consume_attempts_total",
		Help: "Total number of consumer attempts, by queue, attempt and outcome.",
	}, []string{"queue", "attempt", "outcome"})

	s.consumeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notify_broker_consume_duration_seconds",
		Help:    "Consumer handler latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	s.retriesScheduledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_broker_retries_scheduled_total",
		Help: "Total number of retries scheduled (excludes first attempt).",
	}, []string{"queue"})

	s.deadLettersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_broker_dead_letters_total",
		Help: "Total number of messages that exhausted all retry attempts.",
	}, []string{"queue"})

	s.messagesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notify_broker_messages_in_flight",
		Help: "Number of messages currently being processed.",
	})

	s.register(reg, s.eventsPublishedTotal, "notify_broker_events_published_total")
	s.register(reg, s.publishErrorsTotal, "notify_broker_publish_errors_total")
	s.register(reg, s.consumeAttemptsTotal, "notify_broker_consume_attempts_total")
	s.register(reg, s.consumeDuration, "notify_broker_consume_duration_seconds")
	s.register(reg, s.retriesScheduledTotal, "notify_broker_retries_scheduled_total")
	s.register(reg, s.deadLettersTotal, "notify_broker_dead_letters_total")
	s.register(reg, s.messagesInFlight, "notify_broker_messages_in_flight")
}

func (s *PrometheusSink) initDispatchMetrics(reg prometheus.Registerer) {
	s.deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_dispatch_deliveries_total",
		Help: "Total number of delivery attempts, by target kind and outcome.",
	}, []string{"target", "outcome"})

	s.register(reg, s.deliveriesTotal, "notify_dispatch_deliveries_total")
}

func (s *PrometheusSink) initHubMetrics(reg prometheus.Registerer) {
	s.connectionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notify_hub_connections_open",
		Help: "Number of live hub connections.",
	})

	s.groupMemberships = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notify_hub_group_memberships",
		Help: "Current total project group memberships across all connections.",
	})

	s.pushesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_hub_pushes_dropped_total",
		Help: "Total number of pushes dropped on full or closed send buffers.",
	})

	s.register(reg, s.connectionsOpen, "notify_hub_connections_open")
	s.register(reg, s.groupMemberships, "notify_hub_group_memberships")
	s.register(reg, s.pushesDropped, "notify_hub_pushes_dropped_total")
}

// register registers a collector and logs a warning on failure.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) EventPublished(kind string) {
	s.eventsPublishedTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) PublishError() {
	s.publishErrorsTotal.Inc()
}

func (s *PrometheusSink) ConsumeAttemptCompleted(queue string, attempt int, outcome string, d time.Duration) {
	s.consumeAttemptsTotal.WithLabelValues(queue, strconv.Itoa(attempt), outcome).Inc()
	s.consumeDuration.Observe(d.Seconds())
}

func (s *PrometheusSink) RetryScheduled(queue string) {
	s.retriesScheduledTotal.WithLabelValues(queue).Inc()
}

func (s *PrometheusSink) DeadLettered(queue string) {
	s.deadLettersTotal.WithLabelValues(queue).Inc()
}

func (s *PrometheusSink) MessageInFlightIncr() {
	s.messagesInFlight.Inc()
}

func (s *PrometheusSink) MessageInFlightDecr() {
	s.messagesInFlight.Dec()
}

func (s *PrometheusSink) DeliveryCompleted(target string, outcome string) {
	s.deliveriesTotal.WithLabelValues(target, outcome).Inc()
}

func (s *PrometheusSink) ConnectionOpened() {
	s.connectionsOpen.Inc()
}

func (s *PrometheusSink) ConnectionClosed() {
	s.connectionsOpen.Dec()
}

func (s *PrometheusSink) GroupMembershipsUpdate(count int) {
	s.groupMemberships.Set(float64(count))
}

func (s *PrometheusSink) PushDropped() {
	s.pushesDropped.Inc()
}
