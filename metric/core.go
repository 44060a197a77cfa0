package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the agent-level metrics shared by all entities
type Metrics struct {
	// Publisher metrics
	EventsBroadcast  *prometheus.CounterVec
	EventsFailed     *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	ResponsesSent    *prometheus.CounterVec

	// Subscriber metrics
	MessagesReceived  *prometheus.CounterVec
	MessagesFiltered  *prometheus.CounterVec
	MessagesProcessed *prometheus.CounterVec
	QueriesSent       *prometheus.CounterVec

	// Lifecycle metrics
	ZoneConnected      *prometheus.GaugeVec
	SchedulerTicks     *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec

	// NATS metrics
	NATSConnected      *prometheus.GaugeVec
	NATSReconnects     *prometheus.CounterVec
	NATSCircuitBreaker *prometheus.GaugeVec
}

// NewMetrics creates the agent metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsBroadcast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "publisher",
				Name:      "events_total",
				Help:      "Events retrieved from a publisher source and broadcast",
			},
			[]string{"publisher"},
		),
		EventsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "publisher",
				Name:      "event_failures_total",
				Help:      "Events that could not be retrieved from a publisher source",
			},
			[]string{"publisher"},
		),
		DeliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "publisher",
				Name:      "delivery_failures_total",
				Help:      "Per-zone event deliveries that failed",
			},
			[]string{"publisher", "zone"},
		),
		ResponsesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "publisher",
				Name:      "responses_total",
				Help:      "Query responses written, by outcome",
			},
			[]string{"publisher", "status"},
		),
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "subscriber",
				Name:      "received_total",
				Help:      "Inbound records delivered by a zone",
			},
			[]string{"subscriber", "kind"},
		),
		MessagesFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "subscriber",
				Name:      "filtered_total",
				Help:      "Inbound records rejected by a subscriber filter",
			},
			[]string{"subscriber", "kind"},
		),
		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "subscriber",
				Name:      "processed_total",
				Help:      "Inbound records processed by a consumer, by outcome",
			},
			[]string{"subscriber", "kind", "status"},
		),
		QueriesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "subscriber",
				Name:      "sync_queries_total",
				Help:      "Sync queries issued to zones",
			},
			[]string{"subscriber", "zone"},
		),
		ZoneConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "zoneagent",
				Subsystem: "zone",
				Name:      "connected",
				Help:      "Zone connection status (0=disconnected, 1=connected)",
			},
			[]string{"zone"},
		),
		SchedulerTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "scheduler",
				Name:      "ticks_total",
				Help:      "Scheduled ticks run per entity",
			},
			[]string{"entity"},
		),
		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "zoneagent",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Duration of broadcasts, syncs and record handling",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Errors by entity and failure kind",
			},
			[]string{"entity", "kind"},
		),
		NATSConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "zoneagent",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status per zone (0=disconnected, 1=connected)",
			},
			[]string{"zone"},
		),
		NATSReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zoneagent",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "NATS reconnections per zone",
			},
			[]string{"zone"},
		),
		NATSCircuitBreaker: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "zoneagent",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status per zone (0=closed, 1=open, 2=half-open)",
			},
			[]string{"zone"},
		),
	}
}

func (c *Metrics) mustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.EventsBroadcast,
		c.EventsFailed,
		c.DeliveryFailures,
		c.ResponsesSent,
		c.MessagesReceived,
		c.MessagesFiltered,
		c.MessagesProcessed,
		c.QueriesSent,
		c.ZoneConnected,
		c.SchedulerTicks,
		c.ProcessingDuration,
		c.ErrorsTotal,
		c.NATSConnected,
		c.NATSReconnects,
		c.NATSCircuitBreaker,
	)
}

// RecordBroadcast adds the outcome of one broadcast
func (c *Metrics) RecordBroadcast(publisher string, sent, failed int) {
	c.EventsBroadcast.WithLabelValues(publisher).Add(float64(sent))
	c.EventsFailed.WithLabelValues(publisher).Add(float64(failed))
}

// RecordDeliveryFailure increments the per-zone delivery failure counter
func (c *Metrics) RecordDeliveryFailure(publisher, zone string) {
	c.DeliveryFailures.WithLabelValues(publisher, zone).Inc()
}

// RecordResponse increments the query response counter
func (c *Metrics) RecordResponse(publisher, status string) {
	c.ResponsesSent.WithLabelValues(publisher, status).Inc()
}

// RecordReceived increments the inbound record counter
func (c *Metrics) RecordReceived(subscriber, kind string) {
	c.MessagesReceived.WithLabelValues(subscriber, kind).Inc()
}

// RecordFiltered increments the filtered record counter
func (c *Metrics) RecordFiltered(subscriber, kind string) {
	c.MessagesFiltered.WithLabelValues(subscriber, kind).Inc()
}

// RecordProcessed increments the processed record counter
func (c *Metrics) RecordProcessed(subscriber, kind, status string) {
	c.MessagesProcessed.WithLabelValues(subscriber, kind, status).Inc()
}

// RecordQuery increments the sync query counter
func (c *Metrics) RecordQuery(subscriber, zone string) {
	c.QueriesSent.WithLabelValues(subscriber, zone).Inc()
}

// RecordZoneStatus updates the zone connection gauge
func (c *Metrics) RecordZoneStatus(zone string, connected bool) {
	c.ZoneConnected.WithLabelValues(zone).Set(boolToFloat(connected))
}

// RecordTick increments the scheduler tick counter
func (c *Metrics) RecordTick(entity string) {
	c.SchedulerTicks.WithLabelValues(entity).Inc()
}

// RecordProcessingDuration records how long an operation took
func (c *Metrics) RecordProcessingDuration(entity, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(entity, operation).Observe(duration.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(entity, kind string) {
	c.ErrorsTotal.WithLabelValues(entity, kind).Inc()
}

// RecordNATSStatus updates the NATS connection gauge of a zone
func (c *Metrics) RecordNATSStatus(zone string, connected bool) {
	c.NATSConnected.WithLabelValues(zone).Set(boolToFloat(connected))
}

// RecordNATSReconnect increments the reconnection counter of a zone
func (c *Metrics) RecordNATSReconnect(zone string) {
	c.NATSReconnects.WithLabelValues(zone).Inc()
}

// RecordCircuitBreakerState updates the circuit breaker gauge of a zone
func (c *Metrics) RecordCircuitBreakerState(zone string, state int) {
	c.NATSCircuitBreaker.WithLabelValues(zone).Set(float64(state))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
