package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/zoneagent/metric"
)

type queueMetrics struct {
	pushes      prometheus.Counter
	pulls       prometheus.Counter
	blocks      prometheus.Counter
	discarded   prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newQueueMetrics(registry *metric.MetricsRegistry, prefix string) (*queueMetrics, error) {
	labels := prometheus.Labels{"subscriber": prefix}
	m := &queueMetrics{
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zoneagent",
			Subsystem:   "queue",
			Name:        "pushes_total",
			ConstLabels: labels,
			Help:        "Total number of messages pushed onto the queue",
		}),
		pulls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zoneagent",
			Subsystem:   "queue",
			Name:        "pulls_total",
			ConstLabels: labels,
			Help:        "Total number of messages pulled from the queue",
		}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zoneagent",
			Subsystem:   "queue",
			Name:        "blocked_pushes_total",
			ConstLabels: labels,
			Help:        "Total number of pushes that waited for free capacity",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zoneagent",
			Subsystem:   "queue",
			Name:        "discarded_total",
			ConstLabels: labels,
			Help:        "Total number of messages discarded when the queue closed",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zoneagent",
			Subsystem:   "queue",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of queued messages",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zoneagent",
			Subsystem:   "queue",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Queue utilization (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "queue_pushes", m.pushes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_pulls", m.pulls); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_blocked_pushes", m.blocks); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_discarded", m.discarded); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *queueMetrics) recordPush(size, capacity int) {
	m.pushes.Inc()
	m.updateSize(size, capacity)
}

func (m *queueMetrics) recordPull(size, capacity int) {
	m.pulls.Inc()
	m.updateSize(size, capacity)
}

func (m *queueMetrics) recordBlock() {
	m.blocks.Inc()
}

func (m *queueMetrics) recordDiscard(n int64, capacity int) {
	m.discarded.Add(float64(n))
	m.updateSize(0, capacity)
}

func (m *queueMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
