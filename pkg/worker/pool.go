// Package worker provides a fixed-size consumer pool draining a blocking source
package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/metric"
)

// Source is a blocking supplier of work. Pull waits until an item is
// available, the context is cancelled or the source is closed.
type Source[T any] interface {
	Pull(ctx context.Context) (T, error)
}

// Processor handles one item. workerID is 1-based and stable for the
// lifetime of the worker.
type Processor[T any] func(ctx context.Context, item T, workerID int) error

// Pool runs a fixed number of workers. Each worker loops: pull one item from
// the shared source, hand it to the processor, record the outcome. A failing
// or panicking processor never stops its worker.
type Pool[T any] struct {
	name      string
	workers   int
	source    Source[T]
	processor Processor[T]
	logger    *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	active    int64
	processed int64
	failed    int64
	panics    int64

	metrics         *Metrics
	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Metrics holds Prometheus metrics for pool monitoring
type Metrics struct {
	active         prometheus.Gauge
	processed      prometheus.Counter
	failed         prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option represents a configuration option for the pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers pool metrics labelled with prefix
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// WithLogger sets the logger used for processing failures
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(p *Pool[T]) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithName sets the name used in log lines
func WithName[T any](name string) Option[T] {
	return func(p *Pool[T]) {
		p.name = name
	}
}

// NewPool creates a pool of workers draining source. Fewer than one worker is
// raised to one.
func NewPool[T any](workers int, source Source[T], processor Processor[T], opts ...Option[T]) (*Pool[T], error) {
	if processor == nil {
		return nil, ErrNilProcessor
	}
	if source == nil {
		return nil, ErrNilSource
	}
	if workers <= 0 {
		workers = 1
	}

	pool := &Pool[T]{
		name:      "pool",
		workers:   workers,
		source:    source,
		processor: processor,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(pool)
	}

	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		if err := pool.initializeMetrics(); err != nil {
			return nil, errors.WrapTransient(err, "Pool", "NewPool", "metrics registration")
		}
	}

	return pool, nil
}

func (p *Pool[T]) initializeMetrics() error {
	labels := prometheus.Labels{"pool": p.metricsPrefix}

	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zoneagent",
			Subsystem:   "consumer",
			Name:        "active",
			ConstLabels: labels,
			Help:        "Workers currently processing an item",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zoneagent",
			Subsystem:   "consumer",
			Name:        "processed_total",
			ConstLabels: labels,
			Help:        "Items handed to the processor",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zoneagent",
			Subsystem:   "consumer",
			Name:        "failed_total",
			ConstLabels: labels,
			Help:        "Items whose processor returned an error or panicked",
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "zoneagent",
			Subsystem:   "consumer",
			Name:        "processing_duration_seconds",
			ConstLabels: labels,
			Help:        "Time spent processing items",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"status"}),
	}

	if err := p.metricsRegistry.RegisterGauge(p.metricsPrefix, "consumer_active", m.active); err != nil {
		return err
	}
	if err := p.metricsRegistry.RegisterCounter(p.metricsPrefix, "consumer_processed", m.processed); err != nil {
		return err
	}
	if err := p.metricsRegistry.RegisterCounter(p.metricsPrefix, "consumer_failed", m.failed); err != nil {
		return err
	}
	if err := p.metricsRegistry.RegisterHistogramVec(p.metricsPrefix, "consumer_duration", m.processingTime); err != nil {
		return err
	}

	p.metrics = m
	return nil
}

// Start launches the workers. Cancelling ctx stops them the same way Stop
// does.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx, i)
	}

	p.started = true
	return nil
}

// Stop cancels the workers and waits for them to return. A worker blocked in
// Pull returns immediately; one inside the processor finishes its item first.
// Returns ErrStopTimeout when the workers outlive timeout.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.stopped = true
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Active:    atomic.LoadInt64(&p.active),
		Processed: atomic.LoadInt64(&p.processed),
		Failed:    atomic.LoadInt64(&p.failed),
		Panics:    atomic.LoadInt64(&p.panics),
	}
}

// PoolStats represents pool statistics
type PoolStats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

func (p *Pool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		item, err := p.source.Pull(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, errors.ErrShuttingDown) {
				p.logger.Debug("Consumer stopping", "pool", p.name, "worker", id)
				return
			}
			p.logger.Error("Consumer pull failed, stopping worker", "pool", p.name, "worker", id, "error", err)
			return
		}

		p.process(ctx, item, id)
	}
}

func (p *Pool[T]) process(ctx context.Context, item T, id int) {
	atomic.AddInt64(&p.active, 1)
	if p.metrics != nil {
		p.metrics.active.Inc()
	}

	start := time.Now()
	err := p.invoke(ctx, item, id)
	duration := time.Since(start)

	atomic.AddInt64(&p.active, -1)
	atomic.AddInt64(&p.processed, 1)
	status := "success"
	if err != nil {
		atomic.AddInt64(&p.failed, 1)
		status = "error"
		p.logger.Error("Consumer failed to process message",
			"pool", p.name,
			"worker", id,
			"message", item,
			"error", err)
	}

	if p.metrics != nil {
		p.metrics.active.Dec()
		p.metrics.processed.Inc()
		if err != nil {
			p.metrics.failed.Inc()
		}
		p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
	}
}

func (p *Pool[T]) invoke(ctx context.Context, item T, id int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.panics, 1)
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return p.processor(ctx, item, id)
}
