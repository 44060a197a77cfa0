// Package publisher runs publisher entities: scheduled event broadcast to
// every zone and answers to queries from zones.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/c360/zoneagent/entity"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/metric"
	"github.com/c360/zoneagent/transport"
	"github.com/c360/zoneagent/types"
)

// Publisher publishes one object type
type Publisher struct {
	entity.Holder

	id         string
	objectType string
	source     Source
	options    transport.PublishOptions
	limiter    *rate.Limiter

	finalizeOnce sync.Once

	broadcasts atomic.Int64
	events     atomic.Int64
	failures   atomic.Int64
	responses  atomic.Int64
}

// Option configures a Publisher
type Option func(*Publisher)

// WithServeQueries controls whether the publisher answers queries
func WithServeQueries(serve bool) Option {
	return func(p *Publisher) {
		p.options.ServeQueries = serve
	}
}

// WithRateLimit caps outbound events per second. Zero or less means no cap.
func WithRateLimit(eventsPerSecond float64) Option {
	return func(p *Publisher) {
		if eventsPerSecond > 0 {
			burst := int(eventsPerSecond)
			if burst < 1 {
				burst = 1
			}
			p.limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
		}
	}
}

// New creates a publisher of objectType backed by source
func New(id, objectType string, source Source, opts ...Option) (*Publisher, error) {
	if id == "" || objectType == "" {
		return nil, errors.Configuration("Publisher", "New", "publisher id and object type are required")
	}
	if source == nil {
		return nil, errors.Configuration("Publisher", "New", "publisher %s has no source", id)
	}

	p := &Publisher{
		id:         id,
		objectType: objectType,
		source:     source,
		options:    transport.PublishOptions{ServeQueries: true},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ID returns the publisher identifier
func (p *Publisher) ID() string { return p.id }

// ObjectType returns the published object type
func (p *Publisher) ObjectType() string { return p.objectType }

// PublishOptions returns the options used when registering with a zone
func (p *Publisher) PublishOptions() transport.PublishOptions { return p.options }

// Source returns the data source
func (p *Publisher) Source() Source { return p.source }

func (p *Publisher) logger() *slog.Logger {
	return p.Context().Log().With("publisher", p.id, "object_type", p.objectType)
}

// EventsEnabled reports whether a non-zero event frequency is configured
func (p *Publisher) EventsEnabled() bool {
	c := p.Context()
	return c != nil && c.Config != nil && c.Config.EventFrequency(p.id) > 0
}

// Tick is the scheduled entry point: it broadcasts when event sending is
// enabled and does nothing otherwise.
func (p *Publisher) Tick(ctx context.Context) {
	if !p.EventsEnabled() {
		p.logger().Debug("Event sending disabled, nothing to do")
		return
	}
	stats := p.Broadcast(ctx)
	p.logger().Info("Broadcast finished",
		"events", stats.Events,
		"delivered", stats.Delivered,
		"delivery_failures", stats.DeliveryFailures,
		"processing_failures", stats.ProcessingFailures,
		"duration", stats.Duration)
}

// BroadcastStats summarizes one broadcast
type BroadcastStats struct {
	Events             int
	Delivered          int
	DeliveryFailures   int
	ProcessingFailures int
	Duration           time.Duration
	// Err is set when the broadcast could not start or stopped early on an
	// unrecoverable error.
	Err error
}

func payload(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}

func (p *Publisher) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("publisher", p.id),
		attribute.String("object_type", p.objectType))
	return p.Context().Trace().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Broadcast resolves the outbound mapping once, drains the source's events
// and reports every event to every zone in zone order.
func (p *Publisher) Broadcast(ctx context.Context) (stats BroadcastStats) {
	start := time.Now()
	logger := p.logger()

	if err := p.Populated(); err != nil {
		logger.Error("Cannot broadcast", "error", err)
		stats.Err = err
		return stats
	}
	ectx := p.Context()
	metrics := ectx.Metrics()

	ctx, span := p.startSpan(ctx, "publisher.broadcast")
	defer func() {
		stats.Duration = time.Since(start)
		p.broadcasts.Add(1)
		p.events.Add(int64(stats.Events))
		p.failures.Add(int64(stats.DeliveryFailures + stats.ProcessingFailures))

		span.SetAttributes(
			attribute.Int("events", stats.Events),
			attribute.Int("delivery_failures", stats.DeliveryFailures),
			attribute.Int("processing_failures", stats.ProcessingFailures))
		if stats.Err != nil {
			span.RecordError(stats.Err)
			span.SetStatus(codes.Error, stats.Err.Error())
		}
		span.End()

		if metrics != nil {
			metrics.RecordBroadcast(p.id, stats.Events, stats.ProcessingFailures)
			metrics.RecordProcessingDuration(p.id, "broadcast", stats.Duration)
		}
	}()

	mc := mapping.Select(logger, ectx.Mappings, p.objectType, mapping.Outbound, nil)

	it, err := p.source.Events(ctx, mc)
	if err != nil {
		stats.Err = errors.WrapProcessing(err, "Publisher", "Broadcast", "open event source")
		logger.Error("Failed to retrieve events", "error", stats.Err)
		p.recordError(metrics, stats.Err)
		return stats
	}
	if it == nil {
		logger.Info("Event source returned no iterator, nothing to broadcast")
		return stats
	}
	defer func() {
		if err := it.Close(); err != nil {
			logger.Warn("Failed to close event iterator", "error", err)
		}
	}()

	for it.HasNext() {
		if ctx.Err() != nil {
			stats.Err = errors.Wrap(ctx.Err(), "Publisher", "Broadcast", "broadcast cancelled")
			return stats
		}

		ev, err := it.Next(ctx)
		if err != nil {
			perr := errors.WrapProcessing(err, "Publisher", "Broadcast", "retrieve next event")
			stats.ProcessingFailures++
			p.recordError(metrics, perr)
			if errors.IsFatal(perr) {
				logger.Error("Unrecoverable event source failure, ending broadcast", "error", perr)
				stats.Err = perr
				return stats
			}
			logger.Error("Failed to retrieve event, skipping", "error", perr)
			continue
		}
		if ev == nil {
			logger.Warn("Event source returned no event although more were announced, ending broadcast")
			return stats
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				stats.Err = errors.Wrap(err, "Publisher", "Broadcast", "rate limit wait")
				return stats
			}
		}

		stats.Events++
		p.deliver(ctx, logger, ectx, *ev, &stats)
	}
	return stats
}

// deliver sends one event to every zone in list order
func (p *Publisher) deliver(ctx context.Context, logger *slog.Logger, ectx *entity.Context, ev message.Event, stats *BroadcastStats) {
	for _, zone := range ectx.Zones {
		if err := ectx.Transport.ReportEvent(ctx, zone, ev); err != nil {
			derr := errors.WrapDelivery(err, "Publisher", "Broadcast", "report event to zone "+zone.ID)
			stats.DeliveryFailures++
			logger.Error("Failed to deliver event",
				"zone", zone.ID,
				"action", ev.Action,
				"payload", payload(ev.Object),
				"error", derr)
			if m := ectx.Metrics(); m != nil {
				m.RecordDeliveryFailure(p.id, zone.ID)
				m.RecordError(p.id, "delivery")
			}
			continue
		}
		stats.Delivered++
	}
}

// ResponseStats summarizes one query response
type ResponseStats struct {
	Written  int
	Failures int
	Err      error
}

// OnRequest implements transport.RequestHandler
func (p *Publisher) OnRequest(ctx context.Context, query *message.Query, zone types.Zone, info types.MessageInfo, w transport.ResponseWriter) {
	stats := p.Respond(ctx, query, zone, info, w)
	p.logger().Debug("Query answered",
		"zone", zone.ID,
		"query_id", query.ID,
		"written", stats.Written,
		"failures", stats.Failures)
}

// Respond streams the source's answer to query into w. Failing records are
// logged and skipped; the iterator is always closed.
func (p *Publisher) Respond(ctx context.Context, query *message.Query, zone types.Zone, info types.MessageInfo, w transport.ResponseWriter) (stats ResponseStats) {
	start := time.Now()
	logger := p.logger().With("zone", zone.ID)

	if err := p.Populated(); err != nil {
		logger.Error("Cannot answer query", "error", err)
		stats.Err = err
		return stats
	}
	ectx := p.Context()
	metrics := ectx.Metrics()

	ctx, span := p.startSpan(ctx, "publisher.respond",
		attribute.String("zone", zone.ID),
		attribute.String("query_id", query.ID))
	defer func() {
		p.responses.Add(int64(stats.Written))
		span.SetAttributes(attribute.Int("written", stats.Written), attribute.Int("failures", stats.Failures))
		if stats.Err != nil {
			span.RecordError(stats.Err)
			span.SetStatus(codes.Error, stats.Err.Error())
		}
		span.End()
		if metrics != nil {
			metrics.RecordProcessingDuration(p.id, "respond", time.Since(start))
		}
	}()

	mc := mapping.Select(logger, ectx.Mappings, p.objectType, mapping.Outbound, &info)

	it, err := p.source.Respond(ctx, query, zone, mapping.Info{Message: info, Context: mc})
	if err != nil {
		stats.Err = errors.WrapProcessing(err, "Publisher", "Respond", "open response source")
		logger.Error("Failed to retrieve response", "error", stats.Err)
		p.recordError(metrics, stats.Err)
		return stats
	}
	if it == nil {
		logger.Info("Response source returned no iterator, sending empty response")
		return stats
	}
	defer func() {
		if err := it.Close(); err != nil {
			logger.Warn("Failed to close response iterator", "error", err)
		}
	}()

	for it.HasNext() {
		obj, err := it.Next(ctx)
		if err != nil {
			perr := errors.WrapProcessing(err, "Publisher", "Respond", "retrieve next response")
			stats.Failures++
			p.recordResponse(metrics, "failed")
			if errors.IsFatal(perr) {
				logger.Error("Unrecoverable response source failure, ending response", "error", perr)
				stats.Err = perr
				return stats
			}
			logger.Error("Failed to retrieve response record, skipping", "error", perr)
			continue
		}
		if obj == nil {
			logger.Warn("Response source returned no object although more were announced, ending response")
			return stats
		}

		if err := w.Write(ctx, *obj); err != nil {
			// the error may also cover records accepted by earlier writes
			lost := max(transport.LostRecords(err), 1)
			stats.Failures += lost
			stats.Written -= lost - 1
			for range lost {
				p.recordResponse(metrics, "failed")
			}
			logger.Error("Failed to write response record",
				"payload", payload(obj),
				"lost", lost,
				"error", errors.WrapDelivery(err, "Publisher", "Respond", "write response"))
			continue
		}
		stats.Written++
		p.recordResponse(metrics, "sent")
	}
	return stats
}

func (p *Publisher) recordResponse(m *metric.Metrics, status string) {
	if m != nil {
		m.RecordResponse(p.id, status)
	}
}

func (p *Publisher) recordError(m *metric.Metrics, err error) {
	if m == nil {
		return
	}
	kind := "unknown"
	if k := errors.Kind(err); k != nil {
		kind = k.Error()
	}
	m.RecordError(p.id, kind)
}

// Finalize releases the source. Only the first call has an effect.
func (p *Publisher) Finalize() {
	p.finalizeOnce.Do(func() {
		p.logger().Debug("Finalizing publisher")
		p.source.Finalize()
	})
}

// Stats reports cumulative counters
func (p *Publisher) Stats() Stats {
	return Stats{
		Broadcasts: p.broadcasts.Load(),
		Events:     p.events.Load(),
		Failures:   p.failures.Load(),
		Responses:  p.responses.Load(),
	}
}

// Stats are cumulative publisher counters
type Stats struct {
	Broadcasts int64
	Events     int64
	Failures   int64
	Responses  int64
}
