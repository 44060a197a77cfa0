// Package subscriber runs subscriber entities. Records delivered by zones are
// pushed onto a bounded queue and drained by a fixed pool of consumers that
// call the user Handler.
package subscriber

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/c360/zoneagent/entity"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/pkg/queue"
	"github.com/c360/zoneagent/pkg/worker"
	"github.com/c360/zoneagent/transport"
	"github.com/c360/zoneagent/types"
)

// ConsumerID names worker n (1-based) of subscriber id
func ConsumerID(id string, n int) string {
	return fmt.Sprintf("%sConsumer %d", id, n)
}

// Subscriber consumes one object type
type Subscriber struct {
	entity.Holder

	id         string
	objectType string
	handler    Handler
	actions    []message.Action

	mu      sync.Mutex
	queue   *queue.Queue[*message.Inbound]
	pool    *worker.Pool[*message.Inbound]
	started bool

	finalizeOnce sync.Once

	received atomic.Int64
	filtered atomic.Int64
	dropped  atomic.Int64
	syncs    atomic.Int64
}

// Option configures a Subscriber
type Option func(*Subscriber)

// WithActions limits the event actions the subscriber registers for. No
// actions means all of them.
func WithActions(actions ...message.Action) Option {
	return func(s *Subscriber) {
		s.actions = actions
	}
}

// New creates a subscriber of objectType that hands records to handler
func New(id, objectType string, handler Handler, opts ...Option) (*Subscriber, error) {
	if id == "" || objectType == "" {
		return nil, errors.Configuration("Subscriber", "New", "subscriber id and object type are required")
	}
	if handler == nil {
		return nil, errors.Configuration("Subscriber", "New", "subscriber %s has no handler", id)
	}

	s := &Subscriber{
		id:         id,
		objectType: objectType,
		handler:    handler,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the subscriber identifier
func (s *Subscriber) ID() string { return s.id }

// ObjectType returns the consumed object type
func (s *Subscriber) ObjectType() string { return s.objectType }

// Handler returns the user handler
func (s *Subscriber) Handler() Handler { return s.handler }

func (s *Subscriber) logger() *slog.Logger {
	return s.Context().Log().With("subscriber", s.id, "object_type", s.objectType)
}

// SyncEnabled reports whether a non-zero sync frequency is configured
func (s *Subscriber) SyncEnabled() bool {
	c := s.Context()
	return c != nil && c.Config != nil && c.Config.SyncFrequency(s.id) > 0
}

// Provision registers the subscriber with zone for events and for the
// results of its own queries.
func (s *Subscriber) Provision(ctx context.Context, zone types.Zone) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Populated(); err != nil {
		return err
	}
	t := s.Context().Transport

	if err := t.AssignSubscriber(zone, s, s.objectType, transport.SubscribeOptions{Actions: s.actions}); err != nil {
		return errors.WrapConnection(err, "Subscriber", "Provision", "assign subscriber to zone "+zone.ID)
	}
	if err := t.AssignQueryResults(zone, s, s.objectType, transport.QueryResultsOptions{}); err != nil {
		return errors.WrapConnection(err, "Subscriber", "Provision", "assign query results to zone "+zone.ID)
	}
	return nil
}

// Tick is the scheduled entry point: it syncs every zone when syncing is
// enabled and does nothing otherwise.
func (s *Subscriber) Tick(ctx context.Context) {
	if !s.SyncEnabled() {
		s.logger().Debug("Sync disabled, nothing to do")
		return
	}
	if err := s.SyncAllZones(ctx); err != nil {
		s.logger().Error("Failed to synchronise data", "error", err)
		return
	}
	s.logger().Debug("Sync across all zones complete")
}

// SyncAllZones sends a query for the object type to every zone in list
// order. It stops at the first zone that fails and returns that error.
func (s *Subscriber) SyncAllZones(ctx context.Context) (err error) {
	if err := s.Populated(); err != nil {
		return err
	}
	ectx := s.Context()
	metrics := ectx.Metrics()
	start := time.Now()

	ctx, span := ectx.Trace().Start(ctx, "subscriber.sync", trace.WithAttributes(
		attribute.String("subscriber", s.id),
		attribute.String("object_type", s.objectType)))
	defer func() {
		s.syncs.Add(1)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if metrics != nil {
			metrics.RecordProcessingDuration(s.id, "sync", time.Since(start))
		}
	}()

	builder, _ := s.handler.(SyncQueryBuilder)
	for _, zone := range ectx.Zones {
		q := message.NewQuery(s.objectType)
		if builder != nil {
			builder.BuildSyncQuery(q, zone)
		}
		if err := ectx.Transport.Query(ctx, zone, q); err != nil {
			if metrics != nil {
				metrics.RecordError(s.id, "connection")
			}
			return errors.WrapConnection(err, "Subscriber", "SyncAllZones", "query zone "+zone.ID)
		}
		if metrics != nil {
			metrics.RecordQuery(s.id, zone.ID)
		}
		s.logger().Debug("Sync query sent", "zone", zone.ID, "query_id", q.ID)
	}
	return nil
}

// OnEvent implements transport.EventHandler. Accepted records are pushed onto
// the queue; the call blocks while the queue is full.
func (s *Subscriber) OnEvent(ctx context.Context, zone types.Zone, info types.MessageInfo, action message.Action, objects []message.Object) {
	ectx := s.Context()
	logger := s.logger().With("zone", zone.ID)
	logger.Debug("Event received", "action", action, "records", len(objects))
	if !s.ready(logger, len(objects)) {
		return
	}

	mi := mapping.Info{
		Message: info,
		Context: mapping.Select(logger, ectx.Mappings, s.objectType, mapping.Inbound, &info),
	}
	filter, _ := s.handler.(EventFilter)

	for _, obj := range objects {
		s.countReceived(message.KindEvent)
		ev := message.NewEvent(obj, action)
		if filter != nil && !filter.AcceptEvent(ctx, ev, zone, mi) {
			s.countFiltered(message.KindEvent)
			continue
		}
		if !s.push(ctx, logger, message.NewInboundEvent(obj, action, zone, mi)) {
			return
		}
	}
}

// OnQueryResults implements transport.QueryResultsHandler. A zone error is
// reported and nothing is queued.
func (s *Subscriber) OnQueryResults(ctx context.Context, zone types.Zone, info types.MessageInfo, objects []message.Object, zoneErr *message.ZoneError) {
	ectx := s.Context()
	logger := s.logger().With("zone", zone.ID)

	if zoneErr != nil {
		s.ReportZoneError(zone, zoneErr)
		return
	}
	if !s.ready(logger, len(objects)) {
		return
	}

	mi := mapping.Info{
		Message: info,
		Context: mapping.Select(logger, ectx.Mappings, s.objectType, mapping.Inbound, &info),
	}
	filter, _ := s.handler.(ResultFilter)

	for _, obj := range objects {
		s.countReceived(message.KindQueryResult)
		if filter != nil && !filter.AcceptQueryResult(ctx, obj, zone, mi) {
			s.countFiltered(message.KindQueryResult)
			continue
		}
		if !s.push(ctx, logger, message.NewInboundResult(obj, zone, mi)) {
			return
		}
	}
	logger.Info("Query results received", "records", len(objects))
}

// ReportZoneError logs an error a zone returned instead of query results
func (s *Subscriber) ReportZoneError(zone types.Zone, zoneErr *message.ZoneError) {
	s.logger().Error("Zone returned an error for query",
		"zone", zone.ID,
		"code", zoneErr.Code,
		"category", zoneErr.Category,
		"description", zoneErr.Description)
	if m := s.Context().Metrics(); m != nil {
		m.RecordError(s.id, "zone_error")
	}
}

// OnQueryPending is called when a zone acknowledges a query whose results
// will follow later. Subscribers take no action on it.
func (s *Subscriber) OnQueryPending(zone types.Zone, info types.MessageInfo) {
	s.logger().Debug("Query pending", "zone", zone.ID, "message_id", info.MessageID)
}

// ready reports whether records can be accepted. Records delivered before
// the context is populated are dropped like records arriving before the
// consumers start.
func (s *Subscriber) ready(logger *slog.Logger, records int) bool {
	if err := s.Populated(); err != nil {
		s.dropped.Add(int64(records))
		logger.Warn("Consumers not started, dropping records", "records", records, "error", err)
		return false
	}
	return true
}

// push blocks until msg is queued. It returns false when the queue is gone
// and the remaining records of the delivery should be dropped.
func (s *Subscriber) push(ctx context.Context, logger *slog.Logger, msg *message.Inbound) bool {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()

	if q == nil {
		s.dropped.Add(1)
		logger.Warn("Consumers not started, dropping record", "message", msg)
		return true
	}

	if err := q.Push(ctx, msg); err != nil {
		s.dropped.Add(1)
		if stderrors.Is(err, queue.ErrClosed) {
			logger.Debug("Queue closed, dropping remaining records", "message", msg)
		} else {
			logger.Warn("Failed to queue record", "message", msg, "error", err)
		}
		return false
	}
	return true
}

func (s *Subscriber) countReceived(kind message.Kind) {
	s.received.Add(1)
	if m := s.Context().Metrics(); m != nil {
		m.RecordReceived(s.id, kind.String())
	}
}

func (s *Subscriber) countFiltered(kind message.Kind) {
	s.filtered.Add(1)
	if m := s.Context().Metrics(); m != nil {
		m.RecordFiltered(s.id, kind.String())
	}
}

// StartConsumers creates the queue and the consumer pool and starts every
// consumer. The shared context must be populated.
func (s *Subscriber) StartConsumers(ctx context.Context) error {
	if err := s.Populated(); err != nil {
		return errors.WrapConfiguration(err, "Subscriber", "StartConsumers", "context check for "+s.id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Subscriber", "StartConsumers", "start consumers of "+s.id)
	}

	ectx := s.Context()
	threads := ectx.Config.ConsumerThreadCount(s.id)
	capacity := ectx.Config.QueueCapacity(s.id)

	var qopts []queue.Option
	var popts []worker.Option[*message.Inbound]
	if ectx.Registry != nil {
		qopts = append(qopts, queue.WithMetrics(ectx.Registry, s.id))
		popts = append(popts, worker.WithMetricsRegistry[*message.Inbound](ectx.Registry, s.id))
	}

	q, err := queue.New[*message.Inbound](capacity, qopts...)
	if err != nil {
		return errors.Wrap(err, "Subscriber", "StartConsumers", "create queue")
	}

	popts = append(popts,
		worker.WithLogger[*message.Inbound](s.logger()),
		worker.WithName[*message.Inbound](s.id))
	pool, err := worker.NewPool[*message.Inbound](threads, q, s.consume, popts...)
	if err != nil {
		q.Close()
		return errors.Wrap(err, "Subscriber", "StartConsumers", "create consumer pool")
	}
	if err := pool.Start(ctx); err != nil {
		q.Close()
		return errors.Wrap(err, "Subscriber", "StartConsumers", "start consumer pool")
	}

	s.queue = q
	s.pool = pool
	s.started = true
	s.logger().Info("Consumers started", "consumers", threads, "queue_capacity", capacity)
	return nil
}

// consume is the pool processor for one queued record
func (s *Subscriber) consume(ctx context.Context, msg *message.Inbound, workerID int) error {
	consumerID := ConsumerID(s.id, workerID)
	metrics := s.Context().Metrics()
	start := time.Now()

	var err error
	if msg.IsEvent() {
		err = s.handler.ProcessEvent(ctx, msg.Event(), msg.Zone, msg.Mapping, consumerID)
	} else {
		err = s.handler.ProcessResponse(ctx, msg.Object, msg.Zone, msg.Mapping, consumerID)
	}

	status := "success"
	if err != nil {
		status = "error"
		err = errors.WrapProcessing(err, "Subscriber", "consume", consumerID+" process "+msg.Kind.String())
	}
	if metrics != nil {
		metrics.RecordProcessed(s.id, msg.Kind.String(), status)
		metrics.RecordProcessingDuration(s.id, "process", time.Since(start))
		if err != nil {
			metrics.RecordError(s.id, "processing")
		}
	}
	return err
}

// Shutdown stops the consumers, releases the queue and its metrics and calls
// the handler's Finalize. Records still queued are discarded. Safe to call more than once.
func (s *Subscriber) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	pool, q := s.pool, s.queue
	s.mu.Unlock()

	var err error
	if pool != nil {
		if stopErr := pool.Stop(timeout); stopErr != nil {
			err = errors.WrapTransient(stopErr, "Subscriber", "Shutdown", "stop consumers of "+s.id)
			s.logger().Warn("Consumers did not stop in time", "timeout", timeout, "error", stopErr)
		}
	}
	if q != nil {
		q.Close()
	}
	if ectx := s.Context(); ectx != nil && ectx.Registry != nil && pool != nil {
		if n := ectx.Registry.UnregisterOwner(s.id); n > 0 {
			s.logger().Debug("Consumer metrics released", "collectors", n)
		}
	}

	s.finalizeOnce.Do(func() {
		s.logger().Debug("Finalizing subscriber")
		s.handler.Finalize()
	})
	return err
}

// Stats are cumulative subscriber counters
type Stats struct {
	Received  int64
	Filtered  int64
	Dropped   int64
	Syncs     int64
	Processed int64
	Failed    int64
	Queued    int
}

// Stats reports cumulative counters, including those of the consumer pool
func (s *Subscriber) Stats() Stats {
	st := Stats{
		Received: s.received.Load(),
		Filtered: s.filtered.Load(),
		Dropped:  s.dropped.Load(),
		Syncs:    s.syncs.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		ps := s.pool.Stats()
		st.Processed = ps.Processed
		st.Failed = ps.Failed
	}
	if s.queue != nil {
		st.Queued = s.queue.Len()
	}
	return st
}
