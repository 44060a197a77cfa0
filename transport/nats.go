package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/metric"
	"github.com/c360/zoneagent/natsclient"
	"github.com/c360/zoneagent/pkg/retry"
	"github.com/c360/zoneagent/types"
)

const defaultResponseBatch = 100

// NATS is a Transport that maps every zone to one NATS connection. The zone
// URL is the NATS server URL.
type NATS struct {
	agentID         string
	version         string
	logger          *slog.Logger
	metrics         *metric.Metrics
	clientOpts      []natsclient.ClientOption
	connectAttempts int
	responseBatch   int

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	zones    map[string]*natsZone
	closed   bool
	onChange func(zone types.Zone, connected bool, err error)
}

type natsZone struct {
	zone      types.Zone
	client    *natsclient.Client
	connected bool
	regs      []natsRegistration
}

type natsRegistration struct {
	subject string
	handler natsclient.MsgHandler
}

// NATSOption configures a NATS transport
type NATSOption func(*NATS)

// WithNATSLogger sets the transport logger
func WithNATSLogger(logger *slog.Logger) NATSOption {
	return func(t *NATS) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithNATSMetrics records per-zone connection metrics
func WithNATSMetrics(metrics *metric.Metrics) NATSOption {
	return func(t *NATS) {
		t.metrics = metrics
	}
}

// WithClientOptions appends options for every zone connection
func WithClientOptions(opts ...natsclient.ClientOption) NATSOption {
	return func(t *NATS) {
		t.clientOpts = append(t.clientOpts, opts...)
	}
}

// WithConnectAttempts sets the total connect attempts per zone
func WithConnectAttempts(attempts int) NATSOption {
	return func(t *NATS) {
		if attempts > 0 {
			t.connectAttempts = attempts
		}
	}
}

// WithVersion sets the payload version stamped on outgoing messages
func WithVersion(version string) NATSOption {
	return func(t *NATS) {
		t.version = version
	}
}

// WithResponseBatch sets how many response objects are sent per packet
func WithResponseBatch(n int) NATSOption {
	return func(t *NATS) {
		if n > 0 {
			t.responseBatch = n
		}
	}
}

// NewNATS creates a NATS transport for agentID
func NewNATS(agentID string, opts ...NATSOption) *NATS {
	ctx, cancel := context.WithCancel(context.Background())
	t := &NATS{
		agentID:         agentID,
		logger:          slog.Default(),
		connectAttempts: 3,
		responseBatch:   defaultResponseBatch,
		ctx:             ctx,
		cancel:          cancel,
		zones:           make(map[string]*natsZone),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("transport", string(KindNATS))
	return t
}

func zoneKey(id string) string {
	return strings.ToLower(id)
}

func (t *NATS) entry(zone types.Zone) *natsZone {
	key := zoneKey(zone.ID)
	z, ok := t.zones[key]
	if !ok {
		z = &natsZone{zone: zone}
		t.zones[key] = z
	}
	return z
}

// Connect opens the zone connection and subscribes every registration made
// for the zone so far.
func (t *NATS) Connect(ctx context.Context, zone types.Zone) error {
	if err := zone.Validate(); err != nil {
		return errors.WrapConnection(err, "NATS", "Connect", "validate zone")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.WrapConnection(errors.ErrShuttingDown, "NATS", "Connect", "connect zone "+zone.ID)
	}
	z := t.entry(zone)
	if z.connected {
		t.mu.Unlock()
		return nil
	}
	if z.client == nil {
		opts := []natsclient.ClientOption{
			natsclient.WithMessageTimeout(0),
		}
		opts = append(opts, t.clientOpts...)
		opts = append(opts,
			natsclient.WithZone(zone.ID),
			natsclient.WithLogger(t.logger),
			natsclient.WithMetrics(t.metrics),
			natsclient.WithDisconnectCallback(func(err error) {
				t.zoneStateChanged(zone, false, err)
			}),
			natsclient.WithReconnectCallback(func() {
				t.zoneStateChanged(zone, true, nil)
			}),
		)
		client, err := natsclient.NewClient(zone.URL, opts...)
		if err != nil {
			t.mu.Unlock()
			return errors.WrapConnection(err, "NATS", "Connect", "create client for zone "+zone.ID)
		}
		z.client = client
	}
	client := z.client
	t.mu.Unlock()

	cfg := retry.ZoneConnect(t.connectAttempts)
	cfg.Retryable = func(err error) bool {
		return !stderrors.Is(err, natsclient.ErrCircuitOpen) && !stderrors.Is(err, natsclient.ErrClosed)
	}
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		t.logger.Warn("Zone connect attempt failed, retrying",
			"zone", zone.ID, "attempt", attempt, "delay", delay, "error", err)
	}
	if err := retry.Do(ctx, cfg, func() error { return client.Connect(ctx) }); err != nil {
		return errors.WrapConnection(err, "NATS", "Connect", "connect zone "+zone.ID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, reg := range z.regs {
		if err := client.Subscribe(t.ctx, reg.subject, reg.handler); err != nil {
			return errors.WrapConnection(err, "NATS", "Connect", "subscribe "+reg.subject)
		}
	}
	z.connected = true
	t.logger.Info("Zone connected", "zone", zone.ID, "url", zone.URL, "subscriptions", len(z.regs))
	return nil
}

// OnZoneStateChange implements ConnectionMonitor
func (t *NATS) OnZoneStateChange(fn func(zone types.Zone, connected bool, err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

func (t *NATS) zoneStateChanged(zone types.Zone, connected bool, err error) {
	t.mu.Lock()
	fn := t.onChange
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return
	}
	if connected {
		t.logger.Info("Zone connection restored", "zone", zone.ID)
	} else {
		t.logger.Warn("Zone connection lost", "zone", zone.ID, "error", err)
	}
	if fn != nil {
		fn(zone, connected, err)
	}
}

// ZoneState implements ConnectionMonitor. It reports false for zones that
// were never connected.
func (t *NATS) ZoneState(zone types.Zone) (ZoneState, bool) {
	t.mu.Lock()
	z, ok := t.zones[zoneKey(zone.ID)]
	var client *natsclient.Client
	if ok {
		client = z.client
	}
	t.mu.Unlock()

	if client == nil {
		return ZoneState{}, false
	}
	st := client.GetStatus()
	return ZoneState{
		Connected:   st.Status == natsclient.StatusConnected,
		Status:      st.Status.String(),
		Failures:    int(st.FailureCount),
		LastFailure: st.LastFailureTime,
		RTT:         st.RTT,
	}, true
}

func (t *NATS) register(zone types.Zone, subject string, handler natsclient.MsgHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.WrapConnection(errors.ErrShuttingDown, "NATS", "register", "register "+subject)
	}
	z := t.entry(zone)
	z.regs = append(z.regs, natsRegistration{subject: subject, handler: handler})
	if z.connected {
		if err := z.client.Subscribe(t.ctx, subject, handler); err != nil {
			return errors.WrapConnection(err, "NATS", "register", "subscribe "+subject)
		}
	}
	return nil
}

// AssignPublisher registers pub for zone. Requests are only subscribed when
// opts.ServeQueries is set; events are sent with ReportEvent.
func (t *NATS) AssignPublisher(zone types.Zone, pub RequestHandler, objectType string, opts PublishOptions) error {
	if !opts.ServeQueries {
		return nil
	}
	return t.register(zone, RequestSubject(zone.ID, objectType), func(ctx context.Context, msg *nats.Msg) {
		t.handleRequest(ctx, zone, pub, msg)
	})
}

// AssignSubscriber subscribes sub to events of objectType in zone
func (t *NATS) AssignSubscriber(zone types.Zone, sub EventHandler, objectType string, opts SubscribeOptions) error {
	return t.register(zone, EventSubject(zone.ID, objectType), func(ctx context.Context, msg *nats.Msg) {
		var p eventPacket
		if err := decode(msg.Data, &p, "OnEvent"); err != nil {
			t.logger.Warn("Dropping malformed event", "zone", zone.ID, "subject", msg.Subject, "error", err)
			return
		}
		if p.Info.SourceAgent == t.agentID || !opts.Accepts(p.Action) {
			return
		}
		sub.OnEvent(ctx, zone, p.Info, p.Action, p.Objects)
	})
}

// AssignQueryResults routes answers to this agent's queries for objectType
// in zone to recv.
func (t *NATS) AssignQueryResults(zone types.Zone, recv QueryResultsHandler, objectType string, _ QueryResultsOptions) error {
	return t.register(zone, ResultsSubject(zone.ID, objectType, t.agentID), func(ctx context.Context, msg *nats.Msg) {
		t.deliverResults(ctx, zone, recv, msg.Subject, msg.Data)
	})
}

// deliverResults hands one results packet to recv. The empty packet that
// closes an answer only marks completion and is not delivered.
func (t *NATS) deliverResults(ctx context.Context, zone types.Zone, recv QueryResultsHandler, subject string, data []byte) {
	var p resultsPacket
	if err := decode(data, &p, "OnQueryResults"); err != nil {
		t.logger.Warn("Dropping malformed query results", "zone", zone.ID, "subject", subject, "error", err)
		return
	}
	if !p.Final || len(p.Objects) > 0 || p.Error != nil {
		recv.OnQueryResults(ctx, zone, p.Info, p.Objects, p.Error)
	}
	if p.Final {
		t.logger.Debug("Query answer complete", "zone", zone.ID, "query_id", p.QueryID, "source_agent", p.Info.SourceAgent)
	}
}

func (t *NATS) handleRequest(ctx context.Context, zone types.Zone, pub RequestHandler, msg *nats.Msg) {
	if msg.Reply == "" {
		t.logger.Warn("Dropping request without reply subject", "zone", zone.ID, "subject", msg.Subject)
		return
	}

	client, err := t.client(zone, "OnRequest")
	if err != nil {
		t.logger.Error("Cannot answer request", "zone", zone.ID, "error", err)
		return
	}

	w := &natsResponseWriter{
		client:  client,
		subject: msg.Reply,
		info:    newInfo(t.agentID, zone.ID, t.version),
		batch:   t.responseBatch,
	}

	var p requestPacket
	if err := decode(msg.Data, &p, "OnRequest"); err != nil || p.Query == nil {
		w.zoneErr = &message.ZoneError{Code: 400, Category: "request", Description: "malformed query"}
	} else {
		w.queryID = p.Query.ID
		pub.OnRequest(ctx, p.Query, zone, p.Info, w)
	}

	if err := w.finish(ctx); err != nil {
		t.logger.Error("Failed to send query response",
			"zone", zone.ID, "reply", msg.Reply, "lost", LostRecords(err), "sent", w.sent, "error", err)
	}
}

func (t *NATS) client(zone types.Zone, method string) (*natsclient.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	z, ok := t.zones[zoneKey(zone.ID)]
	if !ok {
		return nil, errors.WrapConnection(errors.ErrUnknownZone, "NATS", method, "lookup zone "+zone.ID)
	}
	if !z.connected {
		return nil, errors.WrapConnection(errors.ErrNoConnection, "NATS", method, "zone "+zone.ID)
	}
	return z.client, nil
}

// Query asks every publisher of query.ObjectType in zone for matching
// objects. Answers arrive asynchronously on the query-results registration.
func (t *NATS) Query(ctx context.Context, zone types.Zone, query *message.Query) error {
	client, err := t.client(zone, "Query")
	if err != nil {
		return err
	}

	data, err := json.Marshal(requestPacket{Info: newInfo(t.agentID, zone.ID, t.version), Query: query})
	if err != nil {
		return errors.WrapInvalid(err, "NATS", "Query", "encode query")
	}

	subject := RequestSubject(zone.ID, query.ObjectType)
	reply := ResultsSubject(zone.ID, query.ObjectType, t.agentID)
	if err := client.PublishRequest(ctx, subject, reply, data); err != nil {
		return errors.WrapConnection(err, "NATS", "Query", "publish "+subject)
	}
	return nil
}

// ReportEvent publishes one event to zone
func (t *NATS) ReportEvent(ctx context.Context, zone types.Zone, event message.Event) error {
	client, err := t.client(zone, "ReportEvent")
	if err != nil {
		return err
	}

	data, err := json.Marshal(eventPacket{
		Info:    newInfo(t.agentID, zone.ID, t.version),
		Action:  event.Action,
		Objects: []message.Object{event.Object},
	})
	if err != nil {
		return errors.WrapInvalid(err, "NATS", "ReportEvent", "encode event")
	}

	subject := EventSubject(zone.ID, event.Object.Type)
	if err := client.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "NATS", "ReportEvent", "publish "+subject)
	}
	return nil
}

// Close drains and closes every zone connection in parallel. Subsequent
// calls return nil.
func (t *NATS) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	clients := make(map[string]*natsclient.Client, len(t.zones))
	for _, z := range t.zones {
		if z.client != nil {
			clients[z.zone.ID] = z.client
		}
		z.connected = false
	}
	t.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for id, client := range clients {
		g.Go(func() error {
			if err := client.Close(gctx); err != nil {
				return fmt.Errorf("zone %s: %w", id, err)
			}
			return nil
		})
	}
	err := g.Wait()
	t.cancel()

	if err != nil {
		return errors.WrapTransient(err, "NATS", "Close", "close zone connections")
	}
	return nil
}

// resultsPublisher is the part of natsclient.Client the response writer uses
type resultsPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// natsResponseWriter batches response objects into results packets sent to
// the requester's reply subject.
type natsResponseWriter struct {
	client  resultsPublisher
	subject string
	info    types.MessageInfo
	queryID string
	batch   int

	pending []message.Object
	sent    int
	zoneErr *message.ZoneError
}

func (w *natsResponseWriter) Write(ctx context.Context, obj message.Object) error {
	w.pending = append(w.pending, obj)
	if len(w.pending) >= w.batch {
		return w.flush(ctx, false)
	}
	return nil
}

// flush sends the pending objects as one packet. A failed packet is dropped
// and reported with the number of objects it carried.
func (w *natsResponseWriter) flush(ctx context.Context, final bool) error {
	objects := w.pending
	w.pending = nil

	data, err := json.Marshal(resultsPacket{
		Info:    w.info,
		QueryID: w.queryID,
		Objects: objects,
		Error:   w.zoneErr,
		Final:   final,
	})
	if err != nil {
		return &LostRecordsError{
			Lost: len(objects),
			Err:  errors.WrapInvalid(err, "natsResponseWriter", "flush", "encode results"),
		}
	}
	if err := w.client.Publish(ctx, w.subject, data); err != nil {
		return &LostRecordsError{
			Lost: len(objects),
			Err:  errors.WrapTransient(err, "natsResponseWriter", "flush", "publish results"),
		}
	}
	w.sent += len(objects)
	return nil
}

// finish sends what is left in a packet marked final. The final packet is
// sent even when it is empty so the requester always sees the answer end.
func (w *natsResponseWriter) finish(ctx context.Context) error {
	return w.flush(ctx, true)
}
