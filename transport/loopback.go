package transport

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/types"
)

// Broker connects loopback transports of several agents in one process.
type Broker struct {
	mu        sync.RWMutex
	endpoints []*Loopback
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{}
}

func (b *Broker) attach(l *Loopback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints = append(b.endpoints, l)
}

func (b *Broker) peers() []*Loopback {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Loopback(nil), b.endpoints...)
}

type eventReg struct {
	zoneID     string
	objectType string
	handler    EventHandler
	opts       SubscribeOptions
}

type requestReg struct {
	zoneID     string
	objectType string
	handler    RequestHandler
}

type resultsReg struct {
	zoneID     string
	objectType string
	handler    QueryResultsHandler
}

func matches(zoneID, objectType, wantZone, wantType string) bool {
	return strings.EqualFold(zoneID, wantZone) && strings.EqualFold(objectType, wantType)
}

// Loopback is an in-process Transport. Delivery is synchronous on the
// calling goroutine, so a test that reports an event observes every handler
// having run once ReportEvent returns. An agent never receives its own events
// or answers its own queries.
type Loopback struct {
	agentID string
	version string
	broker  *Broker
	logger  *slog.Logger

	mu        sync.RWMutex
	connected map[string]bool
	failures  map[string]error
	events    []eventReg
	requests  []requestReg
	results   []resultsReg
	reported  map[string][]message.Event
	queries   map[string][]*message.Query
	closed    bool
}

// LoopbackOption configures a Loopback transport
type LoopbackOption func(*Loopback)

// WithBroker attaches the transport to a shared broker
func WithBroker(b *Broker) LoopbackOption {
	return func(l *Loopback) {
		if b != nil {
			l.broker = b
		}
	}
}

// WithLoopbackLogger sets the transport logger
func WithLoopbackLogger(logger *slog.Logger) LoopbackOption {
	return func(l *Loopback) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoopbackVersion sets the payload version stamped on outgoing messages
func WithLoopbackVersion(version string) LoopbackOption {
	return func(l *Loopback) {
		l.version = version
	}
}

// NewLoopback creates a loopback transport for agentID
func NewLoopback(agentID string, opts ...LoopbackOption) *Loopback {
	l := &Loopback{
		agentID:   agentID,
		logger:    slog.Default(),
		connected: make(map[string]bool),
		failures:  make(map[string]error),
		reported:  make(map[string][]message.Event),
		queries:   make(map[string][]*message.Query),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.broker == nil {
		l.broker = NewBroker()
	}
	l.broker.attach(l)
	l.logger = l.logger.With("transport", string(KindLoopback))
	return l
}

// FailConnect makes every Connect to zoneID fail with err. A nil err clears
// the failure.
func (l *Loopback) FailConnect(zoneID string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, zoneKey(zoneID))
		return
	}
	l.failures[zoneKey(zoneID)] = err
}

// Connected reports whether zoneID is connected
func (l *Loopback) Connected(zoneID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected[zoneKey(zoneID)]
}

// Closed reports whether Close has been called
func (l *Loopback) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// Reported returns the events this agent reported to zoneID, in order
func (l *Loopback) Reported(zoneID string) []message.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]message.Event(nil), l.reported[zoneKey(zoneID)]...)
}

// Queries returns the queries this agent issued to zoneID, in order
func (l *Loopback) Queries(zoneID string) []*message.Query {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*message.Query(nil), l.queries[zoneKey(zoneID)]...)
}

// Connect marks the zone connected unless a failure was injected
func (l *Loopback) Connect(_ context.Context, zone types.Zone) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.WrapConnection(errors.ErrShuttingDown, "Loopback", "Connect", "connect zone "+zone.ID)
	}
	if err := l.failures[zoneKey(zone.ID)]; err != nil {
		return errors.WrapConnection(err, "Loopback", "Connect", "connect zone "+zone.ID)
	}
	l.connected[zoneKey(zone.ID)] = true
	l.logger.Debug("Zone connected", "zone", zone.ID)
	return nil
}

// AssignPublisher registers pub to answer queries when opts.ServeQueries is set
func (l *Loopback) AssignPublisher(zone types.Zone, pub RequestHandler, objectType string, opts PublishOptions) error {
	if !opts.ServeQueries {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, requestReg{zoneID: zone.ID, objectType: objectType, handler: pub})
	return nil
}

// AssignSubscriber registers sub for events of objectType in zone
func (l *Loopback) AssignSubscriber(zone types.Zone, sub EventHandler, objectType string, opts SubscribeOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, eventReg{zoneID: zone.ID, objectType: objectType, handler: sub, opts: opts})
	return nil
}

// AssignQueryResults registers recv for answers to this agent's queries
func (l *Loopback) AssignQueryResults(zone types.Zone, recv QueryResultsHandler, objectType string, _ QueryResultsOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, resultsReg{zoneID: zone.ID, objectType: objectType, handler: recv})
	return nil
}

func (l *Loopback) requireConnected(zone types.Zone, method string) error {
	if l.closed {
		return errors.WrapConnection(errors.ErrShuttingDown, "Loopback", method, "zone "+zone.ID)
	}
	if !l.connected[zoneKey(zone.ID)] {
		return errors.WrapConnection(errors.ErrNoConnection, "Loopback", method, "zone "+zone.ID)
	}
	return nil
}

func (l *Loopback) eventHandlers(zone types.Zone, objectType string, action message.Action) []EventHandler {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed || !l.connected[zoneKey(zone.ID)] {
		return nil
	}
	var out []EventHandler
	for _, r := range l.events {
		if matches(r.zoneID, r.objectType, zone.ID, objectType) && r.opts.Accepts(action) {
			out = append(out, r.handler)
		}
	}
	return out
}

func (l *Loopback) requestHandlers(zone types.Zone, objectType string) []RequestHandler {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed || !l.connected[zoneKey(zone.ID)] {
		return nil
	}
	var out []RequestHandler
	for _, r := range l.requests {
		if matches(r.zoneID, r.objectType, zone.ID, objectType) {
			out = append(out, r.handler)
		}
	}
	return out
}

func (l *Loopback) resultHandlers(zone types.Zone, objectType string) []QueryResultsHandler {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []QueryResultsHandler
	for _, r := range l.results {
		if matches(r.zoneID, r.objectType, zone.ID, objectType) {
			out = append(out, r.handler)
		}
	}
	return out
}

// ReportEvent records the event and delivers it to every other agent
// subscribed to its object type in zone.
func (l *Loopback) ReportEvent(ctx context.Context, zone types.Zone, event message.Event) error {
	l.mu.Lock()
	if err := l.requireConnected(zone, "ReportEvent"); err != nil {
		l.mu.Unlock()
		return err
	}
	key := zoneKey(zone.ID)
	l.reported[key] = append(l.reported[key], event)
	l.mu.Unlock()

	info := newInfo(l.agentID, zone.ID, l.version)
	for _, peer := range l.broker.peers() {
		if peer == l {
			continue
		}
		for _, h := range peer.eventHandlers(zone, event.Object.Type, event.Action) {
			h.OnEvent(ctx, zone, info, event.Action, []message.Object{event.Object})
		}
	}
	return nil
}

// Query records the query, asks every other agent serving the object type
// in zone, and delivers each answer to this agent's result handlers. When no
// agent serves the type the handlers receive a zone error.
func (l *Loopback) Query(ctx context.Context, zone types.Zone, query *message.Query) error {
	l.mu.Lock()
	if err := l.requireConnected(zone, "Query"); err != nil {
		l.mu.Unlock()
		return err
	}
	key := zoneKey(zone.ID)
	l.queries[key] = append(l.queries[key], query)
	l.mu.Unlock()

	info := newInfo(l.agentID, zone.ID, l.version)
	receivers := l.resultHandlers(zone, query.ObjectType)

	answered := false
	for _, peer := range l.broker.peers() {
		if peer == l {
			continue
		}
		for _, h := range peer.requestHandlers(zone, query.ObjectType) {
			answered = true
			w := &collectingWriter{}
			h.OnRequest(ctx, query, zone, info, w)

			replyInfo := newInfo(peer.agentID, zone.ID, peer.version)
			for _, r := range receivers {
				r.OnQueryResults(ctx, zone, replyInfo, w.objects, nil)
			}
		}
	}

	if !answered {
		zoneErr := &message.ZoneError{
			Code:        404,
			Category:    "provisioning",
			Description: "no provider for " + query.ObjectType,
		}
		for _, r := range receivers {
			r.OnQueryResults(ctx, zone, newInfo("", zone.ID, ""), nil, zoneErr)
		}
	}
	return nil
}

// InjectEvent delivers objects to this agent's own event handlers as if a
// peer in zone had published them.
func (l *Loopback) InjectEvent(ctx context.Context, zone types.Zone, info types.MessageInfo, action message.Action, objects []message.Object) int {
	if len(objects) == 0 {
		return 0
	}
	handlers := l.eventHandlers(zone, objects[0].Type, action)
	for _, h := range handlers {
		h.OnEvent(ctx, zone, info, action, objects)
	}
	return len(handlers)
}

// InjectResults delivers query results to this agent's own result handlers
func (l *Loopback) InjectResults(ctx context.Context, zone types.Zone, objectType string, info types.MessageInfo, objects []message.Object, zoneErr *message.ZoneError) int {
	handlers := l.resultHandlers(zone, objectType)
	for _, h := range handlers {
		h.OnQueryResults(ctx, zone, info, objects, zoneErr)
	}
	return len(handlers)
}

// Close disconnects every zone. Subsequent calls return nil.
func (l *Loopback) Close(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	for k := range l.connected {
		l.connected[k] = false
	}
	return nil
}

type collectingWriter struct {
	objects []message.Object
}

func (w *collectingWriter) Write(_ context.Context, obj message.Object) error {
	w.objects = append(w.objects, obj)
	return nil
}
