// Package transport defines how agents talk to zones and provides a NATS
// implementation and an in-process loopback used in test mode.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/types"
)

// Kind names a transport implementation in configuration
type Kind string

// Supported transports
const (
	KindNATS     Kind = "nats"
	KindLoopback Kind = "loopback"
)

// EventHandler receives events published in a zone. Implementations are
// called on goroutines owned by the transport and may block.
type EventHandler interface {
	OnEvent(ctx context.Context, zone types.Zone, info types.MessageInfo, action message.Action, objects []message.Object)
}

// QueryResultsHandler receives the answers to queries issued with Query. A
// zone that could not answer reports zoneErr and no objects.
type QueryResultsHandler interface {
	OnQueryResults(ctx context.Context, zone types.Zone, info types.MessageInfo, objects []message.Object, zoneErr *message.ZoneError)
}

// RequestHandler answers queries for one object type
type RequestHandler interface {
	OnRequest(ctx context.Context, query *message.Query, zone types.Zone, info types.MessageInfo, w ResponseWriter)
}

// ResponseWriter streams response objects back to the requester. A Write
// error may cover records accepted by earlier calls; see LostRecords.
type ResponseWriter interface {
	Write(ctx context.Context, obj message.Object) error
}

// LostRecordsError is returned by a ResponseWriter when records it had
// already accepted could not be sent along with the current one.
type LostRecordsError struct {
	Lost int
	Err  error
}

func (e *LostRecordsError) Error() string {
	return fmt.Sprintf("%d response records lost: %v", e.Lost, e.Err)
}

func (e *LostRecordsError) Unwrap() error {
	return e.Err
}

// LostRecords returns how many records a Write error stands for: the count
// carried by a LostRecordsError, otherwise one.
func LostRecords(err error) int {
	if err == nil {
		return 0
	}
	var lost *LostRecordsError
	if errors.As(err, &lost) {
		return lost.Lost
	}
	return 1
}

// PublishOptions configures a publisher registration
type PublishOptions struct {
	// ServeQueries registers the publisher to answer requests for its object type.
	ServeQueries bool
}

// SubscribeOptions configures an event subscription
type SubscribeOptions struct {
	// Actions restricts delivery to these actions. Empty means all.
	Actions []message.Action
}

// Accepts reports whether an event with action passes the subscription
func (o SubscribeOptions) Accepts(action message.Action) bool {
	if len(o.Actions) == 0 {
		return true
	}
	for _, a := range o.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// QueryResultsOptions configures a query-results registration
type QueryResultsOptions struct{}

// Transport connects an agent to its zones. Registrations may be made before
// the zone is connected; they take effect on Connect.
type Transport interface {
	Connect(ctx context.Context, zone types.Zone) error
	AssignPublisher(zone types.Zone, pub RequestHandler, objectType string, opts PublishOptions) error
	AssignSubscriber(zone types.Zone, sub EventHandler, objectType string, opts SubscribeOptions) error
	AssignQueryResults(zone types.Zone, recv QueryResultsHandler, objectType string, opts QueryResultsOptions) error
	Query(ctx context.Context, zone types.Zone, query *message.Query) error
	ReportEvent(ctx context.Context, zone types.Zone, event message.Event) error
	Close(ctx context.Context) error
}

// ZoneState is the live connection state of one zone
type ZoneState struct {
	Connected   bool
	Status      string
	Failures    int
	LastFailure time.Time
	RTT         time.Duration
}

// ConnectionMonitor is implemented by transports whose zone connections can
// drop and recover after Connect.
type ConnectionMonitor interface {
	ZoneState(zone types.Zone) (ZoneState, bool)
	// OnZoneStateChange registers fn to be called from a transport goroutine
	// whenever a connected zone is lost or restored.
	OnZoneStateChange(fn func(zone types.Zone, connected bool, err error))
}
