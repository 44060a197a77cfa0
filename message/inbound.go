package message

import (
	"encoding/json"
	"log/slog"

	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/types"
)

// Kind tells whether an inbound message is an event or a query result
type Kind int

const (
	// KindEvent is an event pushed by a zone
	KindEvent Kind = iota
	// KindQueryResult is one object of a query response
	KindQueryResult
)

// String implements fmt.Stringer
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindQueryResult:
		return "query_result"
	default:
		return "unknown"
	}
}

// Inbound is one record received from a zone and waiting in a subscriber
// queue. Action is only meaningful for events.
type Inbound struct {
	Message
	Kind    Kind         `json:"kind"`
	Object  Object       `json:"object"`
	Zone    types.Zone   `json:"zone"`
	Mapping mapping.Info `json:"-"`
	Action  Action       `json:"action,omitempty"`
}

// NewInboundEvent builds the queued form of one event record
func NewInboundEvent(obj Object, action Action, zone types.Zone, info mapping.Info) *Inbound {
	return &Inbound{
		Message: NewMessage(),
		Kind:    KindEvent,
		Object:  obj,
		Zone:    zone,
		Mapping: info,
		Action:  action,
	}
}

// NewInboundResult builds the queued form of one query-result record
func NewInboundResult(obj Object, zone types.Zone, info mapping.Info) *Inbound {
	return &Inbound{
		Message: NewMessage(),
		Kind:    KindQueryResult,
		Object:  obj,
		Zone:    zone,
		Mapping: info,
	}
}

// IsEvent reports whether the message is an event
func (m *Inbound) IsEvent() bool {
	return m.Kind == KindEvent
}

// Event returns the event carried by an event message
func (m *Inbound) Event() Event {
	return Event{Object: m.Object, Action: m.Action}
}

// Payload returns the serialized object for diagnostics
func (m *Inbound) Payload() string {
	data, err := json.Marshal(m.Object)
	if err != nil {
		return "<unserializable: " + err.Error() + ">"
	}
	return string(data)
}

// LogValue implements slog.LogValuer
func (m *Inbound) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", m.ID),
		slog.String("kind", m.Kind.String()),
		slog.String("zone", m.Zone.ID),
		slog.String("object_type", m.Object.Type),
		slog.String("payload", m.Payload()),
	}
	if m.Kind == KindEvent {
		attrs = append(attrs, slog.String("action", string(m.Action)))
	}
	return slog.GroupValue(attrs...)
}
