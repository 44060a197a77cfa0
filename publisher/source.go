package publisher

import (
	"context"

	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/types"
)

// EventIterator is a lazy, finite, one-shot sequence of events. Close is
// called exactly once by the runtime, whether or not the sequence was
// exhausted.
type EventIterator interface {
	HasNext() bool
	Next(ctx context.Context) (*message.Event, error)
	Close() error
}

// ResponseIterator is the query-response counterpart of EventIterator
type ResponseIterator interface {
	HasNext() bool
	Next(ctx context.Context) (*message.Object, error)
	Close() error
}

// Source supplies a publisher's data. Events is called on every broadcast;
// Respond on every query from a zone. Either may return a nil iterator when
// there is nothing to send. An error classified fatal by the errors package
// stops the current iteration; any other error skips one record.
type Source interface {
	Events(ctx context.Context, mc *mapping.Context) (EventIterator, error)
	Respond(ctx context.Context, query *message.Query, zone types.Zone, info mapping.Info) (ResponseIterator, error)
	Finalize()
}

// SliceEvents iterates over a fixed list of events
type SliceEvents struct {
	events []message.Event
	pos    int
	closed bool
}

// NewSliceEvents creates an iterator over events
func NewSliceEvents(events []message.Event) *SliceEvents {
	return &SliceEvents{events: events}
}

// HasNext implements EventIterator
func (it *SliceEvents) HasNext() bool {
	return !it.closed && it.pos < len(it.events)
}

// Next implements EventIterator
func (it *SliceEvents) Next(_ context.Context) (*message.Event, error) {
	if !it.HasNext() {
		return nil, nil
	}
	ev := it.events[it.pos]
	it.pos++
	return &ev, nil
}

// Close implements EventIterator
func (it *SliceEvents) Close() error {
	it.closed = true
	return nil
}

// SliceObjects iterates over a fixed list of objects
type SliceObjects struct {
	objects []message.Object
	pos     int
	closed  bool
}

// NewSliceObjects creates an iterator over objects
func NewSliceObjects(objects []message.Object) *SliceObjects {
	return &SliceObjects{objects: objects}
}

// HasNext implements ResponseIterator
func (it *SliceObjects) HasNext() bool {
	return !it.closed && it.pos < len(it.objects)
}

// Next implements ResponseIterator
func (it *SliceObjects) Next(_ context.Context) (*message.Object, error) {
	if !it.HasNext() {
		return nil, nil
	}
	obj := it.objects[it.pos]
	it.pos++
	return &obj, nil
}

// Close implements ResponseIterator
func (it *SliceObjects) Close() error {
	it.closed = true
	return nil
}
