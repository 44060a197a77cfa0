package subscriber

import (
	"context"

	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/types"
)

// Handler processes the records a subscriber receives. Both Process methods
// run on consumer goroutines, possibly in parallel; consumerID names the
// worker. A returned error is logged with the record payload and counted;
// the worker moves on to the next record.
type Handler interface {
	ProcessEvent(ctx context.Context, event message.Event, zone types.Zone, info mapping.Info, consumerID string) error
	ProcessResponse(ctx context.Context, obj message.Object, zone types.Zone, info mapping.Info, consumerID string) error
	Finalize()
}

// EventFilter is implemented by handlers that want to reject events before
// they are queued. It runs on the transport's delivery goroutine.
type EventFilter interface {
	AcceptEvent(ctx context.Context, event message.Event, zone types.Zone, info mapping.Info) bool
}

// ResultFilter is the query-result counterpart of EventFilter
type ResultFilter interface {
	AcceptQueryResult(ctx context.Context, obj message.Object, zone types.Zone, info mapping.Info) bool
}

// SyncQueryBuilder is implemented by handlers that restrict the query sent to
// a zone on every sync, for example with conditions.
type SyncQueryBuilder interface {
	BuildSyncQuery(query *message.Query, zone types.Zone)
}
