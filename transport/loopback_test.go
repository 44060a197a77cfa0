package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zerrors "github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/types"
)

type recordingHandler struct {
	mu      sync.Mutex
	events  []message.Object
	actions []message.Action
	results []message.Object
	errs    []*message.ZoneError
	infos   []types.MessageInfo
}

func (h *recordingHandler) OnEvent(_ context.Context, _ types.Zone, info types.MessageInfo, action message.Action, objects []message.Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, objects...)
	h.actions = append(h.actions, action)
	h.infos = append(h.infos, info)
}

func (h *recordingHandler) OnQueryResults(_ context.Context, _ types.Zone, info types.MessageInfo, objects []message.Object, zoneErr *message.ZoneError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, objects...)
	h.errs = append(h.errs, zoneErr)
	h.infos = append(h.infos, info)
}

type staticResponder struct {
	objects []message.Object
}

func (r staticResponder) OnRequest(ctx context.Context, q *message.Query, _ types.Zone, _ types.MessageInfo, w ResponseWriter) {
	for _, obj := range r.objects {
		if q.Matches(obj) {
			_ = w.Write(ctx, obj)
		}
	}
}

var zone1 = types.Zone{ID: "Zone1", URL: "loop://zone1"}

func TestLoopback_ConnectFailureInjection(t *testing.T) {
	l := NewLoopback("agentA")
	boom := errors.New("zone unreachable")
	l.FailConnect("zone1", boom)

	err := l.Connect(context.Background(), zone1)
	require.Error(t, err)
	assert.ErrorIs(t, err, zerrors.ErrConnection)
	assert.ErrorIs(t, err, boom)
	assert.False(t, l.Connected("Zone1"))

	l.FailConnect("zone1", nil)
	require.NoError(t, l.Connect(context.Background(), zone1))
	assert.True(t, l.Connected("Zone1"))
}

func TestLoopback_RequiresConnection(t *testing.T) {
	l := NewLoopback("agentA")
	ev := message.NewEvent(message.Object{Type: "StudentPersonal", Key: "1"}, message.ActionChange)

	err := l.ReportEvent(context.Background(), zone1, ev)
	assert.ErrorIs(t, err, zerrors.ErrNoConnection)

	err = l.Query(context.Background(), zone1, message.NewQuery("StudentPersonal"))
	assert.ErrorIs(t, err, zerrors.ErrNoConnection)
}

func TestLoopback_EventsReachPeersOnly(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	pub := NewLoopback("publisher", WithBroker(broker))
	sub := NewLoopback("subscriber", WithBroker(broker))

	own := &recordingHandler{}
	peer := &recordingHandler{}
	require.NoError(t, pub.AssignSubscriber(zone1, own, "StudentPersonal", SubscribeOptions{}))
	require.NoError(t, sub.AssignSubscriber(zone1, peer, "StudentPersonal", SubscribeOptions{}))
	require.NoError(t, pub.Connect(ctx, zone1))
	require.NoError(t, sub.Connect(ctx, zone1))

	ev := message.NewEvent(message.Object{Type: "StudentPersonal", Key: "42"}, message.ActionCreate)
	require.NoError(t, pub.ReportEvent(ctx, zone1, ev))

	assert.Empty(t, own.events)
	require.Len(t, peer.events, 1)
	assert.Equal(t, "42", peer.events[0].Key)
	assert.Equal(t, message.ActionCreate, peer.actions[0])
	assert.Equal(t, "publisher", peer.infos[0].SourceAgent)
	assert.Equal(t, []message.Event{ev}, pub.Reported("zone1"))
}

func TestLoopback_SubscribeOptionsFilterActions(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	pub := NewLoopback("publisher", WithBroker(broker))
	sub := NewLoopback("subscriber", WithBroker(broker))

	h := &recordingHandler{}
	require.NoError(t, sub.AssignSubscriber(zone1, h, "StudentPersonal",
		SubscribeOptions{Actions: []message.Action{message.ActionDelete}}))
	require.NoError(t, pub.Connect(ctx, zone1))
	require.NoError(t, sub.Connect(ctx, zone1))

	obj := message.Object{Type: "StudentPersonal", Key: "1"}
	require.NoError(t, pub.ReportEvent(ctx, zone1, message.NewEvent(obj, message.ActionChange)))
	require.NoError(t, pub.ReportEvent(ctx, zone1, message.NewEvent(obj, message.ActionDelete)))

	require.Len(t, h.actions, 1)
	assert.Equal(t, message.ActionDelete, h.actions[0])
}

func TestLoopback_QueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	provider := NewLoopback("provider", WithBroker(broker))
	requester := NewLoopback("requester", WithBroker(broker))

	objects := []message.Object{
		{Type: "SchoolInfo", Key: "1", Data: []byte(`{"name":"North"}`)},
		{Type: "SchoolInfo", Key: "2", Data: []byte(`{"name":"South"}`)},
	}
	require.NoError(t, provider.AssignPublisher(zone1, staticResponder{objects: objects}, "SchoolInfo", PublishOptions{ServeQueries: true}))

	h := &recordingHandler{}
	require.NoError(t, requester.AssignQueryResults(zone1, h, "SchoolInfo", QueryResultsOptions{}))
	require.NoError(t, provider.Connect(ctx, zone1))
	require.NoError(t, requester.Connect(ctx, zone1))

	q := message.NewQuery("SchoolInfo", message.Condition{Field: "name", Value: "South"})
	require.NoError(t, requester.Query(ctx, zone1, q))

	require.Len(t, h.results, 1)
	assert.Equal(t, "2", h.results[0].Key)
	assert.Nil(t, h.errs[0])
	assert.Len(t, requester.Queries("Zone1"), 1)
}

func TestLoopback_QueryWithoutProviderReportsZoneError(t *testing.T) {
	ctx := context.Background()
	l := NewLoopback("requester")
	h := &recordingHandler{}
	require.NoError(t, l.AssignQueryResults(zone1, h, "SchoolInfo", QueryResultsOptions{}))
	require.NoError(t, l.Connect(ctx, zone1))

	require.NoError(t, l.Query(ctx, zone1, message.NewQuery("SchoolInfo")))

	require.Len(t, h.errs, 1)
	require.NotNil(t, h.errs[0])
	assert.Equal(t, 404, h.errs[0].Code)
	assert.Empty(t, h.results)
}

func TestLoopback_PublisherWithoutQueriesIsNotAsked(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	provider := NewLoopback("provider", WithBroker(broker))
	requester := NewLoopback("requester", WithBroker(broker))

	require.NoError(t, provider.AssignPublisher(zone1, staticResponder{}, "SchoolInfo", PublishOptions{}))
	h := &recordingHandler{}
	require.NoError(t, requester.AssignQueryResults(zone1, h, "SchoolInfo", QueryResultsOptions{}))
	require.NoError(t, provider.Connect(ctx, zone1))
	require.NoError(t, requester.Connect(ctx, zone1))

	require.NoError(t, requester.Query(ctx, zone1, message.NewQuery("SchoolInfo")))
	require.Len(t, h.errs, 1)
	assert.NotNil(t, h.errs[0])
}

func TestLoopback_InjectAndClose(t *testing.T) {
	ctx := context.Background()
	l := NewLoopback("agentA")
	h := &recordingHandler{}
	require.NoError(t, l.AssignSubscriber(zone1, h, "StudentPersonal", SubscribeOptions{}))
	require.NoError(t, l.Connect(ctx, zone1))

	objs := []message.Object{{Type: "StudentPersonal", Key: "1"}, {Type: "StudentPersonal", Key: "2"}}
	assert.Equal(t, 1, l.InjectEvent(ctx, zone1, types.MessageInfo{MessageID: "m1"}, message.ActionChange, objs))
	assert.Len(t, h.events, 2)

	require.NoError(t, l.Close(ctx))
	require.NoError(t, l.Close(ctx))
	assert.True(t, l.Closed())
	assert.False(t, l.Connected("Zone1"))
	assert.Equal(t, 0, l.InjectEvent(ctx, zone1, types.MessageInfo{}, message.ActionChange, objs))
	assert.Error(t, l.Connect(ctx, zone1))
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "zone.Zone_1.event.StudentPersonal", EventSubject("Zone.1", "StudentPersonal"))
	assert.Equal(t, "zone.z.request.SchoolInfo", RequestSubject("z", "SchoolInfo"))
	assert.Equal(t, "zone.z.results.SchoolInfo.agent_a", ResultsSubject("z", "SchoolInfo", "agent a"))
}
