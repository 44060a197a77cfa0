package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zerrors "github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/types"
)

type recordingPublisher struct {
	packets []resultsPacket
	failAt  map[int]bool
	calls   int
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, data []byte) error {
	p.calls++
	if p.failAt[p.calls] {
		return zerrors.ErrConnectionLost
	}
	var packet resultsPacket
	if err := json.Unmarshal(data, &packet); err != nil {
		return err
	}
	p.packets = append(p.packets, packet)
	return nil
}

func keys(objects []message.Object) []string {
	out := make([]string, 0, len(objects))
	for _, obj := range objects {
		out = append(out, obj.Key)
	}
	return out
}

func TestResponseWriter_FinalPacketOnBatchBoundary(t *testing.T) {
	pub := &recordingPublisher{}
	w := &natsResponseWriter{client: pub, subject: "reply", queryID: "q1", batch: 2}
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, message.Object{Type: "T", Key: "1"}))
	require.NoError(t, w.Write(ctx, message.Object{Type: "T", Key: "2"}))
	require.NoError(t, w.finish(ctx))

	require.Len(t, pub.packets, 2)
	assert.Equal(t, []string{"1", "2"}, keys(pub.packets[0].Objects))
	assert.False(t, pub.packets[0].Final)
	assert.Empty(t, pub.packets[1].Objects)
	assert.True(t, pub.packets[1].Final)
	assert.Equal(t, "q1", pub.packets[1].QueryID)
	assert.Equal(t, 2, w.sent)
}

func TestResponseWriter_EmptyAnswerIsFinal(t *testing.T) {
	pub := &recordingPublisher{}
	w := &natsResponseWriter{client: pub, subject: "reply", batch: 10}

	require.NoError(t, w.finish(context.Background()))

	require.Len(t, pub.packets, 1)
	assert.True(t, pub.packets[0].Final)
	assert.Empty(t, pub.packets[0].Objects)
}

func TestResponseWriter_FailedFlushDropsBatch(t *testing.T) {
	pub := &recordingPublisher{failAt: map[int]bool{1: true}}
	w := &natsResponseWriter{client: pub, subject: "reply", batch: 2}
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, message.Object{Type: "T", Key: "1"}))
	err := w.Write(ctx, message.Object{Type: "T", Key: "2"})
	require.Error(t, err)

	var lost *LostRecordsError
	require.True(t, stderrors.As(err, &lost))
	assert.Equal(t, 2, lost.Lost)
	assert.Equal(t, 2, LostRecords(err))
	assert.ErrorIs(t, err, zerrors.ErrConnectionLost)

	require.NoError(t, w.Write(ctx, message.Object{Type: "T", Key: "3"}))
	require.NoError(t, w.finish(ctx))

	require.Len(t, pub.packets, 1, "the failed batch is not sent again")
	assert.Equal(t, []string{"3"}, keys(pub.packets[0].Objects))
	assert.True(t, pub.packets[0].Final)
	assert.Equal(t, 1, w.sent)
}

func TestLostRecords(t *testing.T) {
	assert.Equal(t, 0, LostRecords(nil))
	assert.Equal(t, 1, LostRecords(stderrors.New("write failed")))
	assert.Equal(t, 4, LostRecords(zerrors.WrapDelivery(&LostRecordsError{Lost: 4, Err: zerrors.ErrNoConnection},
		"Publisher", "Respond", "write response")))
}

func TestNATS_DeliverResultsSkipsClosingPacket(t *testing.T) {
	tr := NewNATS("requester")
	zone := types.Zone{ID: "Zone1", URL: "nats://localhost:4222"}
	h := &recordingHandler{}
	ctx := context.Background()

	encode := func(p resultsPacket) []byte {
		data, err := json.Marshal(p)
		require.NoError(t, err)
		return data
	}

	tr.deliverResults(ctx, zone, h, "reply", encode(resultsPacket{
		QueryID: "q1",
		Objects: []message.Object{{Type: "T", Key: "1"}, {Type: "T", Key: "2"}},
	}))
	tr.deliverResults(ctx, zone, h, "reply", encode(resultsPacket{QueryID: "q1", Final: true}))
	tr.deliverResults(ctx, zone, h, "reply", encode(resultsPacket{
		QueryID: "q2",
		Objects: []message.Object{{Type: "T", Key: "3"}},
		Final:   true,
	}))
	tr.deliverResults(ctx, zone, h, "reply", encode(resultsPacket{
		QueryID: "q3",
		Error:   &message.ZoneError{Code: 400, Category: "request", Description: "malformed query"},
		Final:   true,
	}))
	tr.deliverResults(ctx, zone, h, "reply", []byte("not json"))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"1", "2", "3"}, keys(h.results))
	require.Len(t, h.errs, 3)
	assert.Nil(t, h.errs[0])
	assert.Nil(t, h.errs[1])
	require.NotNil(t, h.errs[2])
	assert.Equal(t, 400, h.errs[2].Code)
}
