package componentregistry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/registry"
	"github.com/c360/zoneagent/types"
)

func newWebhook(t *testing.T, opts map[string]any) *Webhook {
	t.Helper()
	h, err := NewWebhook(config.SubscriberConfig{ID: "hook", ObjectType: "StudentPersonal", Options: opts},
		registry.Dependencies{})
	require.NoError(t, err)
	return h.(*Webhook)
}

func TestWebhook_Posts(t *testing.T) {
	var (
		mu      sync.Mutex
		records []Record
		headers []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		records = append(records, rec)
		headers = append(headers, r.Header.Get("X-Agent"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := newWebhook(t, map[string]any{"url": srv.URL, "headers": map[string]any{"X-Agent": "TestAgent"}})
	defer hook.Finalize()

	obj := message.Object{Type: "StudentPersonal", Key: "A1", Data: json.RawMessage(`{"Name":"Ada"}`)}
	zone := types.Zone{ID: "ZoneA"}
	require.NoError(t, hook.ProcessEvent(context.Background(), message.NewEvent(obj, message.ActionChange), zone, mapping.Info{}, "c1"))
	require.NoError(t, hook.ProcessResponse(context.Background(), obj, zone, mapping.Info{}, "c2"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, records, 2)
	assert.Equal(t, "event", records[0].Kind)
	assert.Equal(t, message.ActionChange, records[0].Action)
	assert.Equal(t, "query_result", records[1].Kind)
	assert.Equal(t, []string{"TestAgent", "TestAgent"}, headers)

	sent, retried, failed := hook.Counts()
	assert.Equal(t, int64(2), sent)
	assert.Zero(t, retried)
	assert.Zero(t, failed)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := newWebhook(t, map[string]any{"url": srv.URL, "retry_count": 3})
	err := hook.ProcessResponse(context.Background(), message.Object{Type: "T"}, types.Zone{ID: "Z"}, mapping.Info{}, "c")
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	sent, retried, _ := hook.Counts()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(2), retried)
}

func TestWebhook_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	hook := newWebhook(t, map[string]any{"url": srv.URL, "retry_count": 3})
	err := hook.ProcessResponse(context.Background(), message.Object{Type: "T"}, types.Zone{ID: "Z"}, mapping.Info{}, "c")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDelivery)
	assert.Equal(t, int32(1), calls.Load())

	_, _, failed := hook.Counts()
	assert.Equal(t, int64(1), failed)
}

func TestWebhookConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts map[string]any
	}{
		{"missing url", map[string]any{}},
		{"bad scheme", map[string]any{"url": "ftp://example.com"}},
		{"negative retries", map[string]any{"url": "http://example.com", "retry_count": -1}},
		{"timeout too long", map[string]any{"url": "http://example.com", "timeout": "1h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWebhook(config.SubscriberConfig{ID: "hook", Options: tt.opts}, registry.Dependencies{})
			assert.Error(t, err)
		})
	}
}
