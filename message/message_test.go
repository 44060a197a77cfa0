package message

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/types"
)

func TestNewMessage(t *testing.T) {
	m := NewMessage()
	_, err := uuid.Parse(m.ID)
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), m.CreatedAt, time.Second)
	assert.Equal(t, 0, m.Retries)

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m = NewMessage(WithTime(fixed), WithID("msg-1"))
	assert.Equal(t, "msg-1", m.ID)
	assert.Equal(t, fixed, m.CreatedAt)
	assert.Equal(t, 1, m.Retry())
	assert.Equal(t, 2, m.Retry())
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"ADD": ActionCreate, "change": ActionChange, "Update": ActionChange, "delete": ActionDelete} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseAction("purge")
	assert.Error(t, err)
}

func TestEventValidate(t *testing.T) {
	assert.NoError(t, NewEvent(Object{Type: "SchoolInfo"}, ActionChange).Validate())
	assert.Error(t, NewEvent(Object{}, ActionChange).Validate())
	assert.Error(t, NewEvent(Object{Type: "SchoolInfo"}, Action("x")).Validate())
}

func TestQueryMatches(t *testing.T) {
	obj := Object{Type: "StudentPersonal", Data: json.RawMessage(`{"school":"42","year":7}`)}

	assert.True(t, NewQuery("studentpersonal").Matches(obj))
	assert.True(t, NewQuery("StudentPersonal", Condition{Field: "school", Value: "42"}).Matches(obj))
	assert.True(t, NewQuery("StudentPersonal", Condition{Field: "year", Value: "7"}).Matches(obj))
	assert.False(t, NewQuery("StudentPersonal", Condition{Field: "school", Value: "1"}).Matches(obj))
	assert.False(t, NewQuery("SchoolInfo").Matches(obj))
}

func TestInbound(t *testing.T) {
	zone := types.Zone{ID: "north", URL: "nats://x"}
	obj := Object{Type: "SchoolInfo", Key: "s1", Data: json.RawMessage(`{"name":"Hill"}`)}

	ev := NewInboundEvent(obj, ActionDelete, zone, mapping.Info{})
	assert.True(t, ev.IsEvent())
	assert.Equal(t, Event{Object: obj, Action: ActionDelete}, ev.Event())

	res := NewInboundResult(obj, zone, mapping.Info{})
	assert.False(t, res.IsEvent())
	assert.NotEqual(t, ev.ID, res.ID)

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("handled", "message", ev)
	assert.Contains(t, buf.String(), `"kind":"event"`)
	assert.Contains(t, buf.String(), `"action":"delete"`)
	assert.Contains(t, buf.String(), `Hill`)
}

func TestZoneError(t *testing.T) {
	err := &ZoneError{Code: 8, Category: "access", Description: "not authorized"}
	assert.Equal(t, "zone error 8 (access): not authorized", err.Error())
	assert.Equal(t, "zone error 3: bad", (&ZoneError{Code: 3, Description: "bad"}).Error())
}
