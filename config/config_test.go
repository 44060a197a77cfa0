package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/types"
)

const sampleConfig = `
thread_start_delay: 2s
agents:
  StudentAgent:
    application_id: ${APP_ID:-students}
    debug_level: DBG_DETAILED
    event_frequency: 5m
    consumer_threads: 2
    isolated_scheduling: false
    transport:
      kind: loopback
    zones:
      - id: Zone1
        url: nats://zone1:4222
      - id: Zone2
        url: ${ZONE2_URL}
    publishers:
      - id: StudentPublisher
        factory: file
        object_type: StudentPersonal
      - id: SchoolPublisher
        factory: file
        object_type: SchoolInfo
        event_frequency: 0
    subscribers:
      - id: StudentSubscriber
        factory: log
        object_type: StudentPersonal
        sync_frequency: 3600
        consumer_threads: 3
        options:
          verbose: true
          batch: 5
mappings:
  Default:
    - object_type: StudentPersonal
      direction: inbound
      fields:
        - field: name
          source: fullName
`

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestLoader_Load(t *testing.T) {
	l := newTestLoader(map[string]string{"ZONE2_URL": "nats://zone2:4222"})
	f, err := l.Load([]byte(sampleConfig))
	require.NoError(t, err)

	agent, err := f.Agent("studentagent")
	require.NoError(t, err)

	assert.Equal(t, "StudentAgent", agent.ID)
	assert.Equal(t, "students", agent.ApplicationID)
	assert.Equal(t, DebugDetailed, agent.DebugLevel)
	assert.Equal(t, 2*time.Second, agent.StartDelay.Std())
	assert.Equal(t, "nats://zone2:4222", agent.Zones[1].URL)
	assert.Equal(t, []string{"Zone1", "Zone2"}, agent.Zones.IDs())
	assert.False(t, agent.Isolated())
	assert.Equal(t, "Default", agent.MappingProfile)
	assert.Equal(t, DefaultShutdownTimeout, agent.ShutdownTimeout.Std())
	assert.Len(t, f.MappingRules("default"), 1)
}

func TestLoader_LoadStructure(t *testing.T) {
	f, err := newTestLoader(map[string]string{"ZONE2_URL": "nats://zone2:4222"}).Load([]byte(sampleConfig))
	require.NoError(t, err)
	agent, err := f.Agent("StudentAgent")
	require.NoError(t, err)

	wantZones := types.Zones{
		{ID: "Zone1", URL: "nats://zone1:4222"},
		{ID: "Zone2", URL: "nats://zone2:4222"},
	}
	if diff := cmp.Diff(wantZones, agent.Zones); diff != "" {
		t.Errorf("zones mismatch (-want +got):\n%s", diff)
	}

	wantRules := []mapping.Rule{{
		ObjectType: "StudentPersonal",
		Direction:  "inbound",
		Fields:     []mapping.FieldRule{{Field: "name", Source: "fullName"}},
	}}
	if diff := cmp.Diff(wantRules, f.MappingRules("Default")); diff != "" {
		t.Errorf("mapping rules mismatch (-want +got):\n%s", diff)
	}
}

func TestAgentConfig_FrequencyResolution(t *testing.T) {
	f, err := newTestLoader(map[string]string{"ZONE2_URL": "nats://z2"}).Load([]byte(sampleConfig))
	require.NoError(t, err)
	agent, err := f.Agent("StudentAgent")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, agent.EventFrequency("StudentPublisher"), "agent default applies")
	assert.Equal(t, time.Duration(0), agent.EventFrequency("SchoolPublisher"), "explicit zero disables")
	assert.Equal(t, time.Hour, agent.SyncFrequency("StudentSubscriber"), "bare numbers are seconds")
	assert.Equal(t, time.Duration(0), agent.SyncFrequency("Unknown"), "unset means disabled")
}

func TestAgentConfig_ConsumerSizing(t *testing.T) {
	f, err := newTestLoader(map[string]string{"ZONE2_URL": "nats://z2"}).Load([]byte(sampleConfig))
	require.NoError(t, err)
	agent, err := f.Agent("StudentAgent")
	require.NoError(t, err)

	assert.Equal(t, 3, agent.ConsumerThreadCount("StudentSubscriber"))
	assert.Equal(t, 3, agent.QueueCapacity("StudentSubscriber"), "capacity defaults to thread count")
	assert.Equal(t, 2, agent.ConsumerThreadCount("Other"), "agent default")

	agent.Subscribers[0].QueueCapacity = 10
	assert.Equal(t, 10, agent.QueueCapacity("StudentSubscriber"))

	empty := &AgentConfig{}
	assert.Equal(t, DefaultConsumerThreads, empty.ConsumerThreadCount("x"))
	assert.True(t, empty.Isolated())
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"ZONE2_URL":              "nats://z2",
		"APP_ID":                 "override-app",
		"ZONEAGENT_NATS_TOKEN":   "secret",
		"ZONEAGENT_METRICS_PORT": "9191",
		"ZONEAGENT_DEBUG_LEVEL":  "all",
	})
	f, err := l.Load([]byte(sampleConfig))
	require.NoError(t, err)
	agent, err := f.Agent("StudentAgent")
	require.NoError(t, err)

	assert.Equal(t, "override-app", agent.ApplicationID)
	assert.Equal(t, "secret", agent.Transport.NATS.Token)
	assert.Equal(t, 9191, agent.Metrics.Port)
	assert.Equal(t, DebugAll, agent.DebugLevel)
}

func TestLoader_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no agents", "agents: {}"},
		{"no zones", "agents:\n  A:\n    transport: {kind: loopback}\n"},
		{"zone without url", "agents:\n  A:\n    zones: [{id: Z1}]\n"},
		{"duplicate zone", "agents:\n  A:\n    zones: [{id: Z1, url: u}, {id: z1, url: u}]\n"},
		{"unknown transport", "agents:\n  A:\n    transport: {kind: carrier-pigeon}\n    zones: [{id: Z1, url: u}]\n"},
		{"publisher without factory", "agents:\n  A:\n    zones: [{id: Z1, url: u}]\n    publishers: [{id: P, object_type: T}]\n"},
		{"duplicate entity", "agents:\n  A:\n    zones: [{id: Z1, url: u}]\n    publishers: [{id: P, factory: f, object_type: T}]\n    subscribers: [{id: P, factory: f, object_type: T}]\n"},
		{"negative frequency", "agents:\n  A:\n    event_frequency: -5s\n    zones: [{id: Z1, url: u}]\n"},
		{"bad mapping direction", "agents:\n  A:\n    zones: [{id: Z1, url: u}]\nmappings:\n  Default: [{object_type: T, direction: sideways}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(nil).Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfiguration)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestLoader_UnknownDebugLevel(t *testing.T) {
	_, err := newTestLoader(nil).Load([]byte("agents:\n  A:\n    debug_level: chatty\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SIFAgent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  A:\n    zones: [{id: Z1, url: nats://x}]\n"), 0o600))

	f, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	_, err = f.Agent("B")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = NewLoader().LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "SIFAgent.yaml", ResolvePath(""))
	assert.Equal(t, "agent.yaml", ResolvePath("agent"))
	assert.Equal(t, "conf/agent.yml", ResolvePath("conf/agent.yml"))
}

func TestParseDebugLevel(t *testing.T) {
	tests := []struct {
		in   string
		want DebugLevel
	}{
		{"", DebugNone},
		{"DBG_NONE", DebugNone},
		{"minimal", DebugMinimal},
		{"DBG_VERYDETAILED", DebugVeryDetailed},
		{"very_detailed", DebugVeryDetailed},
		{"ALL", DebugAll},
	}
	for _, tt := range tests {
		got, err := ParseDebugLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDebugLevel("loud")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
