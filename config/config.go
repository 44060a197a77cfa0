package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/types"
)

// Defaults applied by the loader
const (
	DefaultStartDelay      = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultConsumerThreads = 1
	DefaultConnectAttempts = 3
	DefaultMetricsPath     = "/metrics"
	DefaultConfigName      = "SIFAgent"
)

// File is the content of one configuration file. It may describe several
// agents; a process runs one of them.
type File struct {
	// ThreadStartDelay staggers scheduled entities: the i-th entity of a
	// kind starts i*ThreadStartDelay after startup.
	ThreadStartDelay *Duration                 `yaml:"thread_start_delay"`
	Agents           map[string]*AgentConfig   `yaml:"agents"`
	Mappings         map[string][]mapping.Rule `yaml:"mappings"`
}

// Agent returns the configuration of agentID with file-level settings
// copied in.
func (f *File) Agent(agentID string) (*AgentConfig, error) {
	for id, agent := range f.Agents {
		if strings.EqualFold(id, agentID) && agent != nil {
			agent.ID = id
			agent.StartDelay = Duration(DefaultStartDelay)
			if f.ThreadStartDelay != nil {
				agent.StartDelay = *f.ThreadStartDelay
			}
			return agent, nil
		}
	}
	return nil, fmt.Errorf("%w: agent %q", ErrAgentNotFound, agentID)
}

// MappingRules returns the rules of profile, or nil when it is not defined
func (f *File) MappingRules(profile string) []mapping.Rule {
	for name, rules := range f.Mappings {
		if strings.EqualFold(name, profile) {
			return rules
		}
	}
	return nil
}

// LogConfig selects the log format and an optional log file
type LogConfig struct {
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
	Name   string `yaml:"name"`
}

// NATSConfig holds connection settings shared by all NATS zone connections
type NATSConfig struct {
	Name           string   `yaml:"name"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	MaxReconnects  *int     `yaml:"max_reconnects"`
	ReconnectWait  Duration `yaml:"reconnect_wait"`
	PingInterval   Duration `yaml:"ping_interval"`
	Timeout        Duration `yaml:"timeout"`
	DrainTimeout   Duration `yaml:"drain_timeout"`
	TLSCert        string   `yaml:"tls_cert"`
	TLSKey         string   `yaml:"tls_key"`
	TLSCA          string   `yaml:"tls_ca"`
	ResponseBatch  int      `yaml:"response_batch"`
	PayloadVersion string   `yaml:"payload_version"`
}

// TransportConfig selects and configures the zone transport
type TransportConfig struct {
	Kind            string     `yaml:"kind"`
	ConnectAttempts int        `yaml:"connect_attempts"`
	NATS            NATSConfig `yaml:"nats"`
}

// MetricsConfig enables the Prometheus endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// PublisherConfig configures one publisher entity
type PublisherConfig struct {
	ID         string `yaml:"id"`
	Factory    string `yaml:"factory"`
	ObjectType string `yaml:"object_type"`
	// EventFrequency overrides the agent default. Zero disables broadcasts.
	EventFrequency     *Duration      `yaml:"event_frequency"`
	MaxEventsPerSecond float64        `yaml:"max_events_per_second"`
	ServeQueries       *bool          `yaml:"serve_queries"`
	Options            map[string]any `yaml:"options"`
}

// SubscriberConfig configures one subscriber entity
type SubscriberConfig struct {
	ID         string `yaml:"id"`
	Factory    string `yaml:"factory"`
	ObjectType string `yaml:"object_type"`
	// SyncFrequency overrides the agent default. Zero disables syncs.
	SyncFrequency   *Duration `yaml:"sync_frequency"`
	ConsumerThreads int       `yaml:"consumer_threads"`
	QueueCapacity   int       `yaml:"queue_capacity"`
	// Actions limits the event actions subscribed to. Empty means all.
	Actions []string       `yaml:"actions"`
	Options map[string]any `yaml:"options"`
}

// AgentConfig is the configuration of one agent
type AgentConfig struct {
	ID         string   `yaml:"-"`
	StartDelay Duration `yaml:"-"`

	ApplicationID  string     `yaml:"application_id"`
	DebugLevel     DebugLevel `yaml:"debug_level"`
	Log            LogConfig  `yaml:"log"`
	WorkDir        string     `yaml:"work_dir"`
	TestMode       bool       `yaml:"test_mode"`
	TestDir        string     `yaml:"test_dir"`
	MappingProfile string     `yaml:"mapping_profile"`

	DefaultEventFrequency *Duration `yaml:"event_frequency"`
	DefaultSyncFrequency  *Duration `yaml:"sync_frequency"`
	ConsumerThreads       int       `yaml:"consumer_threads"`
	IsolatedScheduling    *bool     `yaml:"isolated_scheduling"`
	ShutdownTimeout       Duration  `yaml:"shutdown_timeout"`

	Transport   TransportConfig    `yaml:"transport"`
	Zones       types.Zones        `yaml:"zones"`
	Publishers  []PublisherConfig  `yaml:"publishers"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
	Metrics     MetricsConfig      `yaml:"metrics"`
}

// Publisher returns the configuration of publisher id
func (a *AgentConfig) Publisher(id string) (PublisherConfig, bool) {
	for _, p := range a.Publishers {
		if p.ID == id {
			return p, true
		}
	}
	return PublisherConfig{}, false
}

// Subscriber returns the configuration of subscriber id
func (a *AgentConfig) Subscriber(id string) (SubscriberConfig, bool) {
	for _, s := range a.Subscribers {
		if s.ID == id {
			return s, true
		}
	}
	return SubscriberConfig{}, false
}

func durationOr(values ...*Duration) time.Duration {
	for _, v := range values {
		if v != nil {
			return v.Std()
		}
	}
	return 0
}

// EventFrequency is the broadcast period of publisher id: its own setting,
// else the agent default, else zero. Zero means broadcasting is disabled.
func (a *AgentConfig) EventFrequency(id string) time.Duration {
	p, _ := a.Publisher(id)
	return durationOr(p.EventFrequency, a.DefaultEventFrequency)
}

// SyncFrequency is the sync period of subscriber id, resolved like
// EventFrequency. Zero means syncing is disabled.
func (a *AgentConfig) SyncFrequency(id string) time.Duration {
	s, _ := a.Subscriber(id)
	return durationOr(s.SyncFrequency, a.DefaultSyncFrequency)
}

// ConsumerThreadCount is the worker count of subscriber id
func (a *AgentConfig) ConsumerThreadCount(id string) int {
	if s, ok := a.Subscriber(id); ok && s.ConsumerThreads > 0 {
		return s.ConsumerThreads
	}
	if a.ConsumerThreads > 0 {
		return a.ConsumerThreads
	}
	return DefaultConsumerThreads
}

// QueueCapacity is the queue size of subscriber id. It defaults to the
// consumer thread count.
func (a *AgentConfig) QueueCapacity(id string) int {
	if s, ok := a.Subscriber(id); ok && s.QueueCapacity > 0 {
		return s.QueueCapacity
	}
	return a.ConsumerThreadCount(id)
}

// Isolated reports whether every entity gets its own scheduler goroutine
func (a *AgentConfig) Isolated() bool {
	return a.IsolatedScheduling == nil || *a.IsolatedScheduling
}

// ServesQueries reports whether publisher id answers queries. Default true.
func (p PublisherConfig) ServesQueries() bool {
	return p.ServeQueries == nil || *p.ServeQueries
}
