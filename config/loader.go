package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/transport"
)

// ErrAgentNotFound is returned when a file has no section for the agent
var ErrAgentNotFound = stderrors.New("agent not configured")

// Loader reads configuration files, expands ${VAR} references, applies
// defaults and environment overrides, and optionally validates.
type Loader struct {
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "ZONEAGENT",
		lookupEnv:  os.LookupEnv,
	}
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the prefix of override variables
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// ResolvePath turns a configuration name into a file path. A name without
// extension gets ".yaml" appended; an empty name means DefaultConfigName.
func ResolvePath(name string) string {
	if name == "" {
		name = DefaultConfigName
	}
	if filepath.Ext(name) == "" {
		name += ".yaml"
	}
	return name
}

// LoadFile loads configuration from path
func (l *Loader) LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapConfiguration(
				fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path), "Loader", "LoadFile", "read configuration")
		}
		return nil, errors.WrapConfiguration(err, "Loader", "LoadFile", "read configuration")
	}
	return l.Load(data)
}

// Load parses configuration from data
func (l *Loader) Load(data []byte) (*File, error) {
	expanded := os.Expand(string(data), l.expand)

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Loader", "Load", "parse YAML")
	}

	for id, agent := range f.Agents {
		if agent == nil {
			agent = &AgentConfig{}
			f.Agents[id] = agent
		}
		agent.ID = id
		l.applyDefaults(agent)
		l.applyEnvOverrides(agent)
	}

	if l.validation {
		if err := f.Validate(); err != nil {
			return nil, errors.WrapConfiguration(err, "Loader", "Load", "validate configuration")
		}
	}
	return &f, nil
}

// expand resolves ${VAR} and ${VAR:-default}
func (l *Loader) expand(key string) string {
	name, def, hasDefault := strings.Cut(key, ":-")
	if val, ok := l.lookupEnv(name); ok && val != "" {
		return val
	}
	if hasDefault {
		return def
	}
	return ""
}

func (l *Loader) applyDefaults(agent *AgentConfig) {
	if agent.ApplicationID == "" {
		agent.ApplicationID = agent.ID
	}
	if agent.MappingProfile == "" {
		agent.MappingProfile = "Default"
	}
	if agent.Log.Format == "" {
		agent.Log.Format = "json"
	}
	if agent.Log.Name == "" {
		agent.Log.Name = agent.ID
	}
	if agent.ShutdownTimeout == 0 {
		agent.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if agent.Transport.Kind == "" {
		agent.Transport.Kind = string(transport.KindNATS)
		if agent.TestMode {
			agent.Transport.Kind = string(transport.KindLoopback)
		}
	}
	if agent.Transport.ConnectAttempts == 0 {
		agent.Transport.ConnectAttempts = DefaultConnectAttempts
	}
	if agent.Metrics.Path == "" {
		agent.Metrics.Path = DefaultMetricsPath
	}
}

// applyEnvOverrides applies <PREFIX>_* environment overrides to every agent
func (l *Loader) applyEnvOverrides(agent *AgentConfig) {
	if val, ok := l.lookupEnv(l.envPrefix + "_NATS_USERNAME"); ok && val != "" {
		agent.Transport.NATS.Username = val
	}
	if val, ok := l.lookupEnv(l.envPrefix + "_NATS_PASSWORD"); ok && val != "" {
		agent.Transport.NATS.Password = val
	}
	if val, ok := l.lookupEnv(l.envPrefix + "_NATS_TOKEN"); ok && val != "" {
		agent.Transport.NATS.Token = val
	}
	if val, ok := l.lookupEnv(l.envPrefix + "_METRICS_PORT"); ok && val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			agent.Metrics.Port = port
		}
	}
	if val, ok := l.lookupEnv(l.envPrefix + "_DEBUG_LEVEL"); ok && val != "" {
		if level, err := ParseDebugLevel(val); err == nil {
			agent.DebugLevel = level
		}
	}
}
