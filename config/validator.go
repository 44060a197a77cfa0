package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/transport"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks every agent and mapping profile. All problems are
// reported together.
func (f *File) Validate() error {
	var problems []error

	if len(f.Agents) == 0 {
		problems = append(problems, fmt.Errorf("%w: no agents configured", errors.ErrMissingConfig))
	}
	if f.ThreadStartDelay != nil && *f.ThreadStartDelay < 0 {
		problems = append(problems, invalid("thread_start_delay cannot be negative"))
	}
	for id, agent := range f.Agents {
		if agent == nil {
			continue
		}
		if err := agent.Validate(); err != nil {
			problems = append(problems, fmt.Errorf("agent %s: %w", id, err))
		}
	}
	for name, rules := range f.Mappings {
		if err := mapping.ValidateRules(rules); err != nil {
			problems = append(problems, fmt.Errorf("mapping profile %s: %w", name, err))
		}
	}
	return stderrors.Join(problems...)
}

// Validate checks one agent configuration
func (a *AgentConfig) Validate() error {
	var problems []error

	switch transport.Kind(a.Transport.Kind) {
	case transport.KindNATS, transport.KindLoopback:
	default:
		problems = append(problems, invalid("unknown transport kind %q", a.Transport.Kind))
	}
	if a.Transport.ConnectAttempts < 0 {
		problems = append(problems, invalid("transport.connect_attempts cannot be negative"))
	}
	if a.ConsumerThreads < 0 {
		problems = append(problems, invalid("consumer_threads cannot be negative"))
	}
	if a.ShutdownTimeout < 0 {
		problems = append(problems, invalid("shutdown_timeout cannot be negative"))
	}
	if a.Metrics.Port < 0 || a.Metrics.Port > 65535 {
		problems = append(problems, invalid("metrics.port %d out of range", a.Metrics.Port))
	}
	if f := a.Log.Format; f != "json" && f != "text" {
		problems = append(problems, invalid("log.format must be json or text, got %q", f))
	}
	problems = append(problems, negativeFrequency("event_frequency", a.DefaultEventFrequency)...)
	problems = append(problems, negativeFrequency("sync_frequency", a.DefaultSyncFrequency)...)

	if len(a.Zones) == 0 {
		problems = append(problems, fmt.Errorf("%w: at least one zone is required", errors.ErrMissingConfig))
	}
	zoneIDs := make(map[string]bool)
	for _, z := range a.Zones {
		if err := z.Validate(); err != nil {
			problems = append(problems, err)
			continue
		}
		key := strings.ToLower(z.ID)
		if zoneIDs[key] {
			problems = append(problems, invalid("duplicate zone %s", z.ID))
		}
		zoneIDs[key] = true
	}

	ids := make(map[string]bool)
	checkEntity := func(kind, id, factory, objectType string) {
		switch {
		case id == "":
			problems = append(problems, invalid("%s without id", kind))
			return
		case ids[id]:
			problems = append(problems, invalid("duplicate entity id %s", id))
		}
		ids[id] = true
		if factory == "" {
			problems = append(problems, invalid("%s %s: factory is required", kind, id))
		}
		if objectType == "" {
			problems = append(problems, invalid("%s %s: object_type is required", kind, id))
		}
	}

	for _, p := range a.Publishers {
		checkEntity("publisher", p.ID, p.Factory, p.ObjectType)
		problems = append(problems, negativeFrequency("publisher "+p.ID+" event_frequency", p.EventFrequency)...)
		if p.MaxEventsPerSecond < 0 {
			problems = append(problems, invalid("publisher %s: max_events_per_second cannot be negative", p.ID))
		}
	}
	for _, s := range a.Subscribers {
		checkEntity("subscriber", s.ID, s.Factory, s.ObjectType)
		problems = append(problems, negativeFrequency("subscriber "+s.ID+" sync_frequency", s.SyncFrequency)...)
		if s.ConsumerThreads < 0 || s.QueueCapacity < 0 {
			problems = append(problems, invalid("subscriber %s: consumer_threads and queue_capacity cannot be negative", s.ID))
		}
		for _, action := range s.Actions {
			if _, err := message.ParseAction(action); err != nil {
				problems = append(problems, invalid("subscriber %s: unknown action %q", s.ID, action))
			}
		}
	}

	return stderrors.Join(problems...)
}

func negativeFrequency(name string, d *Duration) []error {
	if d != nil && *d < 0 {
		return []error{invalid("%s cannot be negative", name)}
	}
	return nil
}
