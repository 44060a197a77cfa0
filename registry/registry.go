// Package registry maps factory names from the agent configuration to the
// constructors of publisher sources and subscriber handlers.
package registry

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/publisher"
	"github.com/c360/zoneagent/subscriber"
)

// MaxNameLength bounds factory names
const MaxNameLength = 128

// Dependencies are handed to every factory. Factories must not perform I/O;
// that belongs in the first Events or ProcessEvent call.
type Dependencies struct {
	AgentID string
	Agent   *config.AgentConfig
	Logger  *slog.Logger
}

// PublisherFactory builds the source of one configured publisher
type PublisherFactory func(cfg config.PublisherConfig, deps Dependencies) (publisher.Source, error)

// SubscriberFactory builds the handler of one configured subscriber
type SubscriberFactory func(cfg config.SubscriberConfig, deps Dependencies) (subscriber.Handler, error)

// Kind of entity a factory builds
type Kind string

// Entity kinds
const (
	KindPublisher  Kind = "publisher"
	KindSubscriber Kind = "subscriber"
)

// Info describes a registered factory
type Info struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

type registration struct {
	info       Info
	publisher  PublisherFactory
	subscriber SubscriberFactory
}

// Registry holds factories by name. Publisher and subscriber factories share
// one namespace.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*registration
}

// New creates an empty registry
func New() *Registry {
	return &Registry{factories: make(map[string]*registration)}
}

// ValidateName checks a factory name: non-empty, bounded, and limited to
// letters, digits, dash, underscore and dot.
func ValidateName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName",
				fmt.Sprintf("invalid character %q in %q", r, name))
		}
	}
	return nil
}

func (r *Registry) add(reg *registration) error {
	if err := ValidateName(reg.info.Name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.info.Name]; exists {
		return errors.WrapInvalid(fmt.Errorf("factory %q is already registered", reg.info.Name),
			"Registry", "Register", "duplicate factory check")
	}
	r.factories[reg.info.Name] = reg
	return nil
}

// RegisterPublisher adds a publisher source factory
func (r *Registry) RegisterPublisher(name, description string, factory PublisherFactory) error {
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterPublisher", "factory function validation")
	}
	return r.add(&registration{
		info:      Info{Name: name, Kind: KindPublisher, Description: description},
		publisher: factory,
	})
}

// RegisterSubscriber adds a subscriber handler factory
func (r *Registry) RegisterSubscriber(name, description string, factory SubscriberFactory) error {
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterSubscriber", "factory function validation")
	}
	return r.add(&registration{
		info:       Info{Name: name, Kind: KindSubscriber, Description: description},
		subscriber: factory,
	})
}

// List returns every registered factory sorted by name
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.factories))
	for _, reg := range r.factories {
		out = append(out, reg.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) lookup(name string, kind Kind) (*registration, error) {
	r.mu.RLock()
	reg, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown %s factory %q", errors.ErrConfiguration, kind, name)
	}
	if reg.info.Kind != kind {
		return nil, fmt.Errorf("%w: factory %q builds a %s, not a %s",
			errors.ErrConfiguration, name, reg.info.Kind, kind)
	}
	return reg, nil
}

// BuildPublisher instantiates one configured publisher
func (r *Registry) BuildPublisher(cfg config.PublisherConfig, deps Dependencies) (*publisher.Publisher, error) {
	reg, err := r.lookup(cfg.Factory, KindPublisher)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "Registry", "BuildPublisher", "publisher "+cfg.ID)
	}
	src, err := reg.publisher(cfg, deps)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "Registry", "BuildPublisher", "factory "+cfg.Factory+" for "+cfg.ID)
	}
	return publisher.New(cfg.ID, cfg.ObjectType, src,
		publisher.WithServeQueries(cfg.ServesQueries()),
		publisher.WithRateLimit(cfg.MaxEventsPerSecond))
}

// BuildSubscriber instantiates one configured subscriber
func (r *Registry) BuildSubscriber(cfg config.SubscriberConfig, deps Dependencies) (*subscriber.Subscriber, error) {
	reg, err := r.lookup(cfg.Factory, KindSubscriber)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "Registry", "BuildSubscriber", "subscriber "+cfg.ID)
	}

	actions := make([]message.Action, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		action, err := message.ParseAction(a)
		if err != nil {
			return nil, errors.WrapConfiguration(err, "Registry", "BuildSubscriber", "actions of "+cfg.ID)
		}
		actions = append(actions, action)
	}

	h, err := reg.subscriber(cfg, deps)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "Registry", "BuildSubscriber", "factory "+cfg.Factory+" for "+cfg.ID)
	}
	return subscriber.New(cfg.ID, cfg.ObjectType, h, subscriber.WithActions(actions...))
}

// Build instantiates every publisher and subscriber of agent before anything
// is started. All failures are reported together and nothing is returned
// when any entity fails.
func (r *Registry) Build(agent *config.AgentConfig, logger *slog.Logger) ([]*publisher.Publisher, []*subscriber.Subscriber, error) {
	if agent == nil {
		return nil, nil, errors.Configuration("Registry", "Build", "agent configuration not set")
	}
	if logger == nil {
		logger = slog.Default()
	}
	deps := Dependencies{AgentID: agent.ID, Agent: agent, Logger: logger}

	var (
		pubs     []*publisher.Publisher
		subs     []*subscriber.Subscriber
		problems []error
	)
	for _, pc := range agent.Publishers {
		p, err := r.BuildPublisher(pc, deps)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		pubs = append(pubs, p)
	}
	for _, sc := range agent.Subscribers {
		s, err := r.BuildSubscriber(sc, deps)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		subs = append(subs, s)
	}

	if err := stderrors.Join(problems...); err != nil {
		return nil, nil, err
	}
	logger.Info("Entities built", "publishers", len(pubs), "subscribers", len(subs))
	return pubs, subs, nil
}
