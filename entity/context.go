// Package entity holds the context shared by every publisher and subscriber
// of one agent.
package entity

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/metric"
	"github.com/c360/zoneagent/transport"
	"github.com/c360/zoneagent/types"
)

// Context is created once by the orchestrator and shared by pointer with
// every entity. It must not be modified after Start.
type Context struct {
	AgentID       string
	ApplicationID string
	Zones         types.Zones
	Config        *config.AgentConfig
	Mappings      mapping.Resolver
	Transport     transport.Transport

	Logger   *slog.Logger
	Registry *metric.MetricsRegistry
	Tracer   trace.Tracer
}

// Validate returns a configuration error naming the first missing field
func (c *Context) Validate() error {
	switch {
	case c == nil:
		return errors.Configuration("Context", "Validate", "agent context not populated")
	case c.AgentID == "":
		return errors.Configuration("Context", "Validate", "agent id not set")
	case c.Config == nil:
		return errors.Configuration("Context", "Validate", "agent configuration not set")
	case c.Transport == nil:
		return errors.Configuration("Context", "Validate", "transport not set")
	case len(c.Zones) == 0:
		return errors.Configuration("Context", "Validate", "no zones configured")
	}
	return nil
}

// IsValidZone reports whether zoneID is one of the agent's zones
func (c *Context) IsValidZone(zoneID string) bool {
	return c != nil && c.Zones.Contains(zoneID)
}

// ZoneByID looks a zone up case-insensitively
func (c *Context) ZoneByID(zoneID string) (types.Zone, bool) {
	if c == nil {
		return types.Zone{}, false
	}
	return c.Zones.ByID(zoneID)
}

// Log returns the agent logger, never nil
func (c *Context) Log() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Metrics returns the agent metrics, or nil when metrics are disabled
func (c *Context) Metrics() *metric.Metrics {
	if c == nil || c.Registry == nil {
		return nil
	}
	return c.Registry.CoreMetrics()
}

// Trace returns the tracer, falling back to a no-op tracer
func (c *Context) Trace() trace.Tracer {
	if c == nil || c.Tracer == nil {
		return noop.NewTracerProvider().Tracer("zoneagent")
	}
	return c.Tracer
}

// Holder is embedded by runtimes to carry the shared context
type Holder struct {
	ctx *Context
}

// SetContext stores the shared context. The orchestrator calls it once per
// entity before the entity is connected.
func (h *Holder) SetContext(ctx *Context) {
	h.ctx = ctx
}

// Context returns the shared context, nil until populated
func (h *Holder) Context() *Context {
	return h.ctx
}

// Populated reports whether a valid context has been set
func (h *Holder) Populated() error {
	return h.ctx.Validate()
}
