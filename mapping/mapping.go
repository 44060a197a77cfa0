// Package mapping selects the field-mapping context that applies to an object
// type, a direction and the envelope of the message being handled.
package mapping

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/types"
)

// Direction of a mapping relative to the agent
type Direction string

const (
	// Inbound maps objects received from a zone into the agent's model
	Inbound Direction = "inbound"
	// Outbound maps the agent's objects into the zone's model
	Outbound Direction = "outbound"
)

// ParseDirection parses a direction name, case-insensitively
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Inbound:
		return Inbound, nil
	case Outbound:
		return Outbound, nil
	default:
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "mapping", "ParseDirection",
			fmt.Sprintf("unknown direction %q", s))
	}
}

// FieldRule maps one field. Source names the field to copy from; Default is
// used when the source field is absent.
type FieldRule struct {
	Field   string `yaml:"field" json:"field"`
	Source  string `yaml:"source,omitempty" json:"source,omitempty"`
	Default string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Context is the mapping that applies to one object type in one direction.
// A nil *Context means no mapping applies.
type Context struct {
	ObjectType string
	Direction  Direction
	Rules      []FieldRule
}

// Empty reports whether the context carries no field rules
func (c *Context) Empty() bool {
	return c == nil || len(c.Rules) == 0
}

// Info bundles the message envelope with the mapping resolved for it. It is
// handed to handlers alongside each object.
type Info struct {
	Message types.MessageInfo
	Context *Context
}

// Resolver looks up the mapping context for an object type. It returns
// (nil, nil) when no mapping is configured.
type Resolver interface {
	Resolve(objectType string, dir Direction, info *types.MessageInfo) (*Context, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(objectType string, dir Direction, info *types.MessageInfo) (*Context, error)

// Resolve implements Resolver
func (f ResolverFunc) Resolve(objectType string, dir Direction, info *types.MessageInfo) (*Context, error) {
	return f(objectType, dir, info)
}

// Normalize returns nil for a context with zero field rules
func Normalize(c *Context) *Context {
	if c.Empty() {
		return nil
	}
	return c
}

// Select resolves and normalizes a mapping context. Resolution failures are
// logged as mapping errors and yield nil so processing continues unmapped.
func Select(logger *slog.Logger, r Resolver, objectType string, dir Direction, info *types.MessageInfo) *Context {
	if r == nil {
		return nil
	}

	c, err := r.Resolve(objectType, dir, info)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		err = errors.WrapMapping(err, "mapping", "Select", "resolve "+string(dir)+" mapping")
		logger.Error("Mapping resolution failed, continuing without mapping",
			"object_type", objectType,
			"direction", dir,
			"error", err)
		return nil
	}
	return Normalize(c)
}
