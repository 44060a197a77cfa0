package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/zoneagent/errors"
)

// Object is a business object as carried by a zone. Data is opaque to the
// runtimes and passed to handlers unchanged.
type Object struct {
	Type string          `json:"type"`
	Key  string          `json:"key,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Validate checks the object has a type
func (o Object) Validate() error {
	if o.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Object", "Validate", "object type cannot be empty")
	}
	return nil
}

// Action is the kind of change an event reports
type Action string

// Event actions
const (
	ActionCreate Action = "create"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
)

// ParseAction parses an action name, case-insensitively. "add" and "update"
// are accepted as aliases.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create", "add":
		return ActionCreate, nil
	case "change", "update":
		return ActionChange, nil
	case "delete":
		return ActionDelete, nil
	default:
		return "", errors.WrapInvalid(errors.ErrInvalidData, "message", "ParseAction",
			fmt.Sprintf("unknown action %q", s))
	}
}

// Event is one change to one object
type Event struct {
	Object Object `json:"object"`
	Action Action `json:"action"`
}

// NewEvent creates an event for obj
func NewEvent(obj Object, action Action) Event {
	return Event{Object: obj, Action: action}
}

// Validate checks the event carries a typed object and a known action
func (e Event) Validate() error {
	if err := e.Object.Validate(); err != nil {
		return err
	}
	switch e.Action {
	case ActionCreate, ActionChange, ActionDelete:
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidData, "Event", "Validate",
			fmt.Sprintf("unknown action %q", e.Action))
	}
}

// Condition restricts a query to objects whose Field equals Value
type Condition struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Query requests objects of one type from a zone
type Query struct {
	ID         string      `json:"id"`
	ObjectType string      `json:"object_type"`
	Conditions []Condition `json:"conditions,omitempty"`
	Version    string      `json:"version,omitempty"`
}

// NewQuery creates a query for objectType with a fresh identifier
func NewQuery(objectType string, conditions ...Condition) *Query {
	return &Query{
		ID:         NewMessage().ID,
		ObjectType: objectType,
		Conditions: conditions,
	}
}

// Matches reports whether obj satisfies every condition of the query. Only
// top-level string fields of the object data are inspected.
func (q *Query) Matches(obj Object) bool {
	if !strings.EqualFold(q.ObjectType, obj.Type) {
		return false
	}
	if len(q.Conditions) == 0 {
		return true
	}

	var fields map[string]any
	if err := json.Unmarshal(obj.Data, &fields); err != nil {
		return false
	}
	for _, c := range q.Conditions {
		v, ok := fields[c.Field]
		if !ok || fmt.Sprint(v) != c.Value {
			return false
		}
	}
	return true
}

// ZoneError is an error reported by a zone instead of query results
type ZoneError struct {
	Code        int    `json:"code"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
}

// Error implements error
func (e *ZoneError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("zone error %d (%s): %s", e.Code, e.Category, e.Description)
	}
	return fmt.Sprintf("zone error %d: %s", e.Code, e.Description)
}
