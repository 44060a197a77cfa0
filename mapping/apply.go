package mapping

import (
	"encoding/json"

	"github.com/c360/zoneagent/errors"
)

// Apply runs the field rules over a JSON object and returns the mapped
// object. Fields not named by a rule pass through unchanged. A nil or empty
// context returns data as is.
func (c *Context) Apply(data json.RawMessage) (json.RawMessage, error) {
	if c.Empty() || len(data) == 0 {
		return data, nil
	}

	var in map[string]any
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, errors.WrapMapping(err, "mapping", "Apply", "decode object")
	}

	out := make(map[string]any, len(in)+len(c.Rules))
	for k, v := range in {
		out[k] = v
	}

	for _, rule := range c.Rules {
		source := rule.Source
		if source == "" {
			source = rule.Field
		}
		if v, ok := in[source]; ok {
			out[rule.Field] = v
			continue
		}
		if rule.Default != "" {
			out[rule.Field] = rule.Default
		}
	}

	mapped, err := json.Marshal(out)
	if err != nil {
		return nil, errors.WrapMapping(err, "mapping", "Apply", "encode object")
	}
	return mapped, nil
}
