package mapping

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/types"
)

// DefaultProfile is the mapping profile name used when none is configured
const DefaultProfile = "Default"

// Rule is one entry of a mapping profile as it appears in configuration.
// Version and Zone narrow the rule to messages carrying that payload version
// or arriving from that zone.
type Rule struct {
	ObjectType string      `yaml:"object_type" json:"object_type"`
	Direction  string      `yaml:"direction" json:"direction"`
	Version    string      `yaml:"version,omitempty" json:"version,omitempty"`
	Zone       string      `yaml:"zone,omitempty" json:"zone,omitempty"`
	Fields     []FieldRule `yaml:"fields,omitempty" json:"fields,omitempty"`
}

const profileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["object_type", "direction"],
    "properties": {
      "object_type": {"type": "string", "minLength": 1},
      "direction": {"type": "string", "enum": ["inbound", "outbound", "Inbound", "Outbound", "INBOUND", "OUTBOUND"]},
      "version": {"type": "string"},
      "zone": {"type": "string"},
      "fields": {
        "type": ["array", "null"],
        "items": {
          "type": "object",
          "required": ["field"],
          "properties": {
            "field": {"type": "string", "minLength": 1},
            "source": {"type": "string"},
            "default": {"type": "string"}
          }
        }
      }
    }
  }
}`

// ValidateRules checks profile rules against the profile JSON schema
func ValidateRules(rules []Rule) error {
	if rules == nil {
		rules = []Rule{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(profileSchema),
		gojsonschema.NewGoLoader(rules),
	)
	if err != nil {
		return errors.WrapInvalid(err, "mapping", "ValidateRules", "schema validation")
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.WrapInvalid(errors.ErrInvalidConfig, "mapping", "ValidateRules",
			"profile rules: "+strings.Join(msgs, "; "))
	}
	return nil
}

type compiledRule struct {
	objectType string
	direction  Direction
	version    string
	zone       string
	fields     []FieldRule
}

func (r compiledRule) matches(objectType string, dir Direction, info *types.MessageInfo) (bool, int) {
	if r.direction != dir || !strings.EqualFold(r.objectType, objectType) {
		return false, 0
	}

	score := 0
	if r.version != "" {
		if info == nil || info.Version != r.version {
			return false, 0
		}
		score++
	}
	if r.zone != "" {
		if info == nil || !strings.EqualFold(info.SourceZone, r.zone) {
			return false, 0
		}
		score++
	}
	return true, score
}

// ProfileResolver resolves mappings from a named, configured profile. When
// several rules match, the one with the most matching qualifiers wins; ties go
// to the rule listed first.
type ProfileResolver struct {
	name  string
	rules []compiledRule
}

// NewProfileResolver validates and compiles the rules of a profile
func NewProfileResolver(name string, rules []Rule) (*ProfileResolver, error) {
	if name == "" {
		name = DefaultProfile
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		dir, err := ParseDirection(r.Direction)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{
			objectType: r.ObjectType,
			direction:  dir,
			version:    r.Version,
			zone:       r.Zone,
			fields:     append([]FieldRule(nil), r.Fields...),
		})
	}

	return &ProfileResolver{name: name, rules: compiled}, nil
}

// Name returns the profile name
func (p *ProfileResolver) Name() string {
	return p.name
}

// Resolve implements Resolver
func (p *ProfileResolver) Resolve(objectType string, dir Direction, info *types.MessageInfo) (*Context, error) {
	if dir != Inbound && dir != Outbound {
		return nil, errors.WrapMapping(errors.ErrInvalidData, "ProfileResolver", "Resolve",
			fmt.Sprintf("direction %q", dir))
	}

	best := -1
	bestScore := -1
	for i, r := range p.rules {
		ok, score := r.matches(objectType, dir, info)
		if ok && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil, nil
	}

	return &Context{
		ObjectType: objectType,
		Direction:  dir,
		Rules:      append([]FieldRule(nil), p.rules[best].fields...),
	}, nil
}
