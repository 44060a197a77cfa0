package config

import (
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/zoneagent/errors"
)

// DebugLevel is the verbosity an agent logs at
type DebugLevel int

// Debug levels from quietest to loudest
const (
	DebugNone DebugLevel = iota
	DebugMinimal
	DebugModerate
	DebugDetailed
	DebugVeryDetailed
	DebugAll
)

var debugLevelNames = map[DebugLevel]string{
	DebugNone:         "none",
	DebugMinimal:      "minimal",
	DebugModerate:     "moderate",
	DebugDetailed:     "detailed",
	DebugVeryDetailed: "very_detailed",
	DebugAll:          "all",
}

// String implements fmt.Stringer
func (d DebugLevel) String() string {
	if name, ok := debugLevelNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DebugLevel(%d)", int(d))
}

// ParseDebugLevel parses a level name. Matching ignores case and accepts the
// legacy "DBG_" prefix, so "DBG_VERYDETAILED" and "very_detailed" are equal.
func ParseDebugLevel(s string) (DebugLevel, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "dbg_")
	norm = strings.ReplaceAll(norm, "_", "")
	if norm == "" {
		return DebugNone, nil
	}

	for level, name := range debugLevelNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return level, nil
		}
	}
	return DebugNone, errors.WrapInvalid(errors.ErrInvalidConfig, "config", "ParseDebugLevel",
		fmt.Sprintf("unknown debug level %q", s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the YAML decoder
func (d *DebugLevel) UnmarshalText(text []byte) error {
	level, err := ParseDebugLevel(string(text))
	if err != nil {
		return err
	}
	*d = level
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d DebugLevel) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// SlogLevel maps the debug level onto a slog level. None and minimal log
// warnings and above, moderate adds info, everything louder logs debug.
func (d DebugLevel) SlogLevel() slog.Level {
	switch {
	case d <= DebugMinimal:
		return slog.LevelWarn
	case d == DebugModerate:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *DebugLevel) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}
