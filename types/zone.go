// Package types contains value types shared across the zoneagent runtimes
package types

import (
	"fmt"
	"strings"

	"github.com/c360/zoneagent/errors"
)

// Zone is a named pub/sub domain an agent connects to. The order of zones in
// an agent's configuration is the order events are fanned out in.
type Zone struct {
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
}

// Validate ensures the zone has an identifier and a connection URL
func (z Zone) Validate() error {
	if strings.TrimSpace(z.ID) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Zone", "Validate", "zone id cannot be empty")
	}
	if strings.TrimSpace(z.URL) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Zone", "Validate",
			fmt.Sprintf("zone %s url cannot be empty", z.ID))
	}
	return nil
}

// String implements fmt.Stringer
func (z Zone) String() string {
	return z.ID
}

// Zones is an ordered zone list
type Zones []Zone

// ByID returns the zone with the given id, compared case-insensitively.
func (zs Zones) ByID(id string) (Zone, bool) {
	for _, z := range zs {
		if strings.EqualFold(z.ID, id) {
			return z, true
		}
	}
	return Zone{}, false
}

// Contains reports whether a zone with the given id is configured
func (zs Zones) Contains(id string) bool {
	_, ok := zs.ByID(id)
	return ok
}

// IDs returns zone ids in list order
func (zs Zones) IDs() []string {
	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i] = z.ID
	}
	return ids
}
