package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/types"
)

func TestZoneValidate(t *testing.T) {
	tests := []struct {
		name        string
		zone        types.Zone
		expectError bool
	}{
		{"valid", types.Zone{ID: "north", URL: "nats://localhost:4222"}, false},
		{"missing id", types.Zone{URL: "nats://localhost:4222"}, true},
		{"blank id", types.Zone{ID: "  ", URL: "nats://localhost:4222"}, true},
		{"missing url", types.Zone{ID: "north"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.zone.Validate()
			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, pkgerrors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestZonesLookup(t *testing.T) {
	zones := types.Zones{{ID: "North", URL: "a"}, {ID: "south", URL: "b"}}

	z, ok := zones.ByID("north")
	assert.True(t, ok)
	assert.Equal(t, "a", z.URL)

	assert.True(t, zones.Contains("SOUTH"))
	assert.False(t, zones.Contains("east"))
	assert.Equal(t, []string{"North", "south"}, zones.IDs())
}

func TestMessageInfoIsZero(t *testing.T) {
	var nilInfo *types.MessageInfo
	assert.True(t, nilInfo.IsZero())
	assert.True(t, (&types.MessageInfo{}).IsZero())
	assert.False(t, (&types.MessageInfo{Version: "2.0"}).IsZero())
}
