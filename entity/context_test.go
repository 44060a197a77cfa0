package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/transport"
	"github.com/c360/zoneagent/types"
)

func validContext() *Context {
	return &Context{
		AgentID:   "agent",
		Zones:     types.Zones{{ID: "Zone1", URL: "nats://z1"}},
		Config:    &config.AgentConfig{},
		Transport: transport.NewLoopback("agent"),
	}
}

func TestContext_Validate(t *testing.T) {
	require.NoError(t, validContext().Validate())

	var nilCtx *Context
	tests := map[string]*Context{
		"nil":          nilCtx,
		"no agent":     func() *Context { c := validContext(); c.AgentID = ""; return c }(),
		"no config":    func() *Context { c := validContext(); c.Config = nil; return c }(),
		"no transport": func() *Context { c := validContext(); c.Transport = nil; return c }(),
		"no zones":     func() *Context { c := validContext(); c.Zones = nil; return c }(),
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			err := c.Validate()
			assert.ErrorIs(t, err, errors.ErrConfiguration)
		})
	}
}

func TestContext_Zones(t *testing.T) {
	c := validContext()
	assert.True(t, c.IsValidZone("zone1"))
	assert.False(t, c.IsValidZone("Zone2"))

	z, ok := c.ZoneByID("ZONE1")
	require.True(t, ok)
	assert.Equal(t, "nats://z1", z.URL)
}

func TestContext_Defaults(t *testing.T) {
	var c *Context
	assert.NotNil(t, c.Log())
	assert.NotNil(t, c.Trace())
	assert.Nil(t, c.Metrics())
}

func TestHolder(t *testing.T) {
	var h Holder
	assert.ErrorIs(t, h.Populated(), errors.ErrConfiguration)

	h.SetContext(validContext())
	assert.NoError(t, h.Populated())
	assert.Equal(t, "agent", h.Context().AgentID)
}
