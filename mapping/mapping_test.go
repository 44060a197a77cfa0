package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/types"
)

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Nil(t, Normalize(&Context{ObjectType: "StudentPersonal", Direction: Inbound}))

	c := &Context{ObjectType: "StudentPersonal", Rules: []FieldRule{{Field: "name"}}}
	assert.Same(t, c, Normalize(c))
}

func TestSelect_ZeroRulesIsAbsentInBothDirections(t *testing.T) {
	r := ResolverFunc(func(objectType string, dir Direction, _ *types.MessageInfo) (*Context, error) {
		return &Context{ObjectType: objectType, Direction: dir}, nil
	})

	assert.Nil(t, Select(nil, r, "StudentPersonal", Inbound, nil))
	assert.Nil(t, Select(nil, r, "StudentPersonal", Outbound, &types.MessageInfo{Version: "3.0"}))
}

func TestSelect_ErrorIsLoggedAndAbsent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := ResolverFunc(func(string, Direction, *types.MessageInfo) (*Context, error) {
		return nil, errors.New("profile unreadable")
	})

	assert.Nil(t, Select(logger, r, "SchoolInfo", Outbound, nil))
	assert.Contains(t, buf.String(), "Mapping resolution failed")
	assert.Contains(t, buf.String(), "profile unreadable")
}

func TestSelect_NilResolver(t *testing.T) {
	assert.Nil(t, Select(nil, nil, "SchoolInfo", Inbound, nil))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" Inbound ")
	require.NoError(t, err)
	assert.Equal(t, Inbound, d)

	_, err = ParseDirection("sideways")
	assert.True(t, pkgerrors.IsInvalid(err))
}

func TestProfileResolver(t *testing.T) {
	p, err := NewProfileResolver("", []Rule{
		{ObjectType: "StudentPersonal", Direction: "inbound", Fields: []FieldRule{{Field: "givenName", Source: "first"}}},
		{ObjectType: "StudentPersonal", Direction: "inbound", Version: "3.4", Fields: []FieldRule{{Field: "name", Source: "fullName"}}},
		{ObjectType: "StudentPersonal", Direction: "outbound"},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, p.Name())

	c, err := p.Resolve("studentpersonal", Inbound, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "givenName", c.Rules[0].Field)

	c, err = p.Resolve("StudentPersonal", Inbound, &types.MessageInfo{Version: "3.4"})
	require.NoError(t, err)
	assert.Equal(t, "name", c.Rules[0].Field)

	c, err = p.Resolve("SchoolInfo", Inbound, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	// A configured rule without fields normalizes to absent
	assert.Nil(t, Select(nil, p, "StudentPersonal", Outbound, nil))

	_, err = p.Resolve("StudentPersonal", Direction("up"), nil)
	assert.ErrorIs(t, err, pkgerrors.ErrMapping)
}

func TestValidateRules(t *testing.T) {
	assert.NoError(t, ValidateRules(nil))

	err := ValidateRules([]Rule{{ObjectType: "", Direction: "inbound"}})
	assert.Error(t, err)

	err = ValidateRules([]Rule{{ObjectType: "SchoolInfo", Direction: "both"}})
	assert.Error(t, err)

	_, err = NewProfileResolver("x", []Rule{{ObjectType: "SchoolInfo", Direction: "inbound", Fields: []FieldRule{{Field: ""}}}})
	assert.Error(t, err)
}

func TestContextApply(t *testing.T) {
	c := &Context{Rules: []FieldRule{
		{Field: "givenName", Source: "first"},
		{Field: "status", Default: "active"},
	}}

	out, err := c.Apply(json.RawMessage(`{"first":"Ada","id":"7"}`))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, map[string]any{"first": "Ada", "id": "7", "givenName": "Ada", "status": "active"}, got)

	var nilCtx *Context
	same, err := nilCtx.Apply(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(same))

	_, err = c.Apply(json.RawMessage(`not json`))
	assert.ErrorIs(t, err, pkgerrors.ErrMapping)
}
