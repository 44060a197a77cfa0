package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestWrap_Format(t *testing.T) {
	base := errors.New("dial refused")
	err := Wrap(base, "Orchestrator", "Start", "zone connect")

	assert.Equal(t, "Orchestrator.Start: zone connect failed: dial refused", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Wrap(nil, "a", "b", "c"))
}

func TestKindHelpers(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name  string
		err   error
		kind  error
		class ErrorClass
	}{
		{"connection", WrapConnection(cause, "Transport", "Connect", "dial"), ErrConnection, ErrorTransient},
		{"mapping", WrapMapping(cause, "Resolver", "Resolve", "lookup"), ErrMapping, ErrorInvalid},
		{"processing", WrapProcessing(cause, "Publisher", "Broadcast", "next event"), ErrProcessing, ErrorInvalid},
		{"delivery", WrapDelivery(cause, "Publisher", "Broadcast", "report event"), ErrDelivery, ErrorInvalid},
		{"wrapped configuration", WrapConfiguration(cause, "Loader", "Load", "validate"), ErrConfiguration, ErrorFatal},
		{"configuration", Configuration("Subscriber", "StartConsumers", "context not populated"), ErrConfiguration, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.kind, Kind(tt.err))
			var ce *ClassifiedError
			require.ErrorAs(t, tt.err, &ce)
			assert.Equal(t, tt.class, ce.Class)
			if tt.name != "configuration" {
				assert.ErrorIs(t, tt.err, cause)
			}
		})
	}
}

func TestWrapProcessing_KeepsFatal(t *testing.T) {
	fatal := WrapFatal(errors.New("source closed"), "Source", "Next", "read")
	err := WrapProcessing(fatal, "Publisher", "Broadcast", "next event")

	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrProcessing)
}

func TestKind_None(t *testing.T) {
	assert.Nil(t, Kind(errors.New("plain")))
	assert.Nil(t, Kind(nil))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("network unreachable")))
	assert.False(t, IsTransient(ErrInvalidData))
}
