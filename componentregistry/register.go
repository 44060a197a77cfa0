// Package componentregistry registers the built-in publisher sources and
// subscriber handlers shipped with zoneagent.
package componentregistry

import (
	"errors"

	"github.com/mitchellh/mapstructure"

	pkgerrors "github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/registry"
)

// Factory names
const (
	FilePublisher  = "file"
	LogSubscriber  = "log"
	FileSubscriber = "jsonl"
	HTTPSubscriber = "webhook"
)

// Register registers all built-in factories with the provided registry:
//
//   - file publisher: events and query responses read from a JSON file
//   - log subscriber: logs every record it receives
//   - jsonl subscriber: appends every record to a JSON Lines file
//   - webhook subscriber: posts every record to an HTTP endpoint
func Register(r *registry.Registry) error {
	if r == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := r.RegisterPublisher(FilePublisher,
		"Publishes objects read from <dir>/<object type>.json", NewFileSource); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "file publisher registration")
	}

	if err := r.RegisterSubscriber(LogSubscriber,
		"Logs every event and query result", NewLogHandler); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "log subscriber registration")
	}

	if err := r.RegisterSubscriber(FileSubscriber,
		"Appends every event and query result to a JSON Lines file", NewFileSink); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "jsonl subscriber registration")
	}

	if err := r.RegisterSubscriber(HTTPSubscriber,
		"Posts every event and query result to an HTTP endpoint", NewWebhook); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "webhook subscriber registration")
	}

	return nil
}

// decodeOptions decodes the free-form options block of an entity into out.
// Unknown keys are rejected so typos surface at build time.
func decodeOptions(component string, opts map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return pkgerrors.WrapFatal(err, component, "decodeOptions", "create decoder")
	}
	if err := decoder.Decode(opts); err != nil {
		return pkgerrors.WrapInvalid(err, component, "decodeOptions", "decode options")
	}
	return nil
}
