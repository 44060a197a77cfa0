package componentregistry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/registry"
	"github.com/c360/zoneagent/subscriber"
	"github.com/c360/zoneagent/types"
)

// LogHandlerConfig holds the options of the log subscriber
type LogHandlerConfig struct {
	Level string `mapstructure:"level"`
	// Delay simulates handler work per record
	Delay time.Duration `mapstructure:"delay"`
	// Payload adds the object data to each log line
	Payload bool `mapstructure:"payload"`
}

// LogHandler logs every record it is handed
type LogHandler struct {
	logger  *slog.Logger
	level   slog.Level
	delay   time.Duration
	payload bool

	events    atomic.Int64
	responses atomic.Int64
}

// NewLogHandler is the registry factory of the log subscriber
func NewLogHandler(cfg config.SubscriberConfig, deps registry.Dependencies) (subscriber.Handler, error) {
	opts := LogHandlerConfig{Level: "info"}
	if err := decodeOptions("LogHandler", cfg.Options, &opts); err != nil {
		return nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, errors.WrapInvalid(err, "LogHandler", "New", "level option")
	}
	if opts.Delay < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "LogHandler", "New", "delay cannot be negative")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{
		logger:  logger.With("subscriber", cfg.ID),
		level:   level,
		delay:   opts.Delay,
		payload: opts.Payload,
	}, nil
}

func (h *LogHandler) work(ctx context.Context) error {
	if h.delay <= 0 {
		return nil
	}
	t := time.NewTimer(h.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (h *LogHandler) attrs(obj message.Object, zone types.Zone, info mapping.Info, consumerID string) []any {
	attrs := []any{
		"consumer", consumerID,
		"zone", zone.ID,
		"object_type", obj.Type,
		"key", obj.Key,
		"message_id", info.Message.MessageID,
		"source_agent", info.Message.SourceAgent,
		"mapped", !info.Context.Empty(),
	}
	if h.payload {
		attrs = append(attrs, "payload", string(obj.Data))
	}
	return attrs
}

// ProcessEvent implements subscriber.Handler
func (h *LogHandler) ProcessEvent(ctx context.Context, event message.Event, zone types.Zone, info mapping.Info, consumerID string) error {
	h.events.Add(1)
	attrs := append(h.attrs(event.Object, zone, info, consumerID), "action", event.Action)
	h.logger.Log(ctx, h.level, "Event received", attrs...)
	return h.work(ctx)
}

// ProcessResponse implements subscriber.Handler
func (h *LogHandler) ProcessResponse(ctx context.Context, obj message.Object, zone types.Zone, info mapping.Info, consumerID string) error {
	h.responses.Add(1)
	h.logger.Log(ctx, h.level, "Query result received", h.attrs(obj, zone, info, consumerID)...)
	return h.work(ctx)
}

// Finalize implements subscriber.Handler
func (h *LogHandler) Finalize() {
	h.logger.Info("Log subscriber finalized",
		"events", h.events.Load(),
		"responses", h.responses.Load())
}

// Counts returns the number of events and query results handled
func (h *LogHandler) Counts() (events, responses int64) {
	return h.events.Load(), h.responses.Load()
}
