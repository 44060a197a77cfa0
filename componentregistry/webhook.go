package componentregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/pkg/retry"
	"github.com/c360/zoneagent/registry"
	"github.com/c360/zoneagent/subscriber"
	"github.com/c360/zoneagent/types"
)

// WebhookConfig holds the options of the webhook subscriber
type WebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	RetryCount  int               `mapstructure:"retry_count"`
	ContentType string            `mapstructure:"content_type"`
}

// Validate checks the configuration for errors
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebhookConfig", "Validate", "url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "WebhookConfig", "Validate", "invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebhookConfig", "Validate",
			"url scheme must be http or https")
	}
	if c.Timeout < 0 || c.Timeout > 5*time.Minute {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebhookConfig", "Validate",
			"timeout must be between 0 and 5m")
	}
	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebhookConfig", "Validate",
			"retry_count must be between 0 and 10")
	}
	return nil
}

// Webhook posts every record it is handed, as a JSON Record, to an HTTP
// endpoint. Network errors and 5xx answers are retried with backoff; other
// non-2xx answers fail the record immediately.
type Webhook struct {
	url         string
	headers     map[string]string
	contentType string
	retry       retry.Config
	httpClient  *http.Client
	logger      *slog.Logger

	sent    atomic.Int64
	retried atomic.Int64
	failed  atomic.Int64
}

// NewWebhook is the registry factory of the webhook subscriber
func NewWebhook(cfg config.SubscriberConfig, deps registry.Dependencies) (subscriber.Handler, error) {
	opts := WebhookConfig{
		Timeout:     30 * time.Second,
		RetryCount:  3,
		ContentType: "application/json",
	}
	if err := decodeOptions("Webhook", cfg.Options, &opts); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Webhook{
		url:         opts.URL,
		headers:     opts.Headers,
		contentType: opts.ContentType,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		logger:      logger.With("subscriber", cfg.ID, "url", opts.URL),
	}
	w.retry = retry.DefaultConfig()
	w.retry.MaxAttempts = opts.RetryCount + 1
	w.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		w.retried.Add(1)
		w.logger.Warn("Webhook post failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	return w, nil
}

// Counts returns the records sent, the retries made and the records that
// could not be delivered
func (w *Webhook) Counts() (sent, retried, failed int64) {
	return w.sent.Load(), w.retried.Load(), w.failed.Load()
}

func (w *Webhook) deliver(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		w.failed.Add(1)
		return errors.WrapInvalid(err, "Webhook", "deliver", "encode record")
	}

	if err := retry.Do(ctx, w.retry, func() error { return w.post(ctx, body) }); err != nil {
		w.failed.Add(1)
		return errors.WrapDelivery(err, "Webhook", "deliver", "post record")
	}
	w.sent.Add(1)
	return nil
}

// post sends a single HTTP POST request
func (w *Webhook) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", w.contentType)
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// drain so the connection is reused
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	default:
		return retry.NonRetryable(fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}
}

// ProcessEvent implements subscriber.Handler
func (w *Webhook) ProcessEvent(ctx context.Context, event message.Event, zone types.Zone, info mapping.Info, consumerID string) error {
	return w.deliver(ctx, Record{
		Kind:        message.KindEvent.String(),
		Zone:        zone.ID,
		Action:      event.Action,
		Object:      event.Object,
		MessageID:   info.Message.MessageID,
		SourceAgent: info.Message.SourceAgent,
		Consumer:    consumerID,
		ReceivedAt:  time.Now().UTC(),
	})
}

// ProcessResponse implements subscriber.Handler
func (w *Webhook) ProcessResponse(ctx context.Context, obj message.Object, zone types.Zone, info mapping.Info, consumerID string) error {
	return w.deliver(ctx, Record{
		Kind:        message.KindQueryResult.String(),
		Zone:        zone.ID,
		Object:      obj,
		MessageID:   info.Message.MessageID,
		SourceAgent: info.Message.SourceAgent,
		Consumer:    consumerID,
		ReceivedAt:  time.Now().UTC(),
	})
}

// Finalize implements subscriber.Handler
func (w *Webhook) Finalize() {
	w.httpClient.CloseIdleConnections()
	sent, retried, failed := w.Counts()
	w.logger.Info("Webhook subscriber finalized", "sent", sent, "retried", retried, "failed", failed)
}
