package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/zoneagent/metric"
)

// ClientOption configures a Client
type ClientOption func(*Client) error

// WithMaxReconnects sets the maximum reconnection attempts (-1 for unlimited)
func WithMaxReconnects(maxReconnects int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = maxReconnects
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait < 0 {
			return fmt.Errorf("reconnect wait cannot be negative")
		}
		c.reconnectWait = wait
		return nil
	}
}

// WithPingInterval sets the ping interval
func WithPingInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		c.pingInterval = interval
		return nil
	}
}

// WithHealthInterval sets the health check interval. Zero disables it.
func WithHealthInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		c.healthInterval = interval
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithZone names the zone this connection belongs to. It labels logs and metrics.
func WithZone(zone string) ClientOption {
	return func(c *Client) error {
		c.zone = zone
		return nil
	}
}

// WithMetrics records connection status, reconnects and circuit breaker
// state per zone.
func WithMetrics(metrics *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = metrics
		return nil
	}
}

// WithDisconnectCallback sets the disconnect callback
func WithDisconnectCallback(cb func(error)) ClientOption {
	return func(c *Client) error {
		c.onDisconnect = cb
		return nil
	}
}

// WithReconnectCallback sets the reconnect callback
func WithReconnectCallback(cb func()) ClientOption {
	return func(c *Client) error {
		c.onReconnect = cb
		return nil
	}
}

// WithCircuitBreakerThreshold sets the failures needed to open the circuit
func WithCircuitBreakerThreshold(threshold int) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit breaker threshold must be at least 1")
		}
		c.circuitThreshold = int32(threshold)
		return nil
	}
}

// WithMaxBackoff sets the maximum circuit breaker backoff
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("max backoff must be positive")
		}
		c.maxBackoff = d
		return nil
	}
}

// WithCredentials sets username/password authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTLS enables TLS with optional client certificate and CA
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return func(c *Client) error {
		c.tlsEnabled = true
		c.tlsCertFile = certFile
		c.tlsKeyFile = keyFile
		c.tlsCAFile = caFile
		return nil
	}
}

// WithName sets the client name reported to the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithTimeout sets the connection timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.timeout = timeout
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining on Close
func WithDrainTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = timeout
		return nil
	}
}

// WithMessageTimeout bounds the context handed to subscription handlers.
// Zero means handlers inherit the subscription context unchanged.
func WithMessageTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		c.messageTimeout = timeout
		return nil
	}
}
