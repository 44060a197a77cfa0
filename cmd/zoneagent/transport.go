package main

import (
	"fmt"
	"log/slog"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/metric"
	"github.com/c360/zoneagent/natsclient"
	"github.com/c360/zoneagent/transport"
)

// buildTransport creates the zone transport selected by the configuration
func buildTransport(agentCfg *config.AgentConfig, logger *slog.Logger, metrics *metric.Metrics) (transport.Transport, error) {
	switch transport.Kind(agentCfg.Transport.Kind) {
	case transport.KindLoopback:
		logger.Warn("Using in-process loopback transport, no zone traffic leaves this process")
		return transport.NewLoopback(agentCfg.ID,
			transport.WithLoopbackLogger(logger),
			transport.WithLoopbackVersion(agentCfg.Transport.NATS.PayloadVersion),
		), nil
	case transport.KindNATS:
		nc := agentCfg.Transport.NATS
		return transport.NewNATS(agentCfg.ID,
			transport.WithNATSLogger(logger),
			transport.WithNATSMetrics(metrics),
			transport.WithConnectAttempts(agentCfg.Transport.ConnectAttempts),
			transport.WithVersion(nc.PayloadVersion),
			transport.WithResponseBatch(nc.ResponseBatch),
			transport.WithClientOptions(natsOptions(agentCfg.ID, nc)...),
		), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", agentCfg.Transport.Kind)
	}
}

// natsOptions turns the NATS settings into client options
func natsOptions(agentID string, nc config.NATSConfig) []natsclient.ClientOption {
	name := nc.Name
	if name == "" {
		name = agentID
	}
	opts := []natsclient.ClientOption{natsclient.WithName(name)}

	if nc.MaxReconnects != nil {
		opts = append(opts, natsclient.WithMaxReconnects(*nc.MaxReconnects))
	}
	if nc.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(nc.ReconnectWait.Std()))
	}
	if nc.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(nc.PingInterval.Std()))
	}
	if nc.Timeout > 0 {
		opts = append(opts, natsclient.WithTimeout(nc.Timeout.Std()))
	}
	if nc.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(nc.DrainTimeout.Std()))
	}
	switch {
	case nc.Token != "":
		opts = append(opts, natsclient.WithToken(nc.Token))
	case nc.Username != "":
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.TLSCert != "" || nc.TLSCA != "" {
		opts = append(opts, natsclient.WithTLS(nc.TLSCert, nc.TLSKey, nc.TLSCA))
	}
	return opts
}
