// Package main implements the entry point of a zone agent: it loads the
// configuration of one agent, builds its publishers and subscribers, connects
// its zones and runs until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/c360/zoneagent/agent"
	"github.com/c360/zoneagent/componentregistry"
	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/entity"
	"github.com/c360/zoneagent/mapping"
	"github.com/c360/zoneagent/metric"
	"github.com/c360/zoneagent/registry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "zoneagent"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("Agent failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, cli *CLIConfig) error {
	if cli.EnvFile != "" {
		if err := godotenv.Load(cli.EnvFile); err != nil {
			return fmt.Errorf("load env file %s: %w", cli.EnvFile, err)
		}
	}

	path := config.ResolvePath(cli.ConfigPath)
	file, agentCfg, err := loadConfig(path, cli.AgentID)
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(agentCfg, cli.LogFormat)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("Starting zone agent",
		"version", Version,
		"build_time", BuildTime,
		"config_path", path,
		"debug_level", agentCfg.DebugLevel.String())

	// Entities are built before anything touches the network so that
	// --validate also catches unknown factories and bad options.
	reg := registry.New()
	if err := componentregistry.Register(reg); err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	slog.Debug("Component factories registered", "factories", reg.List())

	publishers, subscribers, err := reg.Build(agentCfg, logger)
	if err != nil {
		return fmt.Errorf("build entities: %w", err)
	}

	if cli.Validate {
		logger.Info("Configuration is valid",
			"zones", agentCfg.Zones.IDs(),
			"publishers", len(publishers),
			"subscribers", len(subscribers))
		return nil
	}

	resolver, err := mapping.NewProfileResolver(agentCfg.MappingProfile, file.MappingRules(agentCfg.MappingProfile))
	if err != nil {
		return fmt.Errorf("mapping profile %s: %w", agentCfg.MappingProfile, err)
	}

	metricsRegistry := metric.NewMetricsRegistry()
	zoneTransport, err := buildTransport(agentCfg, logger, metricsRegistry.CoreMetrics())
	if err != nil {
		return err
	}

	ectx := &entity.Context{
		AgentID:       agentCfg.ID,
		ApplicationID: agentCfg.ApplicationID,
		Zones:         agentCfg.Zones,
		Config:        agentCfg,
		Mappings:      resolver,
		Transport:     zoneTransport,
		Logger:        logger,
		Registry:      metricsRegistry,
		Tracer:        otel.Tracer(appName),
	}

	orchestrator, err := agent.New(ectx)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	if agentCfg.Metrics.Port > 0 {
		server := metric.NewServer(agentCfg.Metrics.Port, agentCfg.Metrics.Path, metricsRegistry,
			func() (any, bool) {
				status := orchestrator.Health()
				return status, status.IsHealthy()
			})
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("Metrics server started", "address", server.Address())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(stopCtx); err != nil {
				logger.Warn("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := orchestrator.Run(signalCtx, publishers, subscribers); err != nil {
		return fmt.Errorf("run agent %s: %w", agentCfg.ID, err)
	}
	logger.Info("Zone agent shutdown complete")
	return nil
}

// loadConfig loads the configuration file and selects the agent section
func loadConfig(path, agentID string) (*config.File, *config.AgentConfig, error) {
	loader := config.NewLoader()
	file, err := loader.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	agentCfg, err := file.Agent(agentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return file, agentCfg, nil
}
