package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	AgentID    string
	ConfigPath string
	LogFormat  string
	EnvFile    string
	Validate   bool
}

func newRootCommand() *cobra.Command {
	cli := &CLIConfig{}

	cmd := &cobra.Command{
		Use:   appName + " <agentID> [configFile]",
		Short: "Run an agent that exchanges business objects with its zones",
		Long: `Runs one agent of a configuration file. The agent connects to every zone it
lists, broadcasts the events of its publishers, answers queries, and hands
events and query results to its subscribers until interrupted.

configFile defaults to ` + "SIFAgent" + `; a name without extension gets ".yaml".`,
		Example: `  # Run StudentAgent from ./SIFAgent.yaml
  ` + appName + ` StudentAgent

  # Check a configuration without connecting
  ` + appName + ` StudentAgent agents.yaml --validate

  # Load credentials from an env file, log as text
  ` + appName + ` StudentAgent agents.yaml --env-file .env --log-format text`,
		Version:       fmt.Sprintf("%s (build %s)", Version, BuildTime),
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.AgentID = args[0]
			if len(args) > 1 {
				cli.ConfigPath = args[1]
			}
			if err := validateFlags(cli); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			return run(cmd.Context(), cli)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cli.LogFormat, "log-format",
		getEnv("ZONEAGENT_LOG_FORMAT", ""),
		"Log format: json, text; overrides the agent configuration (env: ZONEAGENT_LOG_FORMAT)")
	flags.StringVar(&cli.EnvFile, "env-file",
		getEnv("ZONEAGENT_ENV_FILE", ""),
		"Load environment variables from this file before reading the configuration (env: ZONEAGENT_ENV_FILE)")
	flags.BoolVar(&cli.Validate, "validate", false, "Validate configuration and exit")

	return cmd
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.AgentID == "" {
		return fmt.Errorf("agent id is required")
	}
	switch cfg.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.EnvFile != "" {
		if _, err := os.Stat(cfg.EnvFile); err != nil {
			return fmt.Errorf("env file not found: %s", cfg.EnvFile)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
