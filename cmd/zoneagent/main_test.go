package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/metric"
	"github.com/c360/zoneagent/transport"
)

const agentsYAML = `
thread_start_delay: 1h
agents:
  TestAgent:
    test_mode: true
    work_dir: ${WORK_DIR}
    log:
      format: text
    zones:
      - id: ZoneA
        url: nats://localhost:4222
    publishers:
      - id: StudentPublisher
        factory: file
        object_type: StudentPersonal
    subscribers:
      - id: StudentLogger
        factory: log
        object_type: StudentPersonal
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WORK_DIR", dir)
	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateFlags(t *testing.T) {
	assert.NoError(t, validateFlags(&CLIConfig{AgentID: "a"}))
	assert.NoError(t, validateFlags(&CLIConfig{AgentID: "a", LogFormat: "text"}))
	assert.Error(t, validateFlags(&CLIConfig{}))
	assert.Error(t, validateFlags(&CLIConfig{AgentID: "a", LogFormat: "xml"}))
	assert.Error(t, validateFlags(&CLIConfig{AgentID: "a", EnvFile: filepath.Join(t.TempDir(), "missing.env")}))
}

func TestRootCommand_Args(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())

	cmd = newRootCommand()
	cmd.SetArgs([]string{"a", "b", "c"})
	assert.Error(t, cmd.Execute())
}

func TestRootCommand_Validate(t *testing.T) {
	path := writeConfig(t, agentsYAML)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"TestAgent", path, "--validate"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
}

func TestRootCommand_UnknownAgent(t *testing.T) {
	path := writeConfig(t, agentsYAML)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"OtherAgent", path, "--validate"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrAgentNotFound)
}

func TestRootCommand_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "agent.env")
	require.NoError(t, os.WriteFile(envFile, []byte("ZONEAGENT_TEST_ZONE_URL=nats://zone-from-env:4222\n"), 0644))

	path := writeConfig(t, `
agents:
  TestAgent:
    test_mode: true
    zones:
      - id: ZoneA
        url: ${ZONEAGENT_TEST_ZONE_URL}
`)
	t.Cleanup(func() { _ = os.Unsetenv("ZONEAGENT_TEST_ZONE_URL") })

	cmd := newRootCommand()
	cmd.SetArgs([]string{"TestAgent", path, "--validate", "--env-file", envFile})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	path := writeConfig(t, agentsYAML)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, &CLIConfig{AgentID: "TestAgent", ConfigPath: path})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestSetupLogger_File(t *testing.T) {
	dir := t.TempDir()
	logger, closeLog, err := setupLogger(&config.AgentConfig{
		ID:         "TestAgent",
		DebugLevel: config.DebugAll,
		Log:        config.LogConfig{Format: "json", Dir: dir, Name: "test"},
	}, "text")
	require.NoError(t, err)

	logger.Debug("hello")
	closeLog()

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
	assert.Contains(t, string(data), "agent=TestAgent")
}

func TestBuildTransport(t *testing.T) {
	logger, _, err := setupLogger(&config.AgentConfig{ID: "a"}, "json")
	require.NoError(t, err)
	metrics := metric.NewMetrics()

	tp, err := buildTransport(&config.AgentConfig{ID: "a",
		Transport: config.TransportConfig{Kind: string(transport.KindLoopback)}}, logger, metrics)
	require.NoError(t, err)
	assert.IsType(t, &transport.Loopback{}, tp)

	tp, err = buildTransport(&config.AgentConfig{ID: "a",
		Transport: config.TransportConfig{Kind: string(transport.KindNATS), ConnectAttempts: 2}}, logger, metrics)
	require.NoError(t, err)
	assert.IsType(t, &transport.NATS{}, tp)

	_, err = buildTransport(&config.AgentConfig{ID: "a",
		Transport: config.TransportConfig{Kind: "carrier-pigeon"}}, logger, metrics)
	assert.Error(t, err)
}

func TestNATSOptions(t *testing.T) {
	reconnects := 5
	opts := natsOptions("a", config.NATSConfig{
		Username:      "user",
		Password:      "secret",
		MaxReconnects: &reconnects,
		ReconnectWait: config.Duration(time.Second),
		PingInterval:  config.Duration(10 * time.Second),
		TLSCA:         "/etc/ca.pem",
	})
	// name, reconnects, wait, ping, credentials, tls
	assert.Len(t, opts, 6)

	assert.Len(t, natsOptions("a", config.NATSConfig{}), 1)
}
