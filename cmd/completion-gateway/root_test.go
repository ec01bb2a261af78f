package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitbuilder587/completion-gateway/internal/config"
	"github.com/kitbuilder587/completion-gateway/internal/metrics"
)

func writeEnvFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func testMetrics() *metrics.Metrics {
	reg := prometheus.NewRegistry()
	return metrics.NewWithRegistry(reg, reg)
}

func TestNewGateway_MissingKeyRefusesToStart(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	envFile := filepath.Join(t.TempDir(), ".env")
	writeEnvFile(t, envFile, "ALERT_WEBHOOK_URL=http://localhost:5678/webhook\n")

	_, err := newGateway(&options{envFile: envFile}, testMetrics())

	require.Error(t, err)
	var cfgErr *config.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{config.EnvAPIKey}, cfgErr.MissingFields)
}

func TestNewGateway_AddrFlagOverridesEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	writeEnvFile(t, envFile, "OPENROUTER_API_KEY=sk-file-11111\nLISTEN_ADDR=:9999\n")

	gw, err := newGateway(&options{envFile: envFile, addr: "127.0.0.1:0"}, testMetrics())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", gw.cfg.Server.Addr)
	assert.Equal(t, "sk-file-11111", gw.store.Current().APIKey)
}

func TestServe_SighupReloadsAndSigtermStops(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	writeEnvFile(t, envFile, "OPENROUTER_API_KEY=sk-first-11111\n")

	gw, err := newGateway(&options{envFile: envFile, addr: "127.0.0.1:0"}, testMetrics())
	require.NoError(t, err)

	sigCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- gw.serve(context.Background(), sigCh) }()

	writeEnvFile(t, envFile, "OPENROUTER_API_KEY=sk-second-22222\n")
	sigCh <- syscall.SIGHUP

	require.Eventually(t, func() bool {
		return gw.store.Current().APIKey == "sk-second-22222"
	}, 2*time.Second, 10*time.Millisecond)

	sigCh <- syscall.SIGTERM

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after SIGTERM")
	}
}

func TestServe_ContextCancelStops(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	writeEnvFile(t, envFile, "OPENROUTER_API_KEY=sk-first-11111\n")

	gw, err := newGateway(&options{envFile: envFile, addr: "127.0.0.1:0"}, testMetrics())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.serve(ctx, make(chan os.Signal)) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := rootCmd()

	envFlag := cmd.Flags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)

	require.NotNil(t, cmd.Flags().Lookup("addr"))
}
