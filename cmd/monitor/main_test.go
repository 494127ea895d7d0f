package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/redash-ops/queue-monitor/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LogFormat = "json"

		var buf bytes.Buffer
		newLogger(cfg, &buf).Info("Sampling cycle failed", "kind", "connectivity")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, "connectivity", line["kind"])
	})

	t.Run("level filters debug", func(t *testing.T) {
		cfg := config.DefaultConfig()

		var buf bytes.Buffer
		newLogger(cfg, &buf).Debug("Sampling cycle complete")
		require.Empty(t, buf.String())
	})
}

func TestBuildUnresolvableStatsdHost(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StatsdHost = "statsd.invalid"

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	_, _, err := build(ctx, cfg, newLogger(cfg, &bytes.Buffer{}))
	require.Error(t, err)
}

func TestPrintHelp(t *testing.T) {
	var buf bytes.Buffer
	printHelp(&buf)

	require.Contains(t, buf.String(), "REDASH_MONITOR_INTERVAL")
	require.Contains(t, buf.String(), "defined as 5-second samples")
	require.Contains(t, buf.String(), "<prefix>.query_locks")
}
