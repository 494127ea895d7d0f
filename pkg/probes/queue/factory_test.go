package queue

import (
	"testing"

	"github.com/redash-ops/queue-monitor/pkg/config"
	"github.com/redash-ops/queue-monitor/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestNewProbe(t *testing.T) {
	_, shared := newRedis(t)

	t.Run("rq reuses shared client", func(t *testing.T) {
		cfg := config.DefaultConfig()

		probe, closer, err := NewProbe(cfg, shared)
		require.NoError(t, err)
		require.Nil(t, closer)
		require.IsType(t, &RQProbe{}, probe)
		require.Same(t, shared, probe.(*RQProbe).client)
	})

	t.Run("rq with separate URL", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.QueueRedisURL = "redis://localhost:6390/3"

		probe, closer, err := NewProbe(cfg, shared)
		require.NoError(t, err)
		require.NotNil(t, closer)
		require.NotSame(t, shared, probe.(*RQProbe).client)
		require.NoError(t, closer.Close())
	})

	t.Run("asynq", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.QueueDriver = types.DriverAsynq

		probe, closer, err := NewProbe(cfg, shared)
		require.NoError(t, err)
		require.IsType(t, &AsynqProbe{}, probe)
		require.NoError(t, closer.Close())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.QueueDriver = "sidekiq"

		_, _, err := NewProbe(cfg, shared)
		var cfgErr *config.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})
}
