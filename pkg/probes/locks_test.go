package probes

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redash-ops/queue-monitor/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisKeyCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	counter := NewRedisKeyCounter(client)

	t.Run("no keys", func(t *testing.T) {
		n, err := counter.CountKeys(ctx, LockKeyPattern)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("only matching keys counted", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "query_hash_job:abc", "job-1", 0).Err())
		require.NoError(t, client.Set(ctx, "query_hash_job:def", "job-2", 0).Err())
		require.NoError(t, client.Set(ctx, "query_result:1", "x", 0).Err())
		require.NoError(t, client.SAdd(ctx, "rq:queues", "rq:queue:default").Err())

		n, err := counter.CountKeys(ctx, LockKeyPattern)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
	})

	t.Run("spans several scan pages", func(t *testing.T) {
		small := &RedisKeyCounter{client: client, scanCount: 7}
		for i := 0; i < 50; i++ {
			require.NoError(t, client.Set(ctx, fmt.Sprintf("query_hash_job:bulk-%d", i), "j", 0).Err())
		}

		n, err := small.CountKeys(ctx, LockKeyPattern)
		require.NoError(t, err)
		require.EqualValues(t, 52, n)
	})
}

func TestRedisKeyCounterUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisKeyCounter(client).CountKeys(context.Background(), LockKeyPattern)
	require.Error(t, err)
	require.True(t, types.IsKind(err, types.KindConnectivity))
}

func TestGoSystemProbe(t *testing.T) {
	probe, err := NewGoSystemProbe()
	require.NoError(t, err)

	metrics, err := probe.GetMetrics()
	require.NoError(t, err)
	require.Positive(t, metrics.PID)
	require.Positive(t, metrics.RSS)
	require.GreaterOrEqual(t, metrics.CPUPercent, 0.0)
	require.LessOrEqual(t, metrics.CPUPercent, 100.0)
}
