package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redash-ops/queue-monitor/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.SAdd(ctx, "rq:queues", "rq:queue:default", "rq:queue:emails").Err())
	require.NoError(t, client.RPush(ctx, "rq:queue:default", "a", "b", "c").Err())
	require.NoError(t, client.Set(ctx, "query_hash_job:1", "x", 0).Err())
	require.NoError(t, client.Set(ctx, "query_hash_job:2", "y", 0).Err())

	t.Setenv(config.EnvRedisURL, "redis://"+mr.Addr()+"/0")
	t.Setenv(config.EnvStatsdPrefix, "redash")
	t.Setenv(config.EnvQueueDriver, "rq")
	t.Setenv(config.EnvQueueRedisURL, "")
	t.Setenv(config.EnvInterval, "5s")

	var out bytes.Buffer
	require.NoError(t, run(&out))

	require.Contains(t, out.String(),
		"redash.queue.default.waiting 3\nredash.queue.emails.waiting 0\nredash.query_locks 2\n")
}

func TestRunUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	t.Setenv(config.EnvRedisURL, "redis://"+addr+"/0")
	t.Setenv(config.EnvQueueDriver, "rq")
	t.Setenv(config.EnvInterval, "5s")

	var out bytes.Buffer
	require.Error(t, run(&out))
}
