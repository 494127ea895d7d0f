package probes

import (
	"context"

	monitorredis "github.com/redash-ops/queue-monitor/internal/redis"
	"github.com/redis/go-redis/v9"
)

// LockKeyPattern matches the keys Redash sets while a query execution job is
// in flight.
const LockKeyPattern = "query_hash_job:*"

const defaultScanCount = 1000

// RedisKeyCounter counts keys with SCAN so large key spaces never block the
// server the way KEYS does.
type RedisKeyCounter struct {
	client    *redis.Client
	scanCount int64
}

// NewRedisKeyCounter creates a key counter over client
func NewRedisKeyCounter(client *redis.Client) *RedisKeyCounter {
	return &RedisKeyCounter{
		client:    client,
		scanCount: defaultScanCount,
	}
}

// CountKeys returns the number of distinct keys matching pattern
func (c *RedisKeyCounter) CountKeys(ctx context.Context, pattern string) (int64, error) {
	// SCAN may return a key more than once while the keyspace is rehashing.
	seen := make(map[string]struct{})

	iter := c.client.Scan(ctx, 0, pattern, c.scanCount).Iterator()
	for iter.Next(ctx) {
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return 0, monitorredis.Classify("redis.count_keys", err)
	}

	return int64(len(seen)), nil
}

// Ensure RedisKeyCounter implements KeyCounter
var _ KeyCounter = (*RedisKeyCounter)(nil)
