// Package redis provides Redis client utilities for the monitor.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redash-ops/queue-monitor/pkg/types"
	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 2 * time.Second
	ioTimeout   = 2 * time.Second
)

// Client wraps go-redis client with convenience methods
type Client struct {
	*redis.Client
}

// ParseRedisURL parses a redis:// or rediss:// URL and returns options with
// the monitor's timeouts applied. A cycle should never hang on a dead server.
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty Redis URL")
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = dialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = ioTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = ioTimeout
	}
	// One retry is enough; the sampling interval already retries.
	opts.MaxRetries = 1

	return opts, nil
}

// NewClient creates a new Redis client from URL and tests the connection
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	c, err := NewClientLazy(redisURL)
	if err != nil {
		return nil, err
	}

	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Client.Close()
		return nil, Classify("redis.ping", err)
	}

	return c, nil
}

// NewClientLazy creates a client without testing connection
func NewClientLazy(redisURL string) (*Client, error) {
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &Client{Client: redis.NewClient(opts)}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.Client.Close()
}

// Classify maps a go-redis error onto the monitor's error kinds. Error
// replies from the server are query errors; everything else (refused dials,
// timeouts, a closed pool) means the server could not be talked to.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *types.Error
	if errors.As(err, &classified) {
		return err
	}

	var reply redis.Error
	if errors.As(err, &reply) {
		return types.NewQueryError(op, err)
	}

	return types.NewConnectivityError(op, err)
}
