// Package queue provides queue probe implementations.
package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"

	monitorredis "github.com/redash-ops/queue-monitor/internal/redis"
	"github.com/redash-ops/queue-monitor/pkg/probes"
	"github.com/redash-ops/queue-monitor/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RQ key patterns:
//   - Registry: rq:queues (Set of queue keys)
//   - Waiting: rq:queue:{name} (List of job ids)
const (
	rqQueuesKey   = "rq:queues"
	rqQueuePrefix = "rq:queue:"
)

// RQProbe lists every queue registered by RQ workers and enqueuers
type RQProbe struct {
	client *redis.Client
}

// NewRQProbe creates a probe for the RQ queues stored in client
func NewRQProbe(client *redis.Client) *RQProbe {
	return &RQProbe{client: client}
}

// ListQueues returns one snapshot per registered queue, ordered by name
func (p *RQProbe) ListQueues(ctx context.Context) ([]types.QueueSnapshot, error) {
	keys, err := p.client.SMembers(ctx, rqQueuesKey).Result()
	if err != nil {
		return nil, monitorredis.Classify("rq.list_queues", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	names := make([]string, len(keys))
	for i, key := range keys {
		name, ok := strings.CutPrefix(key, rqQueuePrefix)
		if !ok || name == "" {
			return nil, types.NewQueryError("rq.list_queues", fmt.Errorf("unexpected member %q in %s", key, rqQueuesKey))
		}
		names[i] = name
	}

	// Use pipeline for efficiency
	pipe := p.client.Pipeline()
	lengths := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		lengths[i] = pipe.LLen(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, monitorredis.Classify("rq.queue_length", err)
	}

	snapshots := make([]types.QueueSnapshot, len(keys))
	for i, name := range names {
		snapshots[i] = types.QueueSnapshot{
			Name:    name,
			Driver:  types.DriverRQ,
			Waiting: lengths[i].Val(),
		}
	}
	return snapshots, nil
}

// Ensure RQProbe implements QueueProbe
var _ probes.QueueProbe = (*RQProbe)(nil)
