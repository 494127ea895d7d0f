package queue

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"sort"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redash-ops/queue-monitor/pkg/probes"
	"github.com/redash-ops/queue-monitor/pkg/types"
	"github.com/redis/go-redis/v9"
)

// inspector is the subset of *asynq.Inspector the probe needs
type inspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// AsynqProbe lists asynq queues and their pending task counts
type AsynqProbe struct {
	inspector inspector
}

// NewAsynqProbe creates a probe from an asynq Redis connection option
func NewAsynqProbe(opt asynq.RedisConnOpt) *AsynqProbe {
	return &AsynqProbe{inspector: asynq.NewInspector(opt)}
}

// NewAsynqProbeFromURI creates a probe from a redis:// URI
func NewAsynqProbeFromURI(uri string) (*AsynqProbe, error) {
	opt, err := asynq.ParseRedisURI(uri)
	if err != nil {
		return nil, err
	}
	return NewAsynqProbe(opt), nil
}

// ListQueues returns one snapshot per asynq queue, ordered by name
func (p *AsynqProbe) ListQueues(ctx context.Context) ([]types.QueueSnapshot, error) {
	names, err := p.inspector.Queues()
	if err != nil {
		return nil, classifyAsynq("asynq.list_queues", err)
	}
	sort.Strings(names)

	snapshots := make([]types.QueueSnapshot, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, types.NewConnectivityError("asynq.queue_info", err)
		}

		info, err := p.inspector.GetQueueInfo(name)
		if err != nil {
			if p.deleted(name) {
				continue
			}
			return nil, classifyAsynq("asynq.queue_info", err)
		}

		snapshots = append(snapshots, types.QueueSnapshot{
			Name:    name,
			Driver:  types.DriverAsynq,
			Waiting: int64(info.Pending),
		})
	}
	return snapshots, nil
}

// deleted reports whether name left the queue registry since it was listed.
// asynq's not-found error does not wrap ErrQueueNotFound, so the registry is
// read again instead of matching the error.
func (p *AsynqProbe) deleted(name string) bool {
	names, err := p.inspector.Queues()
	if err != nil {
		return false
	}
	return !slices.Contains(names, name)
}

// Close releases the inspector's Redis connection
func (p *AsynqProbe) Close() error {
	return p.inspector.Close()
}

// classifyAsynq maps inspector errors onto the monitor's error kinds. asynq
// wraps Redis replies in its own error type, so only transport failures are
// connectivity errors and everything else is a query error.
func classifyAsynq(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *types.Error
	if errors.As(err, &classified) {
		return err
	}

	if isTransportError(err) {
		return types.NewConnectivityError(op, err)
	}
	return types.NewQueryError(op, err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// asynq may flatten the cause into its message
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no such host",
		"client is closed",
		"dial tcp",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Ensure AsynqProbe implements QueueProbe
var _ probes.QueueProbe = (*AsynqProbe)(nil)
