package queue

import (
	"fmt"
	"io"

	monitorredis "github.com/redash-ops/queue-monitor/internal/redis"
	"github.com/redash-ops/queue-monitor/pkg/config"
	"github.com/redash-ops/queue-monitor/pkg/probes"
	"github.com/redash-ops/queue-monitor/pkg/types"
	"github.com/redis/go-redis/v9"
)

// NewProbe builds the queue probe for cfg.QueueDriver. shared is the client
// already connected to cfg.RedisURL; the RQ probe reuses it unless a separate
// queue URL is configured. The returned closer is nil when nothing new was
// opened.
func NewProbe(cfg *config.Config, shared *redis.Client) (probes.QueueProbe, io.Closer, error) {
	switch cfg.QueueDriver {
	case types.DriverRQ:
		if cfg.QueueRedisURL == "" {
			return NewRQProbe(shared), nil, nil
		}
		c, err := monitorredis.NewClientLazy(cfg.QueueRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid queue redis URL: %w", err)
		}
		return NewRQProbe(c.Client), c, nil

	case types.DriverAsynq:
		p, err := NewAsynqProbeFromURI(cfg.QueueURL())
		if err != nil {
			return nil, nil, fmt.Errorf("invalid queue redis URL: %w", err)
		}
		return p, p, nil

	default:
		return nil, nil, &config.ConfigError{Field: "QueueDriver", Message: fmt.Sprintf("unsupported queue driver %q", cfg.QueueDriver)}
	}
}
