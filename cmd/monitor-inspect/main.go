// monitor-inspect takes one sample with the monitor's configuration and
// prints the gauges it would send, without contacting StatsD.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	monitorredis "github.com/redash-ops/queue-monitor/internal/redis"
	"github.com/redash-ops/queue-monitor/pkg/config"
	"github.com/redash-ops/queue-monitor/pkg/emitter"
	"github.com/redash-ops/queue-monitor/pkg/poller"
	"github.com/redash-ops/queue-monitor/pkg/probes"
	"github.com/redash-ops/queue-monitor/pkg/probes/queue"
)

func main() {
	if err := run(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := monitorredis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	queueProbe, queueCloser, err := queue.NewProbe(cfg, client.Client)
	if err != nil {
		return err
	}
	if queueCloser != nil {
		defer queueCloser.Close()
	}

	fmt.Fprintf(out, "Redis: %s (driver %s)\n", client.Options().Addr, cfg.QueueDriver)
	fmt.Fprintf(out, "Would send to %s:%d:\n\n", cfg.StatsdHost, cfg.StatsdPort)

	p, err := poller.New(cfg, queueProbe, probes.NewRedisKeyCounter(client.Client), emitter.NewWriterEmitter(out),
		poller.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return err
	}
	return p.Tick(ctx)
}
