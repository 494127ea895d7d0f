// Queue Monitor - republishes Redash queue depths and query locks to StatsD
//
// A small sidecar that samples the job queues and the query-lock keys stored
// in Redis every few seconds and sends them to a StatsD daemon as gauges.
//
// Usage:
//
//	REDASH_REDIS_URL=redis://localhost:6379/0 REDASH_STATSD_HOST=statsd monitor
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	monitorredis "github.com/redash-ops/queue-monitor/internal/redis"
	"github.com/redash-ops/queue-monitor/pkg/config"
	"github.com/redash-ops/queue-monitor/pkg/emitter"
	"github.com/redash-ops/queue-monitor/pkg/poller"
	"github.com/redash-ops/queue-monitor/pkg/probes"
	"github.com/redash-ops/queue-monitor/pkg/probes/queue"
	"github.com/redash-ops/queue-monitor/pkg/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Handle --help or --version
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--help", "-h":
			printHelp(os.Stdout)
			os.Exit(0)
		case "--version", "-v":
			fmt.Printf("monitor %s (commit: %s, built: %s)\n", version, commit, date)
			os.Exit(0)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("Configuration error", "error", err)
		fmt.Fprintln(os.Stderr, "\nRun 'monitor --help' for usage information.")
		os.Exit(1)
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("Queue monitor", "version", version, "commit", commit[:min(7, len(commit))])

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, metrics, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create monitor", "error", err)
		os.Exit(1)
	}

	if err := p.Start(ctx); err != nil {
		logger.Error("Failed to start monitor", "error", err)
		os.Exit(1)
	}

	var srv *server.Server
	if metrics != nil {
		srv = server.New(cfg.MetricsAddr, server.NewRouter(metrics.Handler(), p), logger)
		if err := srv.Start(); err != nil {
			logger.Warn("Failed to start metrics listener", "error", err)
			srv = nil
		}
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	// Graceful shutdown
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics listener shutdown error", "error", err)
		}
	}
	if err := p.Stop(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
		os.Exit(1)
	}
}

// build opens the three handles and composes the poller. Handles are
// released by Poller.Stop, or here when construction fails half way.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*poller.Poller, *poller.Metrics, error) {
	var closers []io.Closer
	fail := func(err error) (*poller.Poller, *poller.Metrics, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, nil, err
	}

	em, err := emitter.NewStatsdEmitter(cfg.StatsdHost, cfg.StatsdPort)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, em)

	client, err := monitorredis.NewClientLazy(cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, client)

	// Non-fatal: the loop retries every interval
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("⚠️ Failed to connect to Redis, will retry every cycle", "error", err)
	}

	queueProbe, queueCloser, err := queue.NewProbe(cfg, client.Client)
	if err != nil {
		return fail(err)
	}
	if queueCloser != nil {
		closers = append(closers, queueCloser)
	}

	opts := []poller.Option{poller.WithLogger(logger)}
	for _, c := range closers {
		opts = append(opts, poller.WithCloser(c))
	}

	var metrics *poller.Metrics
	if cfg.MetricsAddr != "" {
		metrics = poller.NewMetrics()
		opts = append(opts, poller.WithMetrics(metrics))
	}

	if cfg.SelfStats {
		system, err := probes.NewGoSystemProbe()
		if err != nil {
			return fail(fmt.Errorf("failed to create system probe: %w", err))
		}
		opts = append(opts, poller.WithSystemProbe(system))
	}

	logger.Info("Monitoring queues",
		"driver", cfg.QueueDriver,
		"redis", client.Options().Addr,
		"statsd", em.Addr(),
	)

	p, err := poller.New(cfg, queueProbe, probes.NewRedisKeyCounter(client.Client), em, opts...)
	if err != nil {
		return fail(err)
	}
	return p, metrics, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `Usage: monitor [options]

The queue monitor samples Redash's job queues and query-lock keys in Redis
and sends them to StatsD as gauges:

  <prefix>.queue.<queue>.waiting   waiting jobs, one per queue
  <prefix>.query_locks             keys matching query_hash_job:*

Environment Variables:
  REDASH_REDIS_URL                Redis holding queues and locks (default: redis://localhost:6379/0)
  REDASH_STATSD_HOST              StatsD host (default: 127.0.0.1)
  REDASH_STATSD_PORT              StatsD port (default: 8125)
  REDASH_STATSD_PREFIX            Metric prefix (default: redash)
  REDASH_MONITOR_QUEUE_DRIVER     rq or asynq (default: rq)
  REDASH_MONITOR_QUEUE_REDIS_URL  Separate Redis for the queue system
  REDASH_MONITOR_INTERVAL         Sampling interval (default: 5s; the gauges above
                                  are defined as 5-second samples, change it only if
                                  your StatsD flush interval and dashboards agree)
  REDASH_MONITOR_SELF_STATS       Also emit the monitor's CPU and RSS (default: false)
  REDASH_MONITOR_METRICS_ADDR     Serve /metrics and /healthz on this address
  REDASH_MONITOR_LOG_LEVEL        debug, info, warn or error (default: info)
  REDASH_MONITOR_LOG_FORMAT       text or json (default: text)

Options:
  -h, --help      Show this help message
  -v, --version   Show version information

See also: monitor-inspect, which prints one sample without sending it.`)
}
