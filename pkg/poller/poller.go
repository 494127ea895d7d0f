// Package poller provides the sampling loop that turns queue and lock state
// into gauges.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/redash-ops/queue-monitor/pkg/config"
	"github.com/redash-ops/queue-monitor/pkg/emitter"
	"github.com/redash-ops/queue-monitor/pkg/probes"
	"github.com/redash-ops/queue-monitor/pkg/types"
)

// Poller samples the queue system and the lock keys on a fixed interval and
// republishes them as gauges.
type Poller struct {
	namespace string
	interval  time.Duration
	logger    *slog.Logger

	// Handles, constructed by the caller and released by Stop
	queues  probes.QueueProbe
	locks   probes.KeyCounter
	emitter emitter.Emitter
	system  probes.SystemProbe // optional
	closers []io.Closer

	metrics *Metrics // optional

	// State
	lastSuccess time.Time
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
}

// Option is a functional option for configuring the Poller
type Option func(*Poller)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithSystemProbe makes every cycle also emit the monitor's own CPU and RSS
func WithSystemProbe(probe probes.SystemProbe) Option {
	return func(p *Poller) {
		p.system = probe
	}
}

// WithMetrics records cycle results on m
func WithMetrics(m *Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithCloser registers a handle to release on Stop. Closers run in reverse
// registration order.
func WithCloser(c io.Closer) Option {
	return func(p *Poller) {
		p.closers = append(p.closers, c)
	}
}

// New creates a poller over the given handles
func New(cfg *config.Config, queues probes.QueueProbe, locks probes.KeyCounter, em emitter.Emitter, opts ...Option) (*Poller, error) {
	if queues == nil || locks == nil || em == nil {
		return nil, errors.New("poller: queue probe, key counter and emitter are required")
	}
	if cfg.Interval <= 0 {
		return nil, &config.ConfigError{Field: "Interval", Message: "interval must be positive"}
	}

	p := &Poller{
		namespace: cfg.Namespace,
		interval:  cfg.Interval,
		logger:    slog.Default(),
		queues:    queues,
		locks:     locks,
		emitter:   em,
	}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Interval returns the pause between two cycles
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// LastSuccess returns when a cycle last emitted all its gauges. The zero time
// means no cycle has succeeded yet.
func (p *Poller) LastSuccess() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSuccess
}

// Start runs the sampling loop in the background until ctx is cancelled or
// Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Info("Queue monitor started",
		"namespace", p.namespace,
		"interval", p.interval,
		"lock_pattern", probes.LockKeyPattern,
	)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.Run(runCtx)
	}()

	return nil
}

// Stop ends the loop, abandoning an in-flight cycle, and releases the
// registered handles.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for sampling loop: %w", ctx.Err())
	}

	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			p.logger.Error("Failed to release handle", "error", err)
			errs = append(errs, err)
		}
	}

	p.logger.Info("Queue monitor stopped")
	return errors.Join(errs...)
}

// Run samples, sleeps for the interval and repeats until ctx is cancelled. A
// failed cycle is logged and the loop carries on with the next one. Run
// returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("Sampling cycle failed",
				"kind", types.KindOf(err),
				"error", err,
				"retry_in", p.interval,
			)
		}

		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Tick runs one sampling cycle. Queue gauges go out first, in the order the
// queue system listed them, then the lock-count gauge. The first error
// abandons the rest of the cycle.
func (p *Poller) Tick(ctx context.Context) error {
	start := time.Now()
	emitted, err := p.sample(ctx)
	elapsed := time.Since(start)

	p.metrics.observeCycle(err, elapsed, emitted)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.lastSuccess = time.Now()
	p.mu.Unlock()

	p.logger.Debug("Sampling cycle complete", "gauges", emitted, "duration", elapsed)
	return nil
}

func (p *Poller) sample(ctx context.Context) (int, error) {
	emitted := 0

	queues, err := p.queues.ListQueues(ctx)
	if err != nil {
		return emitted, fmt.Errorf("failed to list queues: %w", err)
	}
	p.metrics.observeQueues(queues)

	for _, q := range queues {
		name := QueueMetricName(p.namespace, q.Name)
		if err := p.emitter.Gauge(name, q.Waiting); err != nil {
			return emitted, fmt.Errorf("failed to emit queue gauge: %w", err)
		}
		emitted++
	}

	locks, err := p.locks.CountKeys(ctx, probes.LockKeyPattern)
	if err != nil {
		return emitted, fmt.Errorf("failed to count lock keys: %w", err)
	}
	p.metrics.observeLocks(locks)

	if err := p.emitter.Gauge(LockMetricName(p.namespace), locks); err != nil {
		return emitted, fmt.Errorf("failed to emit lock gauge: %w", err)
	}
	emitted++

	if p.system == nil {
		return emitted, nil
	}

	n, err := p.emitSelfStats()
	return emitted + n, err
}

// emitSelfStats sends the monitor's own CPU and RSS. A probe failure only
// skips these gauges; an emission failure fails the cycle.
func (p *Poller) emitSelfStats() (int, error) {
	metrics, err := p.system.GetMetrics()
	if err != nil {
		p.logger.Warn("System probe failed", "error", err)
		return 0, nil
	}

	gauges := []types.Gauge{
		{Name: selfMetricName(p.namespace, "cpu_percent"), Value: int64(math.Round(metrics.CPUPercent))},
		{Name: selfMetricName(p.namespace, "rss_bytes"), Value: int64(metrics.RSS)},
	}
	for i, g := range gauges {
		if err := p.emitter.Gauge(g.Name, g.Value); err != nil {
			return i, fmt.Errorf("failed to emit self stats: %w", err)
		}
	}
	return len(gauges), nil
}
