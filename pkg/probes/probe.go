// Package probes provides interfaces and implementations for sampling the
// systems the monitor watches.
package probes

import (
	"context"

	"github.com/redash-ops/queue-monitor/pkg/types"
)

// QueueProbe lists the queues known to a job-queue system with their
// waiting counts.
type QueueProbe interface {
	ListQueues(ctx context.Context) ([]types.QueueSnapshot, error)
}

// KeyCounter counts keys in a key-value store matching a glob pattern
type KeyCounter interface {
	CountKeys(ctx context.Context, pattern string) (int64, error)
}

// SystemProbe collects metrics about the monitor process itself
type SystemProbe interface {
	GetMetrics() (*SystemMetrics, error)
}

// SystemMetrics contains the collected process information
type SystemMetrics struct {
	PID        int
	CPUPercent float64 // Share of total machine capacity (0-100)
	RSS        uint64  // Resident set size in bytes
	Uptime     float64 // seconds
}
