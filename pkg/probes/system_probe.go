package probes

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// GoSystemProbe implements SystemProbe using gopsutil
type GoSystemProbe struct {
	startTime time.Time
	proc      *process.Process
	cores     int

	mu sync.Mutex
}

// NewGoSystemProbe creates a system probe for the current process
func NewGoSystemProbe() (*GoSystemProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	// Core count - fallback to runtime.NumCPU()
	cores := runtime.NumCPU()
	if c, err := cpu.Counts(true); err == nil && c > 0 {
		cores = c
	}

	probe := &GoSystemProbe{
		startTime: time.Now(),
		proc:      p,
		cores:     cores,
	}

	// Prime the CPU baseline so the first real sample covers one interval
	_, _ = p.Percent(0)

	return probe, nil
}

// GetMetrics collects current process metrics. CPU usage covers the time
// since the previous call.
func (p *GoSystemProbe) GetMetrics() (*SystemMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cpuPercent := 0.0
	if pct, err := p.proc.Percent(0); err == nil {
		// gopsutil returns percentage of ONE core (up to 100 * cores)
		// We normalize it to total system capacity (0-100)
		cpuPercent = round(pct/float64(p.cores), 2)
	}

	var rss uint64
	if memInfo, err := p.proc.MemoryInfo(); err == nil {
		rss = memInfo.RSS
	} else {
		// Fallback to Go runtime memory stats
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		rss = m.Sys
	}

	return &SystemMetrics{
		PID:        os.Getpid(),
		CPUPercent: cpuPercent,
		RSS:        rss,
		Uptime:     time.Since(p.startTime).Seconds(),
	}, nil
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	shift := float64(1)
	for i := 0; i < decimals; i++ {
		shift *= 10
	}
	return float64(int(val*shift+0.5)) / shift
}

// Ensure GoSystemProbe implements SystemProbe
var _ SystemProbe = (*GoSystemProbe)(nil)
