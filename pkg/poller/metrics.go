package poller

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redash-ops/queue-monitor/pkg/types"
)

// Cycle results used as the "result" label
const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics describes the poller's own behavior. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	cycles       *prometheus.CounterVec
	duration     prometheus.Histogram
	gauges       prometheus.Counter
	lastSuccess  prometheus.Gauge
	queueWaiting *prometheus.GaugeVec
	queryLocks   prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_cycles_total",
				Help: "Sampling cycles grouped by result (success or the error kind)",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_cycle_duration_seconds",
			Help:    "Time spent sampling and emitting one cycle",
			Buckets: prometheus.DefBuckets,
		}),
		gauges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_gauges_emitted_total",
			Help: "Gauges handed to the metrics endpoint",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_last_success_timestamp_seconds",
			Help: "Unix time of the last fully emitted cycle",
		}),
		queueWaiting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "monitor_queue_waiting",
				Help: "Waiting jobs per queue as of the last listing",
			},
			[]string{"queue"},
		),
		queryLocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_query_locks",
			Help: "Query lock keys as of the last count",
		}),
	}

	m.Registry.MustRegister(
		m.cycles, m.duration, m.gauges, m.lastSuccess, m.queueWaiting, m.queryLocks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeCycle(err error, elapsed time.Duration, emitted int) {
	if m == nil {
		return
	}

	result := resultSuccess
	if err != nil {
		result = resultError
		if kind := types.KindOf(err); kind != "" {
			result = string(kind)
		}
	} else {
		m.lastSuccess.Set(float64(time.Now().Unix()))
	}

	m.cycles.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.gauges.Add(float64(emitted))
}

func (m *Metrics) observeQueues(queues []types.QueueSnapshot) {
	if m == nil {
		return
	}

	// Drop queues that disappeared since the last listing
	m.queueWaiting.Reset()
	for _, q := range queues {
		m.queueWaiting.WithLabelValues(q.Name).Set(float64(q.Waiting))
	}
}

func (m *Metrics) observeLocks(n int64) {
	if m == nil {
		return
	}
	m.queryLocks.Set(float64(n))
}
