// Package emitter publishes gauges to a metrics endpoint.
package emitter

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/cactus/go-statsd-client/v5/statsd"
	"github.com/redash-ops/queue-monitor/pkg/types"
)

// Emitter writes gauges. Implementations are fire-and-forget: a nil error
// means the write left the process, not that the collector stored it.
type Emitter interface {
	Gauge(name string, value int64) error
}

// StatsdEmitter sends each gauge as one unbuffered StatsD datagram
type StatsdEmitter struct {
	client statsd.Statter
	addr   string
}

// NewStatsdEmitter creates an emitter for the StatsD daemon at host:port. The
// address is resolved here, so an unresolvable host fails at startup.
func NewStatsdEmitter(host string, port int) (*StatsdEmitter, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	// No prefix: metric names arrive fully qualified
	client, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address:     addr,
		UseBuffered: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client for %s: %w", addr, err)
	}

	return &StatsdEmitter{client: client, addr: addr}, nil
}

// Addr returns the daemon address gauges are sent to
func (e *StatsdEmitter) Addr() string {
	return e.addr
}

// Gauge sends name:value|g
func (e *StatsdEmitter) Gauge(name string, value int64) error {
	if err := e.client.Gauge(name, value, 1.0); err != nil {
		return types.NewEmissionError("statsd.gauge", fmt.Errorf("%s: %w", name, err))
	}
	return nil
}

// Close releases the UDP socket
func (e *StatsdEmitter) Close() error {
	return e.client.Close()
}

// WriterEmitter prints gauges as "name value" lines. Used for dry runs.
type WriterEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterEmitter creates an emitter printing to w
func NewWriterEmitter(w io.Writer) *WriterEmitter {
	return &WriterEmitter{w: w}
}

// Gauge prints one line
func (e *WriterEmitter) Gauge(name string, value int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintf(e.w, "%s %d\n", name, value); err != nil {
		return types.NewEmissionError("writer.gauge", err)
	}
	return nil
}

var (
	_ Emitter = (*StatsdEmitter)(nil)
	_ Emitter = (*WriterEmitter)(nil)
)
