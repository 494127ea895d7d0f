// Package types defines the values passed between the probes, the poller and
// the emitter.
package types

// QueueDriver identifies the job-queue system a snapshot was read from
type QueueDriver string

const (
	DriverRQ    QueueDriver = "rq"
	DriverAsynq QueueDriver = "asynq"
)

// Valid reports whether d is a supported driver
func (d QueueDriver) Valid() bool {
	switch d {
	case DriverRQ, DriverAsynq:
		return true
	}
	return false
}

// QueueSnapshot represents a point-in-time queue state
type QueueSnapshot struct {
	Name    string      `json:"name"`
	Driver  QueueDriver `json:"driver"`
	Waiting int64       `json:"waiting"` // Enqueued but not yet picked up
}

// Gauge is a single (name, value) pair sent to the metrics endpoint
type Gauge struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}
