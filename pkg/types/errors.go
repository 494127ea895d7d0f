package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that abandon a sampling cycle
type ErrorKind string

const (
	// KindConnectivity means an endpoint could not be reached
	KindConnectivity ErrorKind = "connectivity"
	// KindQuery means the queue system or key store answered with an error or
	// with data that could not be interpreted
	KindQuery ErrorKind = "query"
	// KindEmission means the metrics endpoint did not take a write
	KindEmission ErrorKind = "emission"
)

// Error is a classified runtime error
type Error struct {
	Kind ErrorKind
	Op   string // e.g. "rq.list_queues", "statsd.gauge"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConnectivityError wraps err as a connectivity failure
func NewConnectivityError(op string, err error) error {
	return &Error{Kind: KindConnectivity, Op: op, Err: err}
}

// NewQueryError wraps err as a query failure
func NewQueryError(op string, err error) error {
	return &Error{Kind: KindQuery, Op: op, Err: err}
}

// NewEmissionError wraps err as an emission failure
func NewEmissionError(op string, err error) error {
	return &Error{Kind: KindEmission, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
