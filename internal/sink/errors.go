package sink

import "errors"

var (
	// ErrNoPlan means a record arrived for a destination that was not part of
	// the startup assignment. This is a configuration fault, not a write
	// failure, and it aborts the connector.
	ErrNoPlan = errors.New("sink: no write plan for destination")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("sink: writer closed")
)
