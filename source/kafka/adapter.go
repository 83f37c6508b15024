package kafka

import (
	"context"

	"granary/internal/record"
)

// EmitBatch hands one batch of records to the sink. A non-nil error is fatal
// and stops consumption; per-record write outcomes never surface here.
type EmitBatch func(context.Context, []record.Record) error

type Adapter interface {
	Configure(Config) error
	Run(context.Context, EmitBatch) error
	Close() error
}

// DrainAware is optional; drivers that commit offsets only after the sink has
// drained a batch implement it. The engine wires the callback if present.
type DrainAware interface {
	BindDrain(func(context.Context) error)
}
