package store

import (
	"context"
	"fmt"
)

// Outcome is the settled result of one asynchronous write. A nil Err means
// the store accepted the row.
type Outcome struct {
	Err error
}

// Future is the completion handle returned by Plan.ExecAsync. It settles
// exactly once.
type Future struct {
	done chan Outcome
}

func NewFuture() *Future { return &Future{done: make(chan Outcome, 1)} }

// Settle delivers the outcome. Must be called exactly once per future.
func (f *Future) Settle(o Outcome) { f.done <- o }

// OnComplete registers the two continuations. Exactly one of them runs, on a
// separate goroutine, once the future settles.
func (f *Future) OnComplete(onSuccess func(), onFailure func(error)) {
	go func() {
		o := <-f.done
		if o.Err != nil {
			onFailure(o.Err)
			return
		}
		onSuccess()
	}()
}

// Plan is a precompiled write template bound to one destination table.
// Plans are built once at startup and are safe for concurrent use.
type Plan interface {
	Table() string
	ExecAsync(ctx context.Context, payload string) *Future
	Close() error
}

// Session is a live connection to the destination store.
type Session interface {
	// Tables lists the destinations that exist in the configured namespace.
	Tables(ctx context.Context) ([]string, error)
	// Prepare compiles the write plan for one destination.
	Prepare(ctx context.Context, table string) (Plan, error)
	Close() error
}

// Driver opens sessions against one kind of store.
type Driver interface {
	Configure(any) error // driver-specific config ⇒ struct
	Open(ctx context.Context) (Session, error)
}

/*──────── registry ───────*/

type factory = func() Driver

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewDriver(name string) (Driver, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", name)
}
