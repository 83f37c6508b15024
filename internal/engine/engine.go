package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"granary/internal/logging"
	"granary/internal/sink"
	"granary/internal/transport"
	"granary/source/kafka"
	"granary/store"
)

type Engine struct {
	transport    *transport.Server
	source       kafka.Adapter
	writer       *sink.Writer
	session      store.Session
	drainTimeout time.Duration

	stopOnce sync.Once
}

func (e *Engine) Run(ctx context.Context) error {
	srcErr := make(chan error, 1)
	go func() { srcErr <- e.source.Run(ctx, e.writer.Submit) }()
	go func() { _ = e.transport.Serve() }()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-srcErr:
	}
	e.shutdown()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// shutdown order: stop the source first so no new batches arrive, drain the
// writer, release the plans, then the session, then the control plane.
func (e *Engine) shutdown() {
	e.stopOnce.Do(func() {
		_ = e.source.Close()

		dctx, cancel := context.WithTimeout(context.Background(), e.drainTimeout)
		defer cancel()
		if err := e.writer.WaitIdle(dctx); err != nil {
			logging.L().Warn("drain incomplete at shutdown",
				"inflight", e.writer.InFlight(), "err", err)
		}
		_ = e.writer.Close()
		_ = e.session.Close()
		e.transport.Stop()
	})
}
