package sink

import (
	"context"
	"sync"

	"granary/internal/logging"
)

// Counter tracks writes that were submitted but have not yet settled. It is
// injected into the writer so tests can substitute their own accounting.
type Counter interface {
	// Add registers n newly submitted writes.
	Add(n int)
	// Done settles one write (success or failure alike) and returns the new
	// outstanding count.
	Done() int64
	Value() int64
	// WaitZero blocks until the count reaches zero or ctx expires.
	WaitZero(ctx context.Context) error
}

type inflight struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int64
}

func NewCounter() Counter {
	c := &inflight{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *inflight) Add(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.n += int64(n)
	c.mu.Unlock()
}

func (c *inflight) Done() int64 {
	c.mu.Lock()
	if c.n == 0 {
		// never goes negative; a decrement here is a completion-path bug
		c.mu.Unlock()
		logging.L().Error("inflight counter: decrement below zero suppressed")
		return 0
	}
	c.n--
	v := c.n
	c.mu.Unlock()
	if v == 0 {
		c.cond.Broadcast()
	}
	return v
}

func (c *inflight) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *inflight) WaitZero(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		// fast path: no context watcher needed
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		c.cond.Broadcast()
	}()

	for c.n > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return nil
}
