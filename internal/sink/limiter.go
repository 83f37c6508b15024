package sink

import (
	"context"
	"sync"
)

// Limiter caps the number of concurrently outstanding writes. Acquire blocks
// until a token is free, so a sustained submission rate cannot build an
// unbounded backlog inside the store driver.
type Limiter struct {
	capacity int64

	mu     sync.Mutex
	tokens int64
	cond   *sync.Cond
	closed bool
}

func NewLimiter(capacity int64) *Limiter {
	l := &Limiter{capacity: capacity, tokens: capacity}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.tokens > 0 {
		// fast path: no context watcher needed
		l.tokens--
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		l.cond.Broadcast()
	}()

	for l.tokens == 0 && !l.closed && ctx.Err() == nil {
		l.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.closed {
		return ErrClosed
	}
	l.tokens--
	return nil
}

func (l *Limiter) Release() {
	l.mu.Lock()
	l.tokens++
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.mu.Unlock()
	l.cond.Broadcast()
}

func (l *Limiter) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
}
