package sink

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"granary/store"
)

// PlanCache holds exactly one precompiled write plan per assigned destination.
// It is built once after catalog validation and read-only afterwards, so
// lookups need no locking.
type PlanCache struct {
	plans map[string]store.Plan
}

// BuildPlanCache compiles one plan per distinct destination, synchronously.
// Any compile failure tears down the plans built so far.
func BuildPlanCache(ctx context.Context, sess store.Session, tables []string) (*PlanCache, error) {
	c := &PlanCache{plans: make(map[string]store.Plan, len(tables))}
	for _, t := range tables {
		if _, ok := c.plans[t]; ok {
			continue
		}
		p, err := sess.Prepare(ctx, t)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("sink: build plan for %q: %w", t, err)
		}
		c.plans[t] = p
	}
	return c, nil
}

// Lookup returns the plan for a destination. A false return means the
// destination was never assigned, which callers must treat as fatal.
func (c *PlanCache) Lookup(table string) (store.Plan, bool) {
	p, ok := c.plans[table]
	return p, ok
}

func (c *PlanCache) Close() error {
	var result *multierror.Error
	for _, p := range c.plans {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
