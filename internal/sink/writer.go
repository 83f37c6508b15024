package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"granary/internal/convert"
	"granary/internal/logging"
	"granary/internal/record"
	"granary/internal/telemetry"
	"granary/store"
)

const defaultMaxInFlight = 1024

type Options struct {
	Counter     Counter
	MaxInFlight int64
	TableFor    TableFor
	Convert     func(record.Record) (string, error)
}

// Writer fans a batch out into individually tracked asynchronous writes
// against the cached plans. Submit never blocks on the writes themselves;
// completion is observed through the injected counter.
type Writer struct {
	cache    *PlanCache
	counter  Counter
	limiter  *Limiter
	tableFor TableFor
	convert  func(record.Record) (string, error)

	mu     sync.Mutex
	closed bool
}

func NewWriter(cache *PlanCache, opts Options) *Writer {
	if opts.Counter == nil {
		opts.Counter = NewCounter()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.TableFor == nil {
		opts.TableFor = NewTableMapper(nil)
	}
	if opts.Convert == nil {
		opts.Convert = convert.ToWire
	}
	return &Writer{
		cache:    cache,
		counter:  opts.Counter,
		limiter:  NewLimiter(opts.MaxInFlight),
		tableFor: opts.TableFor,
		convert:  opts.Convert,
	}
}

// Submit issues one asynchronous write per record. A non-nil return is a
// fatal configuration error (unassigned destination, writer closed); it is
// never a per-record write outcome. Per-record failures are logged, counted
// through the in-flight counter, and otherwise absorbed.
func (w *Writer) Submit(ctx context.Context, batch []record.Record) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if len(batch) == 0 {
		logging.L().Debug("writer: empty batch, nothing to do")
		return nil
	}

	// Grouping is for plan lookup only; it implies no ordering of the writes.
	groups := make(map[string][]record.Record)
	for _, rec := range batch {
		table := w.tableFor(rec.Topic)
		groups[table] = append(groups[table], rec)
	}

	// Resolve every plan before the counter moves, so a fatal configuration
	// error leaves the counter untouched.
	plans := make(map[string]store.Plan, len(groups))
	for table, recs := range groups {
		p, ok := w.cache.Lookup(table)
		if !ok {
			return fmt.Errorf("%w: %q (topic %q)", ErrNoPlan, table, recs[0].Topic)
		}
		plans[table] = p
	}

	// The full batch is registered before any write is issued, so a drain
	// check can never observe a false zero mid-submission.
	w.counter.Add(len(batch))
	telemetry.BatchesTotal.Inc()
	telemetry.InflightWrites.Add(float64(len(batch)))

	for table, recs := range groups {
		plan := plans[table]
		for _, rec := range recs {
			if err := w.limiter.Acquire(ctx); err != nil {
				w.settle(rec, table, time.Time{}, false, "error", err)
				continue
			}
			payload, err := w.convert(rec)
			if err != nil {
				w.settle(rec, table, time.Time{}, true, "convert_error", err)
				continue
			}
			start := time.Now()
			plan.ExecAsync(ctx, payload).OnComplete(
				func() { w.settle(rec, table, start, true, "ok", nil) },
				func(err error) { w.settle(rec, table, start, true, "error", err) },
			)
		}
	}
	return nil
}

// settle is the single completion path shared by success, failure, timeout
// and conversion error. It decrements the counter exactly once per record.
func (w *Writer) settle(rec record.Record, table string, start time.Time, tokenHeld bool, result string, err error) {
	if tokenHeld {
		w.limiter.Release()
	}
	remaining := w.counter.Done()
	telemetry.InflightWrites.Dec()
	telemetry.WritesTotal.WithLabelValues(table, result).Inc()
	if result == "ok" {
		telemetry.WriteLatency.WithLabelValues(table).Observe(time.Since(start).Seconds())
		logging.L().Debug("write ok",
			"table", table, "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset,
			"inflight", remaining)
		return
	}
	logging.L().Warn("write failed",
		"table", table, "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset,
		"result", result, "err", err, "inflight", remaining)
}

// InFlight reports the writes submitted but not yet settled.
func (w *Writer) InFlight() int64 { return w.counter.Value() }

// WaitIdle blocks until every submitted write has settled or ctx expires.
// The wait covers all writes outstanding on this writer instance, across all
// submitters, not just the caller's own batch.
func (w *Writer) WaitIdle(ctx context.Context) error { return w.counter.WaitZero(ctx) }

// Close stops further submissions and releases the cached plans. It is safe
// to call more than once. The store session itself is owned by the caller.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.limiter.Close()
	return w.cache.Close()
}
