package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"granary/internal/record"
	"granary/store"
)

/*──────── fakes ───────*/

type fakeSession struct {
	tables    []string
	tablesErr error

	mu    sync.Mutex
	plans map[string]*fakePlan
	fail  func(table, payload string) error
	gate  chan struct{} // when set, execs block until the gate closes
}

func (s *fakeSession) Tables(context.Context) ([]string, error) {
	return s.tables, s.tablesErr
}

func (s *fakeSession) Prepare(_ context.Context, table string) (store.Plan, error) {
	p := &fakePlan{table: table, sess: s}
	s.mu.Lock()
	if s.plans == nil {
		s.plans = make(map[string]*fakePlan)
	}
	s.plans[table] = p
	s.mu.Unlock()
	return p, nil
}

func (s *fakeSession) Close() error { return nil }

type fakePlan struct {
	table string
	sess  *fakeSession

	execs   atomic.Int64
	fails   atomic.Int64
	active  atomic.Int64
	maxSeen atomic.Int64
	closed  atomic.Bool
}

func (p *fakePlan) Table() string { return p.table }

func (p *fakePlan) ExecAsync(_ context.Context, payload string) *store.Future {
	f := store.NewFuture()
	go func() {
		cur := p.active.Add(1)
		for {
			max := p.maxSeen.Load()
			if cur <= max || p.maxSeen.CompareAndSwap(max, cur) {
				break
			}
		}
		if p.sess.gate != nil {
			<-p.sess.gate
		}
		p.active.Add(-1)

		if p.closed.Load() {
			f.Settle(store.Outcome{Err: errors.New("plan closed")})
			return
		}
		p.execs.Add(1)
		var err error
		if p.sess.fail != nil {
			err = p.sess.fail(p.table, payload)
		}
		if err != nil {
			p.fails.Add(1)
		}
		f.Settle(store.Outcome{Err: err})
	}()
	return f
}

func (p *fakePlan) Close() error {
	p.closed.Store(true)
	return nil
}

// recordingCounter wraps the real counter and journals every mutation so
// tests can assert submission/settlement ordering.
type recordingCounter struct {
	Counter
	mu  sync.Mutex
	ops []string
	min atomic.Int64
}

func newRecordingCounter() *recordingCounter {
	return &recordingCounter{Counter: NewCounter()}
}

func (c *recordingCounter) Add(n int) {
	c.mu.Lock()
	c.ops = append(c.ops, fmt.Sprintf("add:%d", n))
	c.mu.Unlock()
	c.Counter.Add(n)
}

func (c *recordingCounter) Done() int64 {
	c.mu.Lock()
	c.ops = append(c.ops, "done")
	c.mu.Unlock()
	v := c.Counter.Done()
	for {
		min := c.min.Load()
		if v >= min || c.min.CompareAndSwap(min, v) {
			break
		}
	}
	return v
}

func recs(topic string, n int) []record.Record {
	out := make([]record.Record, n)
	for i := range out {
		out[i] = record.Record{
			Topic:     topic,
			Partition: 0,
			Offset:    int64(i + 1),
			Ts:        time.Unix(1700000000, 0),
			Value:     []byte(fmt.Sprintf(`{"n":%d}`, i+1)),
		}
	}
	return out
}

func buildWriter(t *testing.T, sess *fakeSession, tables []string, opts Options) *Writer {
	t.Helper()
	cache, err := BuildPlanCache(context.Background(), sess, tables)
	if err != nil {
		t.Fatalf("BuildPlanCache: %v", err)
	}
	return NewWriter(cache, opts)
}

func waitIdle(t *testing.T, w *Writer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

/*──────── tests ───────*/

func TestWriter_EmptyBatch(t *testing.T) {
	sess := &fakeSession{tables: []string{"a"}}
	ctr := newRecordingCounter()
	w := buildWriter(t, sess, []string{"a"}, Options{Counter: ctr})

	if err := w.Submit(context.Background(), nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := len(ctr.ops); got != 0 {
		t.Fatalf("counter touched %d times for empty batch", got)
	}
	if n := sess.plans["a"].execs.Load(); n != 0 {
		t.Fatalf("store touched %d times for empty batch", n)
	}
}

func TestWriter_CounterIncrementsBeforeWritesIssue(t *testing.T) {
	sess := &fakeSession{tables: []string{"a"}}
	ctr := newRecordingCounter()
	w := buildWriter(t, sess, []string{"a"}, Options{Counter: ctr})

	if err := w.Submit(context.Background(), recs("a", 3)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitIdle(t, w)

	ctr.mu.Lock()
	defer ctr.mu.Unlock()
	if len(ctr.ops) != 4 {
		t.Fatalf("want add + 3 done, got %v", ctr.ops)
	}
	if ctr.ops[0] != "add:3" {
		t.Fatalf("first counter op %q, want add:3", ctr.ops[0])
	}
	for _, op := range ctr.ops[1:] {
		if op != "done" {
			t.Fatalf("unexpected counter op %q", op)
		}
	}
	if min := ctr.min.Load(); min < 0 {
		t.Fatalf("counter went negative: %d", min)
	}
	if w.InFlight() != 0 {
		t.Fatalf("counter not drained: %d", w.InFlight())
	}
}

func TestWriter_PartialFailureIsolation(t *testing.T) {
	sess := &fakeSession{tables: []string{"a"}}
	sess.fail = func(_, payload string) error {
		if strings.Contains(payload, `{\"n\":2}`) || strings.Contains(payload, `"n":2`) {
			return errors.New("store rejected row")
		}
		return nil
	}
	ctr := newRecordingCounter()
	w := buildWriter(t, sess, []string{"a"}, Options{Counter: ctr})

	if err := w.Submit(context.Background(), recs("a", 3)); err != nil {
		t.Fatalf("Submit returned error for per-record failure: %v", err)
	}
	waitIdle(t, w)

	p := sess.plans["a"]
	if p.execs.Load() != 3 {
		t.Fatalf("want 3 writes issued, got %d", p.execs.Load())
	}
	if p.fails.Load() != 1 {
		t.Fatalf("want exactly 1 failed write, got %d", p.fails.Load())
	}
	if w.InFlight() != 0 {
		t.Fatalf("counter not drained after mixed outcomes: %d", w.InFlight())
	}
}

func TestWriter_MissingPlanIsFatal(t *testing.T) {
	sess := &fakeSession{tables: []string{"a"}}
	ctr := newRecordingCounter()
	w := buildWriter(t, sess, []string{"a"}, Options{Counter: ctr})

	err := w.Submit(context.Background(), recs("unassigned", 2))
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("want ErrNoPlan, got %v", err)
	}
	if got := len(ctr.ops); got != 0 {
		t.Fatalf("counter moved on fatal config error: %v", ctr.ops)
	}
}

func TestWriter_MultiTableFanout(t *testing.T) {
	sess := &fakeSession{tables: []string{"a", "b"}}
	w := buildWriter(t, sess, []string{"a", "b"}, Options{})

	batch := append(recs("a", 2), recs("b", 3)...)
	if err := w.Submit(context.Background(), batch); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitIdle(t, w)

	if n := sess.plans["a"].execs.Load(); n != 2 {
		t.Fatalf("table a got %d writes, want 2", n)
	}
	if n := sess.plans["b"].execs.Load(); n != 3 {
		t.Fatalf("table b got %d writes, want 3", n)
	}
}

func TestWriter_ConvertFailureDoesNotAbortBatch(t *testing.T) {
	sess := &fakeSession{tables: []string{"a"}}
	ctr := newRecordingCounter()
	bad := errors.New("cannot encode")
	conv := func(r record.Record) (string, error) {
		if r.Offset == 2 {
			return "", bad
		}
		return fmt.Sprintf(`{"n":%d}`, r.Offset), nil
	}
	w := buildWriter(t, sess, []string{"a"}, Options{Counter: ctr, Convert: conv})

	if err := w.Submit(context.Background(), recs("a", 3)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitIdle(t, w)

	if n := sess.plans["a"].execs.Load(); n != 2 {
		t.Fatalf("want the 2 convertible records written, got %d", n)
	}
	if w.InFlight() != 0 {
		t.Fatalf("conversion failure leaked the counter: %d", w.InFlight())
	}
}

func TestWriter_BoundedInFlight(t *testing.T) {
	sess := &fakeSession{tables: []string{"a"}, gate: make(chan struct{})}
	w := buildWriter(t, sess, []string{"a"}, Options{MaxInFlight: 2})

	done := make(chan error, 1)
	go func() { done <- w.Submit(context.Background(), recs("a", 6)) }()

	time.Sleep(50 * time.Millisecond)
	close(sess.gate)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitIdle(t, w)

	if max := sess.plans["a"].maxSeen.Load(); max > 2 {
		t.Fatalf("observed %d concurrent writes, limit is 2", max)
	}
	if n := sess.plans["a"].execs.Load(); n != 6 {
		t.Fatalf("want all 6 writes issued, got %d", n)
	}
}

func TestWriter_CloseIdempotentAndRejectsSubmit(t *testing.T) {
	sess := &fakeSession{tables: []string{"a"}}
	w := buildWriter(t, sess, []string{"a"}, Options{})

	if err := w.Submit(context.Background(), recs("a", 1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitIdle(t, w)

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !sess.plans["a"].closed.Load() {
		t.Fatal("plan not released on Close")
	}
	if err := w.Submit(context.Background(), recs("a", 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Close = %v, want ErrClosed", err)
	}
}
