// Package aggregator fans source lookups out concurrently and collects the
// decoded rows per source and identifier.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"recon/internal/datahive/metrics"
	"recon/internal/datahive/query"
	"recon/internal/datahive/schema"
	"recon/pkg/platform/batch"
)

// Executor runs one (source, chunk) lookup.
type Executor interface {
	Execute(ctx context.Context, spec *schema.Spec, chunk query.Chunk) query.Outcome
}

// Task is one (source, chunk) unit of work.
type Task struct {
	Spec  *schema.Spec
	Chunk query.Chunk
}

// Tasks partitions ids and builds one task per chunk for every spec. Each id
// lands in exactly one chunk per spec.
func Tasks(ids []string, batchSize int, specs ...*schema.Spec) []Task {
	if batchSize <= 0 {
		batchSize = batch.DefaultSize
	}
	chunks := batch.Partition(ids, batchSize)
	tasks := make([]Task, 0, len(chunks)*len(specs))
	for _, spec := range specs {
		for i, c := range chunks {
			tasks = append(tasks, Task{Spec: spec, Chunk: query.Chunk{Index: i, Identifiers: c}})
		}
	}
	return tasks
}

// Aggregator runs tasks concurrently. A failing task never cancels its
// siblings.
type Aggregator struct {
	exec        Executor
	logger      *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithConcurrency caps in-flight tasks. Zero means one goroutine per task.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.concurrency = n
	}
}

func New(exec Executor, opts ...Option) *Aggregator {
	a := &Aggregator{
		exec:   exec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes every task and blocks until all have finished. The
// executor's per-attempt timeout is the only bound on how long that takes.
func (a *Aggregator) Run(ctx context.Context, tasks []Task) *Result {
	res := newResult(tasks)

	// Plain Group: tasks record failures in the result and return nil, so
	// no sibling is ever cancelled.
	var g errgroup.Group
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for _, task := range tasks {
		g.Go(func() error {
			out := a.exec.Execute(ctx, task.Spec, task.Chunk)
			a.collect(ctx, res, task, out)
			return nil
		})
	}
	_ = g.Wait()

	res.sortOutcomes()
	return res
}

func (a *Aggregator) collect(ctx context.Context, res *Result, task Task, out query.Outcome) {
	b := res.buckets[task.Spec.Source]

	if out.Failed() {
		b.mu.Lock()
		for _, id := range task.Chunk.Identifiers {
			b.failed[id] = struct{}{}
			b.errs[id] = out.Err
		}
		b.mu.Unlock()
		res.addOutcome(out)
		return
	}

	decoded := make([]*schema.Row, 0, len(out.Rows))
	for i, raw := range out.Rows {
		row, err := schema.Decode(task.Spec, raw)
		if err != nil {
			a.metrics.IncrementRejectedRow(string(task.Spec.Source))
			a.logger.WarnContext(ctx, "skipping malformed row",
				"source", string(task.Spec.Source),
				"chunk", task.Chunk.Index,
				"row", i,
				"error", err,
			)
			continue
		}
		decoded = append(decoded, row)
	}

	b.mu.Lock()
	for _, row := range decoded {
		b.rows[row.Key()] = append(b.rows[row.Key()], row)
	}
	b.mu.Unlock()
	res.addOutcome(out)
}

type bucket struct {
	mu     sync.Mutex
	rows   map[string][]*schema.Row
	failed map[string]struct{}
	errs   map[string]error
}

// Result holds decoded rows and failures per source. It is safe to read
// once Run has returned.
type Result struct {
	buckets map[schema.Source]*bucket

	mu       sync.Mutex
	outcomes []query.Outcome
}

func newResult(tasks []Task) *Result {
	r := &Result{buckets: make(map[schema.Source]*bucket)}
	for _, t := range tasks {
		if _, ok := r.buckets[t.Spec.Source]; !ok {
			r.buckets[t.Spec.Source] = &bucket{
				rows:   make(map[string][]*schema.Row),
				failed: make(map[string]struct{}),
				errs:   make(map[string]error),
			}
		}
	}
	return r
}

func (r *Result) addOutcome(o query.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *Result) sortOutcomes() {
	sort.SliceStable(r.outcomes, func(i, j int) bool {
		if r.outcomes[i].Source != r.outcomes[j].Source {
			return r.outcomes[i].Source < r.outcomes[j].Source
		}
		return r.outcomes[i].Chunk < r.outcomes[j].Chunk
	})
}

// Rows returns the decoded rows of source keyed by identifier, each in
// chunk order.
func (r *Result) Rows(source schema.Source) map[string][]*schema.Row {
	if b, ok := r.buckets[source]; ok {
		return b.rows
	}
	return nil
}

// RowsFor returns the rows of source for one identifier.
func (r *Result) RowsFor(source schema.Source, id string) []*schema.Row {
	return r.Rows(source)[id]
}

// Failed returns the identifiers whose chunk of source failed.
func (r *Result) Failed(source schema.Source) map[string]struct{} {
	if b, ok := r.buckets[source]; ok {
		return b.failed
	}
	return nil
}

// IsFailed reports whether id's chunk of source failed.
func (r *Result) IsFailed(source schema.Source, id string) bool {
	_, ok := r.Failed(source)[id]
	return ok
}

// FailureFor returns the error of id's failed chunk of source, or nil.
func (r *Result) FailureFor(source schema.Source, id string) error {
	if b, ok := r.buckets[source]; ok {
		return b.errs[id]
	}
	return nil
}

// SourceFailed reports whether any chunk of source failed.
func (r *Result) SourceFailed(source schema.Source) bool {
	return len(r.Failed(source)) > 0
}

// Outcomes returns every outcome ordered by source then chunk.
func (r *Result) Outcomes() []query.Outcome {
	return r.outcomes
}

// FailedOutcomes returns only the outcomes that exhausted their attempts.
func (r *Result) FailedOutcomes() []query.Outcome {
	var out []query.Outcome
	for _, o := range r.outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}
