// Package service runs the per-class reconciliation flows: it schedules the
// source rounds, applies the precedence rules and builds one consolidated
// result per (identifier, case) pair.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recon/internal/datahive/aggregator"
	"recon/internal/datahive/merge"
	"recon/internal/datahive/metrics"
	"recon/internal/datahive/models"
	"recon/internal/datahive/query"
	"recon/internal/datahive/schema"
	"recon/pkg/platform/batch"
)

// Config holds the knobs shared by every class service.
type Config struct {
	BatchSize int `yaml:"batch_size"`
	// EnrichDeregistered adds shareholder and board lookups for companies
	// that resolved only in the deregistered source.
	EnrichDeregistered bool `yaml:"enrich_deregistered"`
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return batch.DefaultSize
	}
	return c.BatchSize
}

// Aggregator runs one round of source lookups.
type Aggregator interface {
	Run(ctx context.Context, tasks []aggregator.Task) *aggregator.Result
}

// Reconciler is implemented by every class service.
type Reconciler interface {
	Reconcile(ctx context.Context, pairs []models.Pair) (*Report, error)
}

// Report is the outcome of one Reconcile call.
type Report struct {
	Class       models.IdentifierClass
	Identifiers int
	Results     []models.ConsolidatedResult
	// Outcomes of every round, in round order.
	Outcomes []query.Outcome
}

// FailedSources lists each source with at least one failed chunk, in the
// order the failures were first seen.
func (r *Report) FailedSources() []string {
	seen := make(map[schema.Source]struct{})
	var out []string
	for _, o := range r.Outcomes {
		if !o.Failed() {
			continue
		}
		if _, ok := seen[o.Source]; ok {
			continue
		}
		seen[o.Source] = struct{}{}
		out = append(out, string(o.Source))
	}
	return out
}

// Resolution is what a flow resolved for one identifier before it is fanned
// out to the pairs that reference it.
type Resolution struct {
	Facts    models.MergedFacts
	NotFound bool
	Error    string
	Degraded []models.Degradation
}

func (r *Resolution) degrade(d models.Degradation) {
	for _, v := range r.Degraded {
		if v == d {
			return
		}
	}
	r.Degraded = append(r.Degraded, d)
}

// BuildResults emits one result per distinct cache key, in pair order. Each
// result carries its own stamped copy of the identifier's facts, so results
// sharing an identifier never alias. Identifiers missing from resolved get
// an empty result.
func BuildResults(class models.IdentifierClass, pairs []models.Pair, resolved map[string]*Resolution) []models.ConsolidatedResult {
	seen := make(map[string]struct{}, len(pairs))
	out := make([]models.ConsolidatedResult, 0, len(pairs))
	for _, p := range pairs {
		if p.Identifier == "" {
			continue
		}
		key := p.CacheKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		res := models.ConsolidatedResult{Pair: p, CacheKey: key, Class: class}
		if r, ok := resolved[p.Identifier]; ok && r != nil {
			res.Facts = r.Facts.Stamp(p.CaseReference)
			res.NotFound = r.NotFound
			res.Error = r.Error
			if len(r.Degraded) > 0 {
				res.Degraded = append([]models.Degradation(nil), r.Degraded...)
			}
		}
		out = append(out, res)
	}
	return out
}

// Option configures a class service.
type Option func(*base)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) {
		b.metrics = m
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(b *base) {
		b.tracer = t
	}
}

// base is embedded by every class service.
type base struct {
	agg     Aggregator
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func newBase(agg Aggregator, cfg Config, opts []Option) base {
	b := base{
		agg:    agg,
		cfg:    cfg,
		logger: slog.Default(),
		tracer: otel.Tracer("recon/datahive/service"),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) start(ctx context.Context, class models.IdentifierClass, pairs, ids int) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "datahive.reconcile",
		trace.WithAttributes(
			attribute.String("class", string(class)),
			attribute.Int("pairs", pairs),
			attribute.Int("identifiers", ids),
		))
}

// run executes one round and keeps its outcomes on report. An empty round
// issues no queries.
func (b *base) run(ctx context.Context, tasks []aggregator.Task, report *Report) *aggregator.Result {
	res := b.agg.Run(ctx, tasks)
	report.Outcomes = append(report.Outcomes, res.Outcomes()...)
	return res
}

// onDecodeError logs and counts a row the precedence pass could not decode.
func (b *base) onDecodeError(ctx context.Context) merge.ErrorFunc {
	return func(row *schema.Row, err error) {
		source := string(row.Spec().Source)
		b.metrics.IncrementRejectedRow(source)
		b.logger.WarnContext(ctx, "skipping undecodable row",
			"source", source,
			"key", row.Key(),
			"error", err,
		)
	}
}

// markUnavailable records a degradation on r for each source whose chunk
// holding id failed.
func markUnavailable(r *Resolution, res *aggregator.Result, id string, sources ...schema.Source) {
	for _, s := range sources {
		if res.IsFailed(s, id) {
			r.degrade(models.SourceUnavailable(string(s)))
		}
	}
}

func resolutions(ids []string) map[string]*Resolution {
	out := make(map[string]*Resolution, len(ids))
	for _, id := range ids {
		out[id] = &Resolution{}
	}
	return out
}
