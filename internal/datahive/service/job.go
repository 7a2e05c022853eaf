package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recon/internal/datahive/metrics"
	"recon/internal/datahive/models"
	"recon/pkg/requestcontext"
)

//go:generate mockgen -source=job.go -destination=mocks/mocks.go -package=mocks Applier,RunStore,Publisher

// ErrUnsupportedClass is returned for a class with no registered reconciler.
var ErrUnsupportedClass = errors.New("unsupported identifier class")

// Applier derives and applies the side effects of one result.
type Applier interface {
	Apply(ctx context.Context, notice models.Notice, result *models.ConsolidatedResult) ([]models.StatusCode, error)
}

// RunStore keeps run summaries for later lookup.
type RunStore interface {
	Save(ctx context.Context, summary *models.RunSummary) error
}

// Publisher emits one event per consolidated result of a run.
type Publisher interface {
	Publish(ctx context.Context, summary *models.RunSummary) error
}

// Job reconciles a batch of notices and applies the resulting side effects.
type Job struct {
	reconcilers map[models.IdentifierClass]Reconciler
	applier     Applier
	store       RunStore
	publisher   Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
}

// JobOption configures a Job.
type JobOption func(*Job)

func WithJobLogger(logger *slog.Logger) JobOption {
	return func(j *Job) {
		j.logger = logger
	}
}

func WithJobMetrics(m *metrics.Metrics) JobOption {
	return func(j *Job) {
		j.metrics = m
	}
}

// WithRunStore keeps every summary. Without it runs are not retrievable.
func WithRunStore(s RunStore) JobOption {
	return func(j *Job) {
		j.store = s
	}
}

// WithPublisher publishes results after every run.
func WithPublisher(p Publisher) JobOption {
	return func(j *Job) {
		j.publisher = p
	}
}

// WithReconciler registers or replaces the reconciler for class.
func WithReconciler(class models.IdentifierClass, r Reconciler) JobOption {
	return func(j *Job) {
		j.reconcilers[class] = r
	}
}

// NewJob wires the three class services over agg.
func NewJob(agg Aggregator, cfg Config, applier Applier, opts []Option, jobOpts ...JobOption) *Job {
	j := &Job{
		reconcilers: map[models.IdentifierClass]Reconciler{
			models.ClassNRIC: NewNRICService(agg, cfg, opts...),
			models.ClassFIN:  NewFINService(agg, cfg, opts...),
			models.ClassUEN:  NewUENService(agg, cfg, opts...),
		},
		applier: applier,
		logger:  slog.Default(),
		tracer:  otel.Tracer("recon/datahive/service"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range jobOpts {
		opt(j)
	}
	return j
}

// Run reconciles notices of one class. Side-effect failures are recorded per
// case and do not stop the run; only a reconcile failure is returned.
func (j *Job) Run(ctx context.Context, class models.IdentifierClass, notices []models.Notice) (*models.RunSummary, error) {
	rec, ok := j.reconcilers[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedClass, class)
	}

	summary := &models.RunSummary{
		RunID:     j.newID(),
		Class:     class,
		StartedAt: j.now().UTC(),
	}
	ctx, span := j.tracer.Start(ctx, "datahive.run",
		trace.WithAttributes(
			attribute.String("run_id", summary.RunID),
			attribute.String("class", string(class)),
			attribute.Int("notices", len(notices)),
		))
	defer span.End()
	ctx = requestcontext.WithRunID(ctx, summary.RunID)

	notices = uniqueNotices(notices)
	summary.Pairs = len(notices)

	report, err := rec.Reconcile(ctx, models.Pairs(notices))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return nil, fmt.Errorf("reconciling %s run %s: %w", class, summary.RunID, err)
	}
	summary.Identifiers = report.Identifiers
	summary.FailedSources = report.FailedSources()

	byKey := make(map[string]models.Notice, len(notices))
	for _, n := range notices {
		byKey[n.CacheKey()] = n
	}

	for i := range report.Results {
		res := &report.Results[i]
		j.metrics.IncrementResult(string(class), outcome(res))

		notice := byKey[res.CacheKey]
		applied, err := j.applier.Apply(ctx, notice, res)
		res.Codes = applied
		if err != nil {
			summary.Errors = append(summary.Errors, models.CaseError{
				CacheKey: res.CacheKey,
				NoticeNo: notice.CaseReference,
				Error:    err.Error(),
			})
			j.logger.ErrorContext(ctx, "applying side effects failed",
				"run_id", summary.RunID,
				"notice_no", notice.CaseReference,
				"error", err,
			)
			continue
		}
		summary.Applied++
	}

	summary.Results = report.Results
	summary.FinishedAt = j.now().UTC()
	j.metrics.ObserveRunLatency(string(class), summary.FinishedAt.Sub(summary.StartedAt))

	if j.store != nil {
		if err := j.store.Save(ctx, summary); err != nil {
			j.logger.ErrorContext(ctx, "saving run summary failed", "run_id", summary.RunID, "error", err)
		}
	}
	if j.publisher != nil {
		if err := j.publisher.Publish(ctx, summary); err != nil {
			j.logger.ErrorContext(ctx, "publishing run results failed", "run_id", summary.RunID, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("results", len(summary.Results)),
		attribute.Int("case_errors", len(summary.Errors)),
	)
	j.logger.InfoContext(ctx, "reconciliation run finished",
		"run_id", summary.RunID,
		"class", string(class),
		"pairs", summary.Pairs,
		"identifiers", summary.Identifiers,
		"applied", summary.Applied,
		"case_errors", len(summary.Errors),
		"failed_sources", summary.FailedSources,
	)
	return summary, nil
}

// uniqueNotices keeps the first notice per cache key.
func uniqueNotices(notices []models.Notice) []models.Notice {
	seen := make(map[string]struct{}, len(notices))
	out := make([]models.Notice, 0, len(notices))
	for _, n := range notices {
		if n.Identifier == "" {
			continue
		}
		if _, ok := seen[n.CacheKey()]; ok {
			continue
		}
		seen[n.CacheKey()] = struct{}{}
		out = append(out, n)
	}
	return out
}

func outcome(r *models.ConsolidatedResult) string {
	switch {
	case r.HasError():
		return "error"
	case r.NotFound:
		return "not_found"
	default:
		return "found"
	}
}
