package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recon/internal/datahive/metrics"
	"recon/internal/datahive/schema"
)

// Chunk is one bounded slice of identifiers for a single source.
type Chunk struct {
	Index       int
	Identifiers []string
}

// Outcome records what happened to one (source, chunk) lookup. A non-nil
// Err means the chunk yielded no data; it never aborts other chunks.
type Outcome struct {
	Source      schema.Source
	Chunk       int
	Identifiers []string
	Rows        []RawRow
	Attempts    int
	Duration    time.Duration
	Err         error
}

// Failed reports whether the lookup exhausted its attempts.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Executor runs source lookups with a per-attempt timeout and a fixed-delay
// retry. Any failure is retried until MaxAttempts is spent.
type Executor struct {
	client  Client
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	wait    func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithRetryPolicy overrides the default policy. Zero fields fall back to the
// defaults, except Delay which may be zero.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) {
		e.policy = p.normalized()
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

// NewExecutor creates an executor over client.
func NewExecutor(client Client, opts ...Option) *Executor {
	e := &Executor{
		client: client,
		policy: DefaultRetryPolicy(),
		logger: slog.Default(),
		tracer: otel.Tracer("recon/datahive/query"),
		wait:   sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective retry policy.
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Execute looks up chunk against spec. It always returns; failures are
// reported through Outcome.Err after the final attempt.
func (e *Executor) Execute(ctx context.Context, spec *schema.Spec, chunk Chunk) Outcome {
	source := string(spec.Source)
	out := Outcome{Source: spec.Source, Chunk: chunk.Index, Identifiers: chunk.Identifiers}

	ctx, span := e.tracer.Start(ctx, "datahive.query",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.Int("chunk", chunk.Index),
			attribute.Int("identifiers", len(chunk.Identifiers)),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		e.metrics.ObserveChunkLatency(source, out.Duration)
	}()

	if len(chunk.Identifiers) == 0 {
		return out
	}

	statement := BuildStatement(spec, chunk.Identifiers)
	schedule := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.policy.Delay), uint64(e.policy.MaxAttempts-1)),
		ctx,
	)
	var lastErr error
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt

		rows, err := e.attempt(ctx, source, statement)
		if err == nil {
			e.metrics.IncrementAttempt(source, "ok")
			span.SetAttributes(attribute.Int("rows", len(rows)), attribute.Int("attempts", attempt))
			out.Rows = rows
			return out
		}

		// Every category is retried; it only labels the logs and metrics.
		lastErr = err
		category := CategoryOf(err)
		result := "error"
		if category == ErrorTimeout {
			result = "timeout"
		}
		e.metrics.IncrementAttempt(source, result)
		e.logger.WarnContext(ctx, "source query attempt failed",
			"source", source,
			"chunk", chunk.Index,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"category", string(category),
			"error", err,
		)

		if ctx.Err() != nil {
			break
		}
		next := schedule.NextBackOff()
		if next == backoff.Stop {
			break
		}
		if err := e.wait(ctx, next); err != nil {
			break
		}
	}

	out.Err = fmt.Errorf("%s chunk %d failed after %d attempts: %w", source, chunk.Index, out.Attempts, lastErr)
	span.RecordError(out.Err)
	span.SetStatus(codes.Error, "query exhausted")
	e.metrics.IncrementFailure(source)
	e.logger.ErrorContext(ctx, "source query failed, chunk yields no data",
		"source", source,
		"chunk", chunk.Index,
		"identifiers", len(chunk.Identifiers),
		"attempts", out.Attempts,
		"category", string(CategoryOf(lastErr)),
		"error", lastErr,
	)
	return out
}

// attempt runs one bounded call. The call is abandoned, not awaited, when the
// deadline passes, so a collaborator that ignores ctx cannot stall the run.
func (e *Executor) attempt(ctx context.Context, source, statement string) ([]RawRow, error) {
	actx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
	defer cancel()

	type result struct {
		rows []RawRow
		err  error
	}
	done := make(chan result, 1)
	go func() {
		rows, err := e.client.Query(actx, statement)
		done <- result{rows: rows, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, NewError(ErrorTimeout, source, "attempt timed out", r.err)
		}
		return r.rows, r.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return nil, NewError(ErrorInternal, source, "run cancelled", err)
		}
		return nil, NewError(ErrorTimeout, source, fmt.Sprintf("attempt exceeded %s", e.policy.AttemptTimeout), actx.Err())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
