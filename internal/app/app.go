// Package app builds the reconciliation stack from configuration. Both the
// HTTP server and the one-shot CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"recon/internal/datahive/aggregator"
	"recon/internal/datahive/events"
	dhmetrics "recon/internal/datahive/metrics"
	"recon/internal/datahive/models"
	"recon/internal/datahive/query"
	"recon/internal/datahive/runstore"
	"recon/internal/datahive/service"
	"recon/internal/datahive/sideeffect"
	"recon/internal/datahive/snowflake"
	"recon/internal/datahive/store"
	jwttoken "recon/internal/jwt_token"
	"recon/internal/platform/config"
	"recon/internal/platform/kafka"
	"recon/internal/platform/postgres"
	"recon/internal/platform/redis"
	"recon/internal/suspension"
	httptransport "recon/internal/transport/http"
	"recon/pkg/platform/circuit"
)

// RunStore is both sides of the run store.
type RunStore interface {
	Save(ctx context.Context, summary *models.RunSummary) error
	Get(ctx context.Context, runID string) (*models.RunSummary, error)
}

// App holds the wired collaborators and the resources to release on Close.
type App struct {
	Job      *service.Job
	Runs     RunStore
	Registry *prometheus.Registry
	Checks   []httptransport.HealthCheck

	logger  *slog.Logger
	closers []func() error
}

// Option adjusts how New builds the stack. Tests use them to swap the
// network-facing clients.
type Option func(*options)

type options struct {
	queryClient query.Client
	status      suspension.Applier
	store       store.Store
}

// WithQueryClient replaces the Snowflake client.
func WithQueryClient(c query.Client) Option {
	return func(o *options) {
		o.queryClient = c
	}
}

// WithStatusClient replaces the suspension API client.
func WithStatusClient(s suspension.Applier) Option {
	return func(o *options) {
		o.status = s
	}
}

// WithStore replaces the persistence store.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// New wires every collaborator. Postgres, Redis and Kafka are optional;
// without them the store, run store and publisher stay in memory.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := dhmetrics.NewWith(a.Registry)

	qc := o.queryClient
	if qc == nil {
		if qc, err = newSnowflake(cfg.DataHive, logger); err != nil {
			return nil, err
		}
	}
	status := o.status
	if status == nil {
		if status, err = newSuspension(cfg.Suspension, logger); err != nil {
			return nil, err
		}
	}
	st := o.store
	if st == nil {
		if st, err = a.newStore(ctx, cfg.Postgres); err != nil {
			return nil, err
		}
	}
	if a.Runs, err = a.newRunStore(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	publisher, err := a.newPublisher(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}

	exec := query.NewExecutor(qc,
		query.WithLogger(logger),
		query.WithMetrics(m),
		query.WithRetryPolicy(cfg.QueryRetry),
	)
	agg := aggregator.New(exec,
		aggregator.WithLogger(logger),
		aggregator.WithMetrics(m),
		aggregator.WithConcurrency(cfg.DataHive.Concurrency),
	)
	applier := sideeffect.New(st, status, cfg.Reconcile.Actions,
		sideeffect.WithLogger(logger),
		sideeffect.WithMetrics(m),
	)
	a.Job = service.NewJob(agg, cfg.Reconcile.Service, applier,
		[]service.Option{service.WithLogger(logger), service.WithMetrics(m)},
		service.WithJobLogger(logger),
		service.WithJobMetrics(m),
		service.WithRunStore(a.Runs),
		service.WithPublisher(publisher),
	)
	return a, nil
}

// Close releases every opened connection, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newSnowflake(cfg config.DataHiveConfig, logger *slog.Logger) (*snowflake.Client, error) {
	if cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("datahive: private key path is required")
	}
	pem, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("datahive: read private key: %w", err)
	}
	tokens, err := jwttoken.NewKeypairService(cfg.Account, cfg.User, pem, jwttoken.DefaultLifetime)
	if err != nil {
		return nil, fmt.Errorf("datahive: %w", err)
	}
	return snowflake.New(snowflake.Config{
		BaseURL:      cfg.BaseURL,
		Database:     cfg.Database,
		Schema:       cfg.Schema,
		Warehouse:    cfg.Warehouse,
		Role:         cfg.Role,
		APIMHeader:   cfg.APIMHeader,
		APIMKey:      cfg.APIMKey,
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
	}, tokens, snowflake.WithLogger(logger))
}

func newSuspension(cfg config.SuspensionConfig, logger *slog.Logger) (*suspension.Client, error) {
	opts := []suspension.Option{
		suspension.WithLogger(logger),
		suspension.WithBackoff(cfg.Backoff),
		suspension.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, suspension.WithEndpoint(cfg.Endpoint))
	}
	if cfg.BreakerFailures > 0 {
		opts = append(opts, suspension.WithBreaker(circuit.New("suspension",
			circuit.WithFailureThreshold(cfg.BreakerFailures),
			circuit.WithCooldown(cfg.BreakerCooldown),
		)))
	}
	return suspension.New(cfg.BaseURL, opts...)
}

func (a *App) newStore(ctx context.Context, cfg config.PostgresConfig) (store.Store, error) {
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		a.logger.WarnContext(ctx, "no postgres DSN configured, case records are kept in memory")
		return store.NewMemoryStore(), nil
	}
	a.closers = append(a.closers, db.Close)
	a.Checks = append(a.Checks, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})

	var sopts []store.PostgresOption
	if cfg.Schema != "" {
		sopts = append(sopts, store.WithSchema(cfg.Schema))
	}
	return store.NewPostgresStore(db, sopts...), nil
}

func (a *App) newRunStore(ctx context.Context, cfg config.RedisConfig) (RunStore, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return runstore.NewMemoryStore(), nil
	}
	a.closers = append(a.closers, client.Close)
	a.Checks = append(a.Checks, httptransport.HealthCheck{Name: "redis", Check: client.Health})
	return runstore.NewRedisStore(client, cfg.RunTTL), nil
}

func (a *App) newPublisher(ctx context.Context, cfg config.KafkaConfig) (service.Publisher, error) {
	cl, err := kafka.New(cfg)
	if err != nil {
		return nil, err
	}
	if cl == nil {
		return events.NewMemoryPublisher(), nil
	}
	a.closers = append(a.closers, func() error {
		cl.Close()
		return nil
	})
	if cfg.EnsureTopic {
		if err := kafka.EnsureTopic(ctx, cl, cfg.Topic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
			return nil, err
		}
	}
	a.Checks = append(a.Checks, httptransport.HealthCheck{
		Name:  "kafka",
		Check: func(ctx context.Context) error { return kafka.Health(ctx, cl) },
	})
	return events.NewKafkaPublisher(cl, cfg.Topic, events.WithLogger(a.logger)), nil
}
