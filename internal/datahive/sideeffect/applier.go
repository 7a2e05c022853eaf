package sideeffect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"recon/internal/datahive/metrics"
	"recon/internal/datahive/models"
	"recon/internal/datahive/store"
	"recon/internal/suspension"
	"recon/pkg/requestcontext"
)

// ErrStatusRejected is returned when the status API declines a suspension.
var ErrStatusRejected = errors.New("status API rejected suspension")

// Config identifies who applies suspensions.
type Config struct {
	ActorID     string `yaml:"actor_id"`
	SubsystemID string `yaml:"subsystem_id"`
	// RevivalDays is used for TS-SYS when the suspension reason table has
	// no entry.
	RevivalDays int `yaml:"revival_days"`
}

// Applier writes the records and status codes for one case.
type Applier struct {
	store   store.Store
	status  suspension.Applier
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Applier.
type Option func(*Applier)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Applier) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Applier) {
		a.metrics = m
	}
}

// WithClock overrides time.Now for suspension and revival dates.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) {
		a.now = now
	}
}

func New(s store.Store, status suspension.Applier, cfg Config, opts ...Option) *Applier {
	a := &Applier{
		store:  s,
		status: status,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply writes the registry records of result in one transaction, then
// applies each derived status code. It returns the codes applied or already
// on record before the first failure.
func (a *Applier) Apply(ctx context.Context, notice models.Notice, result *models.ConsolidatedResult) ([]models.StatusCode, error) {
	if result == nil {
		return nil, nil
	}
	if err := a.store.RunInTx(ctx, func(ctx context.Context) error {
		return a.writeRecords(ctx, notice, result)
	}); err != nil {
		return nil, fmt.Errorf("writing records for notice %s: %w", notice.CaseReference, err)
	}

	var applied []models.StatusCode
	for _, act := range Derive(notice, result) {
		if err := a.applyStatus(ctx, notice, act); err != nil {
			a.metrics.IncrementSideEffect(act.Code.String(), "failed")
			return applied, fmt.Errorf("applying %s to notice %s: %w", act.Code, notice.CaseReference, err)
		}
		applied = append(applied, act.Code)
	}
	return applied, nil
}

// applyStatus applies one code at most once per notice. A code already in
// the suspended-notice ledger only has its remark refreshed.
func (a *Applier) applyStatus(ctx context.Context, notice models.Notice, act Action) error {
	ledger := store.Fields{
		"noticeNo":           notice.CaseReference,
		"suspensionType":     string(act.Code.Type),
		"reasonOfSuspension": string(act.Code.Reason),
	}
	existing, err := a.store.Query(ctx, TableSuspendedNotice, ledger)
	if err != nil {
		return fmt.Errorf("checking suspension ledger: %w", err)
	}
	if len(existing) > 0 {
		if _, err := a.store.Patch(ctx, TableSuspendedNotice, ledger, store.Fields{"suspensionRemarks": act.Remark}); err != nil {
			return fmt.Errorf("updating suspension remark: %w", err)
		}
		a.metrics.IncrementSideEffect(act.Code.String(), "skipped")
		a.logger.InfoContext(ctx, "suspension already on record",
			"run_id", requestcontext.RunID(ctx),
			"notice_no", notice.CaseReference,
			"code", act.Code.String(),
		)
		return nil
	}

	var days *int
	if act.Code == models.CodeSystemError {
		n, err := a.revivalDays(ctx, act.Code)
		if err != nil {
			return err
		}
		days = &n
	}

	resp, err := a.status.Apply(ctx, suspension.Request{
		NoticeNo:       notice.CaseReference,
		SuspensionType: string(act.Code.Type),
		Reason:         string(act.Code.Reason),
		Remark:         act.Remark,
		ActorID:        a.cfg.ActorID,
		SubsystemID:    a.cfg.SubsystemID,
		RevivalDays:    days,
	})
	if err != nil {
		return fmt.Errorf("calling status API: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("%w: %s", ErrStatusRejected, resp.ErrorMessage())
	}

	now := a.now()
	var revival *time.Time
	if days != nil {
		d := truncateDay(now).AddDate(0, 0, *days)
		revival = &d
	}
	err = a.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := a.store.Patch(ctx, TableValidOffenceNotice, store.Fields{"noticeNo": notice.CaseReference}, store.Fields{
			"suspensionType":        string(act.Code.Type),
			"eprReasonOfSuspension": string(act.Code.Reason),
			"eprDateOfSuspension":   now,
			"dueDateOfRevival":      revival,
			"isSync":                "N",
		}); err != nil {
			return fmt.Errorf("updating offence notice: %w", err)
		}
		row := store.Fields{
			"suspensionRemarks":            act.Remark,
			"dateOfSuspension":             now,
			"dueDateOfRevival":             revival,
			"officerAuthorisingSuspension": a.cfg.ActorID,
			"suspensionSource":             a.cfg.SubsystemID,
		}
		for k, v := range ledger {
			row[k] = v
		}
		if err := a.store.Create(ctx, TableSuspendedNotice, row); err != nil {
			return fmt.Errorf("recording suspension: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.metrics.IncrementSideEffect(act.Code.String(), "applied")
	a.logger.InfoContext(ctx, "suspension applied",
		"run_id", requestcontext.RunID(ctx),
		"notice_no", notice.CaseReference,
		"code", act.Code.String(),
		"remark", act.Remark,
	)
	return nil
}

// revivalDays reads the configured revival period of code, falling back to
// Config.RevivalDays.
func (a *Applier) revivalDays(ctx context.Context, code models.StatusCode) (int, error) {
	recs, err := a.store.Query(ctx, TableSuspensionReason, store.Fields{
		"suspensionType":     string(code.Type),
		"reasonOfSuspension": string(code.Reason),
	})
	if err != nil {
		return 0, fmt.Errorf("reading revival days for %s: %w", code, err)
	}
	for _, r := range recs {
		if n, ok := toInt(r["noOfDaysForRevival"]); ok {
			return n, nil
		}
	}
	return a.cfg.RevivalDays, nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	case []byte:
		n, err := strconv.Atoi(string(t))
		return n, err == nil
	}
	return 0, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
