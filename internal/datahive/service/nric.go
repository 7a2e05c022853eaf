package service

import (
	"context"

	"recon/internal/datahive/aggregator"
	"recon/internal/datahive/merge"
	"recon/internal/datahive/models"
	"recon/internal/datahive/schema"
)

// NRICService reconciles local-person identifiers: welfare assistance plus
// the common custody and release records.
type NRICService struct {
	base
	common *CommonService
}

func NewNRICService(agg Aggregator, cfg Config, opts ...Option) *NRICService {
	return &NRICService{
		base:   newBase(agg, cfg, opts),
		common: NewCommonService(agg, cfg, models.ClassNRIC, opts...),
	}
}

// Reconcile runs a single round over every NRIC source.
func (s *NRICService) Reconcile(ctx context.Context, pairs []models.Pair) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := models.UniqueIdentifiers(pairs)
	report := &Report{Class: models.ClassNRIC, Identifiers: len(ids)}
	if len(ids) == 0 {
		return report, nil
	}

	ctx, span := s.start(ctx, models.ClassNRIC, len(pairs), len(ids))
	defer span.End()

	specs := append([]*schema.Spec{schema.WelfareFSC, schema.WelfareCCC}, s.common.Specs()...)
	res := s.run(ctx, aggregator.Tasks(ids, s.cfg.batchSize(), specs...), report)

	onErr := s.onDecodeError(ctx)
	resolved := resolutions(ids)
	for _, id := range ids {
		r := resolved[id]
		// Both schemes are kept, family services first.
		r.Facts.Welfare = append(
			merge.All(res.RowsFor(schema.SourceWelfareFSC, id), schema.DecodeWelfare, onErr),
			merge.All(res.RowsFor(schema.SourceWelfareCCC, id), schema.DecodeWelfare, onErr)...,
		)
		markUnavailable(r, res, id, schema.SourceWelfareFSC, schema.SourceWelfareCCC)
		s.common.resolve(ctx, res, id, r)
	}

	report.Results = BuildResults(models.ClassNRIC, pairs, resolved)
	return report, nil
}
