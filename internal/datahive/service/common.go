package service

import (
	"context"

	"recon/internal/datahive/aggregator"
	"recon/internal/datahive/merge"
	"recon/internal/datahive/models"
	"recon/internal/datahive/schema"
)

// CommonService resolves the custody and release records that every person
// class shares. NRIC and FIN flows fold its specs into their first round.
type CommonService struct {
	base
	class models.IdentifierClass
}

// NewCommonService builds a custody/release-only reconciler for class.
func NewCommonService(agg Aggregator, cfg Config, class models.IdentifierClass, opts ...Option) *CommonService {
	return &CommonService{base: newBase(agg, cfg, opts), class: class}
}

// Specs are the sources the common lookups need.
func (s *CommonService) Specs() []*schema.Spec {
	return []*schema.Spec{schema.Custody, schema.Release}
}

// Reconcile looks up custody and release records only.
func (s *CommonService) Reconcile(ctx context.Context, pairs []models.Pair) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := models.UniqueIdentifiers(pairs)
	report := &Report{Class: s.class, Identifiers: len(ids)}
	if len(ids) == 0 {
		return report, nil
	}

	ctx, span := s.start(ctx, s.class, len(pairs), len(ids))
	defer span.End()

	res := s.run(ctx, aggregator.Tasks(ids, s.cfg.batchSize(), s.Specs()...), report)
	resolved := resolutions(ids)
	for _, id := range ids {
		s.resolve(ctx, res, id, resolved[id])
	}
	report.Results = BuildResults(s.class, pairs, resolved)
	return report, nil
}

// resolve fills the custody and incarceration lists for id.
func (s *CommonService) resolve(ctx context.Context, res *aggregator.Result, id string, r *Resolution) {
	onErr := s.onDecodeError(ctx)
	r.Facts.Custody = merge.All(res.RowsFor(schema.SourceCustody, id), schema.DecodeCustody, onErr)
	r.Facts.Incarcerations = merge.All(res.RowsFor(schema.SourceRelease, id), schema.DecodeRelease, onErr)
	markUnavailable(r, res, id, schema.SourceCustody, schema.SourceRelease)
}
