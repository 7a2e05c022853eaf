package service

import (
	"context"
	"fmt"

	"recon/internal/datahive/aggregator"
	"recon/internal/datahive/merge"
	"recon/internal/datahive/models"
	"recon/internal/datahive/schema"
)

// UENService reconciles business-registration numbers. A registered entity
// is definitive; the deregistered source is only asked about UENs that no
// registered chunk returned.
type UENService struct {
	base
}

func NewUENService(agg Aggregator, cfg Config, opts ...Option) *UENService {
	return &UENService{base: newBase(agg, cfg, opts)}
}

func (s *UENService) Reconcile(ctx context.Context, pairs []models.Pair) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := models.UniqueIdentifiers(pairs)
	report := &Report{Class: models.ClassUEN, Identifiers: len(ids)}
	if len(ids) == 0 {
		return report, nil
	}

	ctx, span := s.start(ctx, models.ClassUEN, len(pairs), len(ids))
	defer span.End()

	size := s.cfg.batchSize()
	reg := s.run(ctx, aggregator.Tasks(ids, size, schema.CompanyRegistered), report)

	// Global early exit: a UEN found registered in any chunk is never sent
	// to the deregistered source, and neither is one whose chunk failed.
	failedReg := reg.Failed(schema.SourceCompanyRegistered)
	pending := merge.Without(merge.Unresolved(ids, reg.Rows(schema.SourceCompanyRegistered)), failedReg)
	dereg := s.run(ctx, aggregator.Tasks(pending, size, schema.CompanyDeregistered), report)

	onErr := s.onDecodeError(ctx)
	resolved := resolutions(ids)
	var deregistered []string
	for _, id := range ids {
		r := resolved[id]
		if err := reg.FailureFor(schema.SourceCompanyRegistered, id); err != nil {
			r.Error = interfaceError(err)
			r.degrade(models.SourceUnavailable(string(schema.SourceCompanyRegistered)))
			continue
		}

		r.Facts.Company = merge.Company(
			merge.First(reg.RowsFor(schema.SourceCompanyRegistered, id), schema.DecodeCompany, onErr),
			merge.First(dereg.RowsFor(schema.SourceCompanyDeregistered, id), schema.DecodeCompany, onErr),
		)
		switch {
		case r.Facts.Company != nil:
			if r.Facts.Company.Deregistered {
				deregistered = append(deregistered, id)
			}
		case dereg.IsFailed(schema.SourceCompanyDeregistered, id):
			r.Error = interfaceError(dereg.FailureFor(schema.SourceCompanyDeregistered, id))
			r.degrade(models.SourceUnavailable(string(schema.SourceCompanyDeregistered)))
		default:
			r.NotFound = true
		}
	}

	if s.cfg.EnrichDeregistered && len(deregistered) > 0 {
		s.enrich(ctx, deregistered, resolved, report)
	}

	report.Results = BuildResults(models.ClassUEN, pairs, resolved)
	return report, nil
}

// enrich adds shareholders and board members for deregistered companies.
func (s *UENService) enrich(ctx context.Context, ids []string, resolved map[string]*Resolution, report *Report) {
	res := s.run(ctx, aggregator.Tasks(ids, s.cfg.batchSize(), schema.Shareholder, schema.Board), report)
	onErr := s.onDecodeError(ctx)
	for _, id := range ids {
		r := resolved[id]
		r.Facts.Shareholders = merge.All(res.RowsFor(schema.SourceShareholder, id), schema.DecodeShareholder, onErr)
		r.Facts.BoardMembers = merge.All(res.RowsFor(schema.SourceBoard, id), schema.DecodeBoard, onErr)
		markUnavailable(r, res, id, schema.SourceShareholder, schema.SourceBoard)
	}
}

func interfaceError(err error) string {
	return fmt.Sprintf("DataHive query error - %v", err)
}
