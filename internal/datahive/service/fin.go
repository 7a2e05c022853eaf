package service

import (
	"context"

	"recon/internal/datahive/aggregator"
	"recon/internal/datahive/merge"
	"recon/internal/datahive/models"
	"recon/internal/datahive/query"
	"recon/internal/datahive/schema"
	"recon/pkg/platform/batch"
	pstrings "recon/pkg/platform/strings"
)

// FINService reconciles foreign-person identifiers.
//
// The first round asks every chunk for death, PR grant, employment pass, work
// permit holder, visit passes, custody and release. The second round is
// derived per chunk from the first: SC grants only for ids PR did not
// resolve, foreigner addresses only for active EP holders, and work permit
// passes by the permit numbers the worker rows returned.
type FINService struct {
	base
	common *CommonService
}

func NewFINService(agg Aggregator, cfg Config, opts ...Option) *FINService {
	return &FINService{
		base:   newBase(agg, cfg, opts),
		common: NewCommonService(agg, cfg, models.ClassFIN, opts...),
	}
}

// finPartial is what one identifier decoded to after the first round.
type finPartial struct {
	death  *models.DeathFact
	pr     *models.ConversionFact
	ep     *models.WorkAuthorizationFact
	worker *schema.Worker
	ltvp   *models.ResidencyPassFact
	stp    *models.ResidencyPassFact
}

func (s *FINService) Reconcile(ctx context.Context, pairs []models.Pair) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := models.UniqueIdentifiers(pairs)
	report := &Report{Class: models.ClassFIN, Identifiers: len(ids)}
	if len(ids) == 0 {
		return report, nil
	}

	ctx, span := s.start(ctx, models.ClassFIN, len(pairs), len(ids))
	defer span.End()

	size := s.cfg.batchSize()
	specs := append([]*schema.Spec{
		schema.Death, schema.PRGrant, schema.EPPass, schema.WPWorker, schema.LTVP, schema.STP,
	}, s.common.Specs()...)
	r1 := s.run(ctx, aggregator.Tasks(ids, size, specs...), report)

	onErr := s.onDecodeError(ctx)
	partials := make(map[string]*finPartial, len(ids))
	for _, id := range ids {
		partials[id] = &finPartial{
			death:  merge.First(r1.RowsFor(schema.SourceDeath, id), schema.DecodeDeath, onErr),
			pr:     merge.First(r1.RowsFor(schema.SourcePRGrant, id), schema.DecodeConversion, onErr),
			ep:     merge.First(r1.RowsFor(schema.SourceEPPass, id), schema.DecodeEPPass, onErr),
			worker: merge.First(r1.RowsFor(schema.SourceWPWorker, id), schema.DecodeWPWorker, onErr),
			ltvp:   merge.First(r1.RowsFor(schema.SourceLTVP, id), schema.DecodeResidencyPass, onErr),
			stp:    merge.First(r1.RowsFor(schema.SourceSTP, id), schema.DecodeResidencyPass, onErr),
		}
	}

	var tasks []aggregator.Task
	for i, chunk := range batch.Partition(ids, size) {
		tasks = append(tasks, secondRound(i, chunk, r1, partials)...)
	}
	r2 := s.run(ctx, tasks, report)

	resolved := resolutions(ids)
	for _, id := range ids {
		r := resolved[id]
		p := partials[id]

		r.Facts.Death = p.death
		r.Facts.Conversion = s.conversion(ctx, r, r1, r2, id, p)
		r.Facts.WorkAuthorization = merge.WorkAuthorization(
			s.employmentPass(ctx, r2, id, p),
			s.workPermit(ctx, r2, id, p),
		)
		r.Facts.ResidencyPass = merge.ResidencyPass(p.ltvp, p.stp)

		markUnavailable(r, r1, id,
			schema.SourceDeath, schema.SourcePRGrant, schema.SourceEPPass,
			schema.SourceWPWorker, schema.SourceLTVP, schema.SourceSTP)
		markUnavailable(r, r2, id, schema.SourceSCGrant, schema.SourceEPForeigner)
		if p.worker != nil && r2.IsFailed(schema.SourceWPPass, p.worker.WorkPermitNo) {
			r.degrade(models.SourceUnavailable(string(schema.SourceWPPass)))
		}
		s.common.resolve(ctx, r1, id, r)
	}

	report.Results = BuildResults(models.ClassFIN, pairs, resolved)
	return report, nil
}

// secondRound builds the dependent lookups for one first-round chunk.
func secondRound(index int, chunk []string, r1 *aggregator.Result, partials map[string]*finPartial) []aggregator.Task {
	var tasks []aggregator.Task
	add := func(spec *schema.Spec, ids []string) {
		if len(ids) > 0 {
			tasks = append(tasks, aggregator.Task{Spec: spec, Chunk: query.Chunk{Index: index, Identifiers: ids}})
		}
	}

	// Ids whose PR chunk failed are unresolved too, so SC still gets a say.
	add(schema.SCGrant, merge.Unresolved(chunk, r1.Rows(schema.SourcePRGrant)))

	var active, permits []string
	for _, id := range chunk {
		p := partials[id]
		if p.ep != nil {
			active = append(active, id)
		}
		if p.worker != nil {
			permits = append(permits, p.worker.WorkPermitNo)
		}
	}
	add(schema.EPForeigner, active)
	add(schema.WPPass, pstrings.Dedupe(permits))
	return tasks
}

// conversion folds PR over SC. When neither resolved and either lookup
// failed for id, the conversion rules are marked degraded.
func (s *FINService) conversion(ctx context.Context, r *Resolution, r1, r2 *aggregator.Result, id string, p *finPartial) *models.ConversionFact {
	sc := merge.First(r2.RowsFor(schema.SourceSCGrant, id), schema.DecodeConversion, s.onDecodeError(ctx))
	c := merge.Conversion(p.pr, sc)
	if c == nil && (r1.IsFailed(schema.SourcePRGrant, id) || r2.IsFailed(schema.SourceSCGrant, id)) {
		r.degrade(models.DegradedConversion)
		s.logger.WarnContext(ctx, "conversion sources unavailable",
			"identifier", id,
		)
	}
	return c
}

// employmentPass attaches the foreigner address to an active EP. A missing
// foreigner row leaves the address empty but keeps the pass.
func (s *FINService) employmentPass(ctx context.Context, r2 *aggregator.Result, id string, p *finPartial) *models.WorkAuthorizationFact {
	if p.ep == nil {
		return nil
	}
	ep := *p.ep
	ep.Address = merge.First(r2.RowsFor(schema.SourceEPForeigner, id), schema.DecodeEPForeigner, s.onDecodeError(ctx))
	return &ep
}

// workPermit joins the pass found by permit number back to the worker.
func (s *FINService) workPermit(ctx context.Context, r2 *aggregator.Result, id string, p *finPartial) *models.WorkAuthorizationFact {
	if p.worker == nil {
		return nil
	}
	wp := merge.First(r2.RowsFor(schema.SourceWPPass, p.worker.WorkPermitNo), schema.DecodeWPPass, s.onDecodeError(ctx))
	if wp == nil {
		return nil
	}
	wp.Identifier = id
	wp.Address = p.worker.Address
	return wp
}
