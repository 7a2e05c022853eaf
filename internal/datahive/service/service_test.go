package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"recon/internal/datahive/aggregator"
	"recon/internal/datahive/models"
	"recon/internal/datahive/query"
	"recon/internal/datahive/query/mocks"
	"recon/internal/datahive/schema"
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	client    *mocks.MockClient
	warehouse *fakeWarehouse
	agg       *aggregator.Aggregator
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockClient(s.ctrl)
	s.warehouse = newFakeWarehouse()
	s.client.EXPECT().Query(gomock.Any(), gomock.Any()).DoAndReturn(s.warehouse.Query).AnyTimes()

	exec := query.NewExecutor(s.client, query.WithRetryPolicy(query.RetryPolicy{
		MaxAttempts:    3,
		Delay:          0,
		AttemptTimeout: time.Second,
	}))
	s.agg = aggregator.New(exec)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func pairs(vals ...string) []models.Pair {
	out := make([]models.Pair, 0, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		out = append(out, models.Pair{Identifier: vals[i], CaseReference: vals[i+1]})
	}
	return out
}

func company(uen, name string) map[string]string {
	return map[string]string{
		"UEN":                            uen,
		"ENTITY_NAME":                    name,
		"ENTITY_TYPE":                    "LC",
		"ADDRESS_ONE_BLOCK_HOUSE_NUMBER": "10",
		"ADDRESS_ONE_LEVEL_NUMBER":       "05",
		"ADDRESS_ONE_POSTAL_CODE":        "049315",
	}
}

func (s *ServiceSuite) TestEmptyInputIssuesNoQueries() {
	for _, svc := range []Reconciler{
		NewNRICService(s.agg, Config{}),
		NewFINService(s.agg, Config{}),
		NewUENService(s.agg, Config{}),
	} {
		report, err := svc.Reconcile(context.Background(), nil)
		s.Require().NoError(err)
		s.Empty(report.Results)
		s.Empty(report.Outcomes)
	}
	s.Empty(s.warehouse.calls)
}

func (s *ServiceSuite) TestCancelledContextIsReturned() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFINService(s.agg, Config{}).Reconcile(ctx, pairs("F1234567N", "N1"))
	s.ErrorIs(err, context.Canceled)
}

func (s *ServiceSuite) TestSharedIdentifierFetchedOnceAndFannedOut() {
	s.warehouse.add(schema.Death, map[string]string{"FIN": "S1234567A", "DATE_OF_DEATH": "2024-03-01"})

	report, err := NewFINService(s.agg, Config{}).Reconcile(context.Background(),
		pairs("S1234567A", "N1", "S1234567A", "N2", "E7654321", "N3"))
	s.Require().NoError(err)

	s.Equal(2, report.Identifiers)
	s.Require().Len(report.Results, 3)
	for _, spec := range []*schema.Spec{schema.Death, schema.PRGrant, schema.EPPass, schema.Custody} {
		s.Equal(1, s.warehouse.timesAsked(spec, "S1234567A"), spec.Table)
		s.Equal(1, s.warehouse.timesAsked(spec, "E7654321"), spec.Table)
	}

	n1, n2, n3 := report.Results[0], report.Results[1], report.Results[2]
	s.Require().NotNil(n1.Facts.Death)
	s.Require().NotNil(n2.Facts.Death)
	s.Equal("N1", n1.Facts.Death.CaseReference)
	s.Equal("N2", n2.Facts.Death.CaseReference)
	s.Equal(n1.Facts.Death.DateOfDeath, n2.Facts.Death.DateOfDeath)
	s.NotSame(n1.Facts.Death, n2.Facts.Death)
	s.Nil(n3.Facts.Death)
}

func (s *ServiceSuite) TestDuplicatePairsCollapseToOneResult() {
	report, err := NewNRICService(s.agg, Config{}).Reconcile(context.Background(),
		pairs("S1234567A", "N1", "S1234567A", "N1"))
	s.Require().NoError(err)
	s.Len(report.Results, 1)
}

func (s *ServiceSuite) TestChunkCount() {
	var in []models.Pair
	for i := 0; i < 25; i++ {
		in = append(in, models.Pair{Identifier: fmt.Sprintf("S%07dA", i), CaseReference: "N"})
	}

	_, err := NewNRICService(s.agg, Config{BatchSize: 10}).Reconcile(context.Background(), in)
	s.Require().NoError(err)
	s.Equal(3, s.warehouse.statements(schema.WelfareFSC))
	s.Equal(3, s.warehouse.statements(schema.Release))
}

func (s *ServiceSuite) TestNRICKeepsBothWelfareSchemesInOrder() {
	s.warehouse.add(schema.WelfareCCC, map[string]string{"BENEFICIARY_ID_NO": "S1234567A", "BENEFICIARY_NAME": "ccc"})
	s.warehouse.add(schema.WelfareFSC, map[string]string{"BENEFICIARY_ID_NO": "S1234567A", "BENEFICIARY_NAME": "fsc"})
	s.warehouse.add(schema.Custody, map[string]string{"UIN": "S1234567A", "CURRENT_CUSTODY_STATUS": "IN"})
	s.warehouse.add(schema.Release, map[string]string{"UIN": "S1234567A", "INMATE_NUMBER": "X1"})
	s.warehouse.add(schema.Release, map[string]string{"UIN": "S1234567A"})

	report, err := NewNRICService(s.agg, Config{}).Reconcile(context.Background(), pairs("S1234567A", "N1"))
	s.Require().NoError(err)

	facts := report.Results[0].Facts
	s.Require().Len(facts.Welfare, 2)
	s.Equal(models.WelfareFSC, facts.Welfare[0].Source)
	s.Equal(models.WelfareCCC, facts.Welfare[1].Source)
	s.Len(facts.Custody, 1)
	s.Len(facts.Incarcerations, 1, "release rows without an inmate number are skipped")
	s.Equal("N1", facts.Incarcerations[0].CaseReference)
}

func (s *ServiceSuite) TestSCOnlyAskedForIdsPRDidNotResolve() {
	s.warehouse.add(schema.PRGrant, map[string]string{"FIN": "F1111111A", "UIN": "S9000001A"})
	s.warehouse.add(schema.SCGrant, map[string]string{"FIN": "F1111111A", "UIN": "S9999999Z"})
	s.warehouse.add(schema.SCGrant, map[string]string{"FIN": "F2222222B", "UIN": "S9000002B"})

	report, err := NewFINService(s.agg, Config{}).Reconcile(context.Background(),
		pairs("F1111111A", "N1", "F2222222B", "N2", "F3333333C", "N3"))
	s.Require().NoError(err)

	s.Equal(0, s.warehouse.timesAsked(schema.SCGrant, "F1111111A"))
	s.Equal(1, s.warehouse.timesAsked(schema.SCGrant, "F2222222B"))
	s.Equal(1, s.warehouse.timesAsked(schema.SCGrant, "F3333333C"))

	pr := report.Results[0].Facts.Conversion
	s.Require().NotNil(pr)
	s.Equal(models.ConversionPR, pr.Kind)
	s.Equal("S9000001A", *pr.UIN)

	sc := report.Results[1].Facts.Conversion
	s.Require().NotNil(sc)
	s.Equal(models.ConversionSC, sc.Kind)

	s.Nil(report.Results[2].Facts.Conversion)
	s.Empty(report.Results[2].Degraded)
}

func (s *ServiceSuite) TestConversionDegradedWhenGrantSourcesFail() {
	s.warehouse.failTable(schema.PRGrant, errWarehouseDown)
	s.warehouse.failTable(schema.SCGrant, errWarehouseDown)

	report, err := NewFINService(s.agg, Config{}).Reconcile(context.Background(), pairs("F1111111A", "N1"))
	s.Require().NoError(err)

	res := report.Results[0]
	s.Nil(res.Facts.Conversion)
	s.True(res.IsDegraded(models.DegradedConversion))
	s.True(res.IsDegraded(models.SourceUnavailable("pr_grant")))
	s.True(res.IsDegraded(models.SourceUnavailable("sc_grant")))
	s.Equal(3, s.warehouse.timesAsked(schema.SCGrant, "F1111111A"), "SC is still asked, once per attempt")
	s.ElementsMatch([]string{"pr_grant", "sc_grant"}, report.FailedSources())
}

func (s *ServiceSuite) TestEmploymentPassBeatsWorkPermit() {
	s.warehouse.add(schema.EPPass, map[string]string{"FIN": "F1111111A", "ISACTIVE": "1", "PASSTYPE_CD": "EP"})
	s.warehouse.add(schema.EPForeigner, map[string]string{"FIN": "F1111111A", "BLOCK_HOUSE_NO": "1", "POSTAL_CODE_NO": "123456"})
	s.warehouse.add(schema.WPWorker, map[string]string{"FIN": "F1111111A", "WORK_PERMIT_NO": "WP1", "BLOCK_HOUSE_NO": "9"})
	s.warehouse.add(schema.WPPass, map[string]string{"WORK_PERMIT_NO": "WP1", "PASS_TYPE_CD": "WP"})

	s.warehouse.add(schema.WPWorker, map[string]string{"FIN": "F2222222B", "WORK_PERMIT_NO": "WP2", "BLOCK_HOUSE_NO": "22"})
	s.warehouse.add(schema.WPPass, map[string]string{"WORK_PERMIT_NO": "WP2", "PASS_TYPE_CD": "WP"})

	s.warehouse.add(schema.EPPass, map[string]string{"FIN": "F3333333C", "ISACTIVE": "0"})

	svc := NewFINService(s.agg, Config{})
	for i := 0; i < 3; i++ {
		report, err := svc.Reconcile(context.Background(),
			pairs("F1111111A", "N1", "F2222222B", "N2", "F3333333C", "N3"))
		s.Require().NoError(err)

		ep := report.Results[0].Facts.WorkAuthorization
		s.Require().NotNil(ep)
		s.Equal(models.WorkPassEP, ep.Kind)
		s.Require().NotNil(ep.Address)
		s.Equal("123456", *ep.Address.PostalCode)

		wp := report.Results[1].Facts.WorkAuthorization
		s.Require().NotNil(wp)
		s.Equal(models.WorkPassWP, wp.Kind)
		s.Equal("F2222222B", wp.Identifier)
		s.Equal("22", *wp.Address.Block)

		s.Nil(report.Results[2].Facts.WorkAuthorization, "inactive EP is ignored")
	}
	s.Equal(0, s.warehouse.timesAsked(schema.EPForeigner, "F3333333C"))
	s.Equal(3, s.warehouse.timesAsked(schema.WPPass, "WP1"))
}

func (s *ServiceSuite) TestEmploymentPassKeptWithoutForeignerRow() {
	s.warehouse.add(schema.EPPass, map[string]string{"FIN": "F1111111A", "ISACTIVE": "1"})

	report, err := NewFINService(s.agg, Config{}).Reconcile(context.Background(), pairs("F1111111A", "N1"))
	s.Require().NoError(err)

	ep := report.Results[0].Facts.WorkAuthorization
	s.Require().NotNil(ep)
	s.Nil(ep.Address)
}

func (s *ServiceSuite) TestLongTermPassBeatsShortTerm() {
	s.warehouse.add(schema.STP, map[string]string{"FIN": "F1111111A", "DATE_OF_EXPIRY": "2025-01-01"})
	s.warehouse.add(schema.LTVP, map[string]string{"FIN": "F1111111A", "DATEOF_EXPIRY": "2026-01-01"})
	s.warehouse.add(schema.STP, map[string]string{"FIN": "F2222222B", "DATE_OF_EXPIRY": "2025-01-01"})

	report, err := NewFINService(s.agg, Config{}).Reconcile(context.Background(),
		pairs("F1111111A", "N1", "F2222222B", "N2"))
	s.Require().NoError(err)

	s.Equal(models.PassLTVP, report.Results[0].Facts.ResidencyPass.Kind)
	s.Equal(models.PassSTP, report.Results[1].Facts.ResidencyPass.Kind)
	s.Equal(2025, report.Results[1].Facts.ResidencyPass.DateOfExpiry.Year())
}

func (s *ServiceSuite) TestRegisteredCompanyIsDefinitive() {
	// Contradictory fixture: T08LL0001A is in both sources.
	s.warehouse.add(schema.CompanyRegistered, company("T08LL0001A", "Registered Pte Ltd"))
	s.warehouse.add(schema.CompanyDeregistered, company("T08LL0001A", "Old Name"))
	s.warehouse.add(schema.CompanyDeregistered, company("201912345K", "Gone Pte Ltd"))

	report, err := NewUENService(s.agg, Config{BatchSize: 1}).Reconcile(context.Background(),
		pairs("T08LL0001A", "N1", "201912345K", "N2", "53000000X", "N3"))
	s.Require().NoError(err)

	s.Equal(0, s.warehouse.timesAsked(schema.CompanyDeregistered, "T08LL0001A"))
	s.Equal(1, s.warehouse.timesAsked(schema.CompanyDeregistered, "201912345K"))

	reg := report.Results[0]
	s.Require().NotNil(reg.Facts.Company)
	s.False(reg.Facts.Company.Deregistered)
	s.Equal("Registered Pte Ltd", *reg.Facts.Company.Name)

	dereg := report.Results[1]
	s.Require().NotNil(dereg.Facts.Company)
	s.True(dereg.Facts.Company.Deregistered)

	missing := report.Results[2]
	s.Nil(missing.Facts.Company)
	s.True(missing.NotFound)
	s.False(missing.HasError())
}

func (s *ServiceSuite) TestFailedRegisteredChunkIsAnInterfaceError() {
	s.warehouse.failTable(schema.CompanyRegistered, errWarehouseDown)

	report, err := NewUENService(s.agg, Config{}).Reconcile(context.Background(), pairs("T08LL0001A", "N1"))
	s.Require().NoError(err)

	res := report.Results[0]
	s.True(res.HasError())
	s.Contains(res.Error, "DataHive query error")
	s.False(res.NotFound)
	s.Equal(0, s.warehouse.statements(schema.CompanyDeregistered))
}

func (s *ServiceSuite) TestEnrichmentOnlyWhenEnabled() {
	s.warehouse.add(schema.CompanyDeregistered, company("201912345K", "Gone Pte Ltd"))
	s.warehouse.add(schema.Shareholder, map[string]string{"COMPANY_UEN": "201912345K", "SHAREHOLDER_PERSON_ID_NO": "S1234567A", "SHAREHOLDER_SHARE_ALLOTTED_NO": "100"})
	s.warehouse.add(schema.Board, map[string]string{"ENTITY_UEN": "201912345K", "PERSON_IDENTIFICATION_NUMBER": "S7654321B"})

	report, err := NewUENService(s.agg, Config{}).Reconcile(context.Background(), pairs("201912345K", "N1"))
	s.Require().NoError(err)
	s.Empty(report.Results[0].Facts.Shareholders)
	s.Equal(0, s.warehouse.statements(schema.Shareholder))

	report, err = NewUENService(s.agg, Config{EnrichDeregistered: true}).Reconcile(context.Background(), pairs("201912345K", "N1"))
	s.Require().NoError(err)
	facts := report.Results[0].Facts
	s.Require().Len(facts.Shareholders, 1)
	s.Equal(int64(100), *facts.Shareholders[0].SharesAllotted)
	s.Len(facts.BoardMembers, 1)
}

func (s *ServiceSuite) TestCommonServiceQueriesOnlyCustodyAndRelease() {
	s.warehouse.add(schema.Custody, map[string]string{"UIN": "S1234567A", "INSTIT_CODE": "CC"})

	report, err := NewCommonService(s.agg, Config{}, models.ClassNRIC).Reconcile(context.Background(), pairs("S1234567A", "N1"))
	s.Require().NoError(err)
	s.Len(report.Results[0].Facts.Custody, 1)
	s.Equal(0, s.warehouse.statements(schema.WelfareFSC))
}

func TestBuildResults(t *testing.T) {
	death := &models.DeathFact{Subject: models.Subject{Identifier: "S1"}, DateOfDeath: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	resolved := map[string]*Resolution{
		"S1": {Facts: models.MergedFacts{Death: death}, Degraded: []models.Degradation{models.DegradedConversion}},
		"U1": {NotFound: true},
	}

	out := BuildResults(models.ClassFIN, pairs("S1", "N1", "U1", "N2", "S1", "N1", "", "N4", "X1", "N5"), resolved)
	require.Len(t, out, 3)

	assert.Equal(t, "S1|N1", out[0].CacheKey)
	assert.Equal(t, "N1", out[0].Facts.Death.CaseReference)
	assert.Empty(t, death.CaseReference, "source facts are not stamped in place")
	assert.True(t, out[0].IsDegraded(models.DegradedConversion))

	assert.True(t, out[1].NotFound)
	assert.True(t, out[2].Facts.IsEmpty())
	assert.Equal(t, models.ClassFIN, out[2].Class)
}

func TestReportFailedSources(t *testing.T) {
	r := &Report{Outcomes: []query.Outcome{
		{Source: schema.SourceDeath},
		{Source: schema.SourcePRGrant, Err: errWarehouseDown},
		{Source: schema.SourcePRGrant, Chunk: 1, Err: errWarehouseDown},
		{Source: schema.SourceCustody, Err: errWarehouseDown},
	}}
	assert.Equal(t, []string{"pr_grant", "custody"}, r.FailedSources())
}
