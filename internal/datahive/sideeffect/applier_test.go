package sideeffect

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"recon/internal/datahive/metrics"
	"recon/internal/datahive/models"
	"recon/internal/datahive/store"
	"recon/internal/suspension"
	suspensionmocks "recon/internal/suspension/mocks"
)

type ApplierSuite struct {
	suite.Suite
	ctx     context.Context
	ctrl    *gomock.Controller
	status  *suspensionmocks.MockApplier
	store   *store.MemoryStore
	metrics *metrics.Metrics
	now     time.Time
	applier *Applier
}

func TestApplierSuite(t *testing.T) {
	suite.Run(t, new(ApplierSuite))
}

func (s *ApplierSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.status = suspensionmocks.NewMockApplier(s.ctrl)
	s.store = store.NewMemoryStore()
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.now = time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC)
	s.applier = New(s.store, s.status, Config{
		ActorID:     "ocmsizmgr",
		SubsystemID: "004",
		RevivalDays: 14,
	}, WithMetrics(s.metrics), WithClock(func() time.Time { return s.now }))
}

func (s *ApplierSuite) seed(table string, fields store.Fields) {
	s.Require().NoError(s.store.Create(s.ctx, table, fields))
}

func (s *ApplierSuite) records(table string, filters store.Fields) []store.Record {
	recs, err := s.store.Query(s.ctx, table, filters)
	s.Require().NoError(err)
	return recs
}

func (s *ApplierSuite) expectAccepted(times int) {
	s.status.EXPECT().Apply(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req suspension.Request) (*suspension.Response, error) {
			return &suspension.Response{NoticeNo: req.NoticeNo, AppCode: suspension.AppCodeSuccess}, nil
		}).Times(times)
}

func notice(id, ref string) models.Notice {
	return models.Notice{Pair: models.Pair{Identifier: id, CaseReference: ref}}
}

func (s *ApplierSuite) TestSharedDeathFactAppliesPerCase() {
	death := &models.DeathFact{DateOfDeath: day(2025, 5, 1)}
	offence1, offence2 := day(2025, 1, 10), day(2025, 2, 20)
	n1 := models.Notice{Pair: models.Pair{Identifier: "S1234567A", CaseReference: "N1"}, OffenceDate: &offence1}
	n2 := models.Notice{Pair: models.Pair{Identifier: "S1234567A", CaseReference: "N2"}, OffenceDate: &offence2}
	facts := models.MergedFacts{Death: death}

	var seen []string
	s.status.EXPECT().Apply(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req suspension.Request) (*suspension.Response, error) {
			seen = append(seen, req.NoticeNo)
			s.Equal("PS", req.SuspensionType)
			s.Equal("RIP", req.Reason)
			s.Nil(req.RevivalDays)
			return &suspension.Response{NoticeNo: req.NoticeNo}, nil
		}).Times(2)

	for _, n := range []models.Notice{n1, n2} {
		res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassFIN, Facts: facts.Stamp(n.CaseReference)}
		applied, err := s.applier.Apply(s.ctx, n, res)
		s.Require().NoError(err)
		s.Equal([]models.StatusCode{models.CodeDeceasedAfterOffence}, applied)
	}

	s.Equal([]string{"N1", "N2"}, seen)
	s.Equal(2, s.store.Count(TableSuspendedNotice))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.SideEffects.WithLabelValues("PS-RIP", "applied")))
}

func (s *ApplierSuite) TestStatusIsIdempotentPerCase() {
	n := notice("T08LL0001A", "N5")
	s.seed(TableValidOffenceNotice, store.Fields{"noticeNo": "N5"})
	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassUEN, NotFound: true}

	s.expectAccepted(1)

	for i := 0; i < 2; i++ {
		applied, err := s.applier.Apply(s.ctx, n, res)
		s.Require().NoError(err)
		s.Equal([]models.StatusCode{models.CodeSystemError}, applied)
	}

	ledger := s.records(TableSuspendedNotice, store.Fields{"noticeNo": "N5"})
	s.Require().Len(ledger, 1)
	s.Equal("TS", ledger[0]["suspensionType"])
	s.Equal("SYS", ledger[0]["reasonOfSuspension"])
	s.Equal(RemarkNotFound, ledger[0]["suspensionRemarks"])
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SideEffects.WithLabelValues("TS-SYS", "applied")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SideEffects.WithLabelValues("TS-SYS", "skipped")))
}

func (s *ApplierSuite) TestRevivalDaysFromReasonTable() {
	n := notice("T08LL0001A", "N6")
	s.seed(TableValidOffenceNotice, store.Fields{"noticeNo": "N6", "isSync": "Y"})
	s.seed(TableSuspensionReason, store.Fields{"suspensionType": "TS", "reasonOfSuspension": "SYS", "noOfDaysForRevival": int64(21)})

	s.status.EXPECT().Apply(gomock.Any(), suspension.Request{
		NoticeNo:       "N6",
		SuspensionType: "TS",
		Reason:         "SYS",
		Remark:         "DataHive query error - timeout",
		ActorID:        "ocmsizmgr",
		SubsystemID:    "004",
		RevivalDays:    intp(21),
	}).Return(&suspension.Response{NoticeNo: "N6", AppCode: suspension.AppCodeSuccess}, nil)

	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassUEN, Error: "DataHive query error - timeout"}
	_, err := s.applier.Apply(s.ctx, n, res)
	s.Require().NoError(err)

	von := s.records(TableValidOffenceNotice, store.Fields{"noticeNo": "N6"})
	s.Require().Len(von, 1)
	s.Equal("TS", von[0]["suspensionType"])
	s.Equal("SYS", von[0]["eprReasonOfSuspension"])
	s.Equal("N", von[0]["isSync"])
	s.Equal(s.now, von[0]["eprDateOfSuspension"])
	s.Equal(day(2025, 7, 1), von[0]["dueDateOfRevival"])
}

func (s *ApplierSuite) TestRevivalDaysFallBackToConfig() {
	n := notice("T08LL0001A", "N7")
	s.status.EXPECT().Apply(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req suspension.Request) (*suspension.Response, error) {
			s.Require().NotNil(req.RevivalDays)
			s.Equal(14, *req.RevivalDays)
			return &suspension.Response{NoticeNo: req.NoticeNo}, nil
		})

	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassUEN, NotFound: true}
	_, err := s.applier.Apply(s.ctx, n, res)
	s.Require().NoError(err)
}

func (s *ApplierSuite) TestRejectedStatusIsCaseError() {
	n := notice("T08LL0001A", "N8")
	s.status.EXPECT().Apply(gomock.Any(), gomock.Any()).
		Return(&suspension.Response{NoticeNo: "N8", AppCode: suspension.AppCodeFailure, Message: "API call failed: status 500"}, nil)

	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassUEN, NotFound: true}
	applied, err := s.applier.Apply(s.ctx, n, res)
	s.Require().ErrorIs(err, ErrStatusRejected)
	s.Contains(err.Error(), "status 500")
	s.Empty(applied)
	s.Zero(s.store.Count(TableSuspendedNotice))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SideEffects.WithLabelValues("TS-SYS", "failed")))
}

func (s *ApplierSuite) TestDeregisteredCompanyRecords() {
	n := notice("T08LL0001A", "N9")
	s.seed(TableOwnerDriver, store.Fields{"noticeNo": "N9", "idNo": "T08LL0001A", "offenderIndicator": "Y"})
	s.seed(TableOwnerDriverAddress, store.Fields{
		"noticeNo": "N9", "ownerDriverIndicator": "O", "typeOfAddress": "mha_reg",
		"blkHseNo": "1", "bldgName": "OLD TOWER",
	})

	s.status.EXPECT().Apply(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req suspension.Request) (*suspension.Response, error) {
			s.Equal("ACR", req.Reason)
			s.Equal(RemarkDeregistered, req.Remark)
			s.Nil(req.RevivalDays)
			return &suspension.Response{NoticeNo: req.NoticeNo}, nil
		})

	dereg := day(2020, 1, 31)
	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassUEN, Facts: models.MergedFacts{
		Company: &models.CompanyFact{
			Name:               strp("ACME PTE LTD"),
			EntityType:         strp("LP"),
			DeregistrationDate: &dereg,
			Address:            validAddress(),
			Deregistered:       true,
		},
	}}
	applied, err := s.applier.Apply(s.ctx, n, res)
	s.Require().NoError(err)
	s.Equal([]models.StatusCode{models.CodeDeregistered}, applied)

	detail := s.records(TableCompanyDetail, store.Fields{"uen": "T08LL0001A", "noticeNo": "N9"})
	s.Require().Len(detail, 1)
	s.Equal("ACME PTE LTD", detail[0]["entityName"])
	s.Equal(dereg, detail[0]["deregistrationDate"])

	addr := s.records(TableOwnerDriverAddress, store.Fields{"noticeNo": "N9"})
	s.Require().Len(addr, 1)
	s.Equal("10", addr[0]["blkHseNo"])
	s.Equal("079903", addr[0]["postalCode"])
	s.Nil(addr[0]["bldgName"], "absent parts overwrite stored values")

	od := s.records(TableOwnerDriver, store.Fields{"noticeNo": "N9"})
	s.Equal("ACME PTE LTD", od[0]["name"])
	s.Nil(od[0]["gazettedFlag"])

	von := s.records(TableSuspendedNotice, store.Fields{"noticeNo": "N9"})
	s.Require().Len(von, 1)
	s.Nil(von[0]["dueDateOfRevival"])
}

func (s *ApplierSuite) TestInvalidCompanyAddressIsWritten() {
	n := notice("T08LL0001A", "N10")
	a := validAddress()
	a.Block = nil

	s.status.EXPECT().Apply(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req suspension.Request) (*suspension.Response, error) {
			s.Equal(RemarkInvalidBlock, req.Remark)
			return &suspension.Response{NoticeNo: req.NoticeNo}, nil
		})

	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassUEN, Facts: models.MergedFacts{
		Company: &models.CompanyFact{Name: strp("ACME"), Address: a},
	}}
	applied, err := s.applier.Apply(s.ctx, n, res)
	s.Require().NoError(err)
	s.Equal([]models.StatusCode{models.CodeSystemError}, applied)
	s.Equal(1, s.store.Count(TableOwnerDriverAddress))
}

func (s *ApplierSuite) TestEmptyCompanyAddressIsNotWritten() {
	n := notice("T08LL0001A", "N11")
	s.expectAccepted(1)

	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassUEN, Facts: models.MergedFacts{
		Company: &models.CompanyFact{Name: strp("ACME")},
	}}
	_, err := s.applier.Apply(s.ctx, n, res)
	s.Require().NoError(err)
	s.Zero(s.store.Count(TableOwnerDriverAddress))
	s.Equal(1, s.store.Count(TableCompanyDetail))
}

func (s *ApplierSuite) TestListedCompanyEnrichment() {
	n := notice("T08LL0001A", "N12")
	s.seed(TableOwnerDriver, store.Fields{"noticeNo": "N12"})
	s.expectAccepted(1)

	shares := int64(500)
	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassUEN, Facts: models.MergedFacts{
		Company: &models.CompanyFact{EntityType: strp("LC"), Address: validAddress(), Deregistered: true},
		Shareholders: []models.ShareholderFact{
			{PersonID: strp("S1234567A-EXTRA"), SharesAllotted: &shares},
			{CompanyProfileUEN: strp("201912345KXYZ")},
			{Category: strp("orphan")},
		},
		BoardMembers: []models.BoardMemberFact{
			{PersonID: strp("S7654321B"), PositionHeldCode: strp("DIR")},
			{PositionHeldCode: strp("SEC")},
		},
	}}
	_, err := s.applier.Apply(s.ctx, n, res)
	s.Require().NoError(err)

	holders := s.records(TableShareholder, store.Fields{"companyUen": "T08LL0001A", "noticeNo": "N12"})
	s.Require().Len(holders, 2)
	s.Equal("S1234567A-EX", holders[0]["personIdNo"])
	s.Equal(int64(500), holders[0]["shareAllottedNo"])
	s.Equal("201912345", holders[1]["personIdNo"])

	board := s.records(TableBoard, store.Fields{"entityUen": "T08LL0001A"})
	s.Require().Len(board, 1)
	s.Equal("DIR", board[0]["positionHeldCode"])

	od := s.records(TableOwnerDriver, store.Fields{"noticeNo": "N12"})
	s.Equal("Y", od[0]["gazettedFlag"])
}

func (s *ApplierSuite) TestFINRecords() {
	n := notice("F1234567N", "N20")
	s.seed(TableOwnerDriver, store.Fields{"noticeNo": "N20", "regUnit": "01"})
	s.expectAccepted(1)

	expiry := day(2026, 1, 1)
	granted := day(2024, 8, 1)
	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassFIN, Facts: models.MergedFacts{
		WorkAuthorization: &models.WorkAuthorizationFact{
			Kind:       models.WorkPassEP,
			PassType:   strp("EP"),
			ExpiryDate: &expiry,
			Active:     true,
			Address:    &models.Address{Block: strp("22"), Street: strp("ORCHARD RD"), PostalCode: strp("238888")},
		},
		ResidencyPass: &models.ResidencyPassFact{
			Kind:         models.PassLTVP,
			DateOfExpiry: &expiry,
			Address:      &models.Address{Block: strp("99")},
		},
		Conversion: &models.ConversionFact{Kind: models.ConversionPR, UIN: strp("S7654321B"), PreviousID: strp("F1234567N"), GrantDate: &granted},
	}}
	applied, err := s.applier.Apply(s.ctx, n, res)
	s.Require().NoError(err)
	s.Equal([]models.StatusCode{models.CodeConverted}, applied)

	wp := s.records(TableWorkPermit, store.Fields{"idNo": "F1234567N", "noticeNo": "N20"})
	s.Require().Len(wp, 1)
	s.Equal("EP", wp[0]["passType"])
	s.Equal(expiry, wp[0]["expiryDate"])

	od := s.records(TableOwnerDriver, store.Fields{"noticeNo": "N20"})
	s.Require().Len(od, 1)
	s.Equal("22", od[0]["regBlkHseNo"], "work pass address wins")
	s.Equal("ORCHARD RD", od[0]["regStreet"])
	s.Equal("01", od[0]["regUnit"], "absent parts are left alone")
	s.Equal("S7654321B", od[0]["newNric"])

	passes := s.records(TablePass, store.Fields{"noticeNo": "N20"})
	s.Require().Len(passes, 1)
	s.Equal(expiry, passes[0]["mhaPassExpiryDate"])
	s.Equal(granted, passes[0]["datePrGranted"])
	s.Equal("F1234567N", passes[0]["previousFin"])
}

func (s *ApplierSuite) TestNRICRecordsAreUpserted() {
	n := notice("S1234567A", "N30")
	release := day(2027, 3, 3)
	res := &models.ConsolidatedResult{Pair: n.Pair, Class: models.ClassNRIC, Facts: models.MergedFacts{
		Welfare: []models.WelfareFact{
			{Source: models.WelfareFSC, BeneficiaryName: strp("TAN AH KOW")},
			{Source: models.WelfareCCC, BeneficiaryName: strp("TAN AH KOW")},
		},
		Custody:        []models.CustodyFact{{CustodyStatus: strp("IN"), InstitutionCode: strp("CC1")}},
		Incarcerations: []models.IncarcerationFact{{InmateNumber: "A123", TentativeReleaseDate: &release}},
	}}

	for i := 0; i < 2; i++ {
		applied, err := s.applier.Apply(s.ctx, n, res)
		s.Require().NoError(err)
		s.Empty(applied)
	}

	s.Equal(2, s.store.Count(TableComcare))
	s.Equal(1, s.store.Count(TableCustody))
	s.Equal(1, s.store.Count(TableIncarceration))

	inc := s.records(TableIncarceration, store.Fields{"inmateNumber": "A123"})
	s.Equal("N30", inc[0]["noticeNo"])
	s.Equal(release, inc[0]["tentativeReleaseDate"])
	s.Equal(s.now, inc[0]["referencePeriodOffenceInfo"])
}

func (s *ApplierSuite) TestNilResult() {
	applied, err := s.applier.Apply(s.ctx, notice("S1", "N1"), nil)
	s.NoError(err)
	s.Nil(applied)
}

func intp(v int) *int { return &v }
