package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"recon/internal/datahive/handler/mocks"
	"recon/internal/datahive/models"
	"recon/internal/datahive/service"
	"recon/internal/platform/metrics"
	"recon/internal/platform/middleware"
	"recon/pkg/platform/sentinel"
	"recon/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	runs    *mocks.MockRuns
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.runs = mocks.NewMockRuns(ctrl)

	h := New(s.service,
		WithRuns(s.runs),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.NewWith(prometheus.NewRegistry())),
	)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func summary() *models.RunSummary {
	return &models.RunSummary{
		RunID:       "run-1",
		Class:       models.ClassFIN,
		Pairs:       2,
		Identifiers: 1,
		Applied:     2,
		Results: []models.ConsolidatedResult{
			{Pair: models.Pair{Identifier: "F1234567N", CaseReference: "N1"}, CacheKey: "F1234567N|N1", Class: models.ClassFIN},
			{Pair: models.Pair{Identifier: "F1234567N", CaseReference: "N2"}, CacheKey: "F1234567N|N2", Class: models.ClassFIN},
		},
	}
}

func (s *HandlerSuite) TestReconcile() {
	offence := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s.service.EXPECT().Run(gomock.Any(), models.ClassFIN, []models.Notice{
		{Pair: models.Pair{Identifier: "F1234567N", CaseReference: "N1"}, OffenceDate: &offence, OwnerDriverIndicator: "O"},
		{Pair: models.Pair{Identifier: "F1234567N", CaseReference: "N2"}},
	}).Return(summary(), nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/reconcile/fin", ReconcileRequest{
		Notices: []NoticeRequest{
			{Identifier: " f1234567n ", NoticeNo: "N1", OffenceDate: "2025-03-01", OwnerDriverIndicator: "O"},
			{Identifier: "F1234567N", NoticeNo: "N2"},
		},
	})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusOK(s.T(), rr)
	assert.NotEmpty(s.T(), rr.Header().Get(middleware.RequestIDHeader))
	resp := testutil.UnmarshalResponse[RunResponse](s.T(), rr)
	assert.Equal(s.T(), "run-1", resp.RunID)
	assert.Equal(s.T(), 2, resp.Applied)
	assert.Len(s.T(), resp.Results, 2)
	assert.NotNil(s.T(), resp.Errors)
}

func (s *HandlerSuite) TestReconcileRejectsUnknownClass() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/reconcile/passport", ReconcileRequest{
		Notices: []NoticeRequest{{Identifier: "X1", NoticeNo: "N1"}},
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestReconcileValidation() {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"notices": [`, "bad_request"},
		{"unknown field", `{"notices": [], "extra": 1}`, "bad_request"},
		{"empty notices", `{"notices": []}`, "validation_error"},
		{"missing notice number", `{"notices": [{"identifier": "S1234567A"}]}`, "validation_error"},
		{"bad offence date", `{"notices": [{"identifier": "S1234567A", "notice_no": "N1", "offence_date": "01/03/2025"}]}`, "validation_error"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/reconcile/nric", tt.body)
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, tt.code)
		})
	}
}

func (s *HandlerSuite) TestReconcileServiceErrors() {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unsupported class", fmt.Errorf("%w: %q", service.ErrUnsupportedClass, "UEN"), http.StatusBadRequest, "bad_request"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "service_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().Run(gomock.Any(), models.ClassUEN, gomock.Any()).Return(nil, tt.err)

			req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/reconcile/UEN", ReconcileRequest{
				Notices: []NoticeRequest{{Identifier: "T08LL0001A", NoticeNo: "N9"}},
			})
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatusAndError(s.T(), rr, tt.status, tt.code)
		})
	}
}

func (s *HandlerSuite) TestGetRun() {
	s.runs.EXPECT().Get(gomock.Any(), "run-1").Return(summary(), nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/reconcile/runs/run-1"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "run_id", "run-1")
}

func (s *HandlerSuite) TestGetRunNotFound() {
	s.runs.EXPECT().Get(gomock.Any(), "missing").Return(nil, fmt.Errorf("run missing: %w", sentinel.ErrNotFound))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/reconcile/runs/missing"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestGetRunStoreFailure() {
	s.runs.EXPECT().Get(gomock.Any(), "run-1").Return(nil, errors.New("redis down"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/reconcile/runs/run-1"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
}

func TestRunLookupDisabledWithoutStore(t *testing.T) {
	h := New(mocks.NewMockService(gomock.NewController(t)))
	r := chi.NewRouter()
	h.Register(r)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/v1/reconcile/runs/run-1"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
