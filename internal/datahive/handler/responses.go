package handler

import (
	"time"

	"recon/internal/datahive/models"
)

// RunResponse is the wire form of a run summary.
type RunResponse struct {
	RunID         string                      `json:"run_id"`
	Class         models.IdentifierClass      `json:"class"`
	StartedAt     time.Time                   `json:"started_at"`
	FinishedAt    time.Time                   `json:"finished_at"`
	Pairs         int                         `json:"pairs"`
	Identifiers   int                         `json:"identifiers"`
	Applied       int                         `json:"applied"`
	FailedSources []string                    `json:"failed_sources"`
	Errors        []models.CaseError          `json:"errors"`
	Results       []models.ConsolidatedResult `json:"results"`
}

func toRunResponse(s *models.RunSummary) RunResponse {
	resp := RunResponse{
		RunID:         s.RunID,
		Class:         s.Class,
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
		Pairs:         s.Pairs,
		Identifiers:   s.Identifiers,
		Applied:       s.Applied,
		FailedSources: s.FailedSources,
		Errors:        s.Errors,
		Results:       s.Results,
	}
	if resp.FailedSources == nil {
		resp.FailedSources = []string{}
	}
	if resp.Errors == nil {
		resp.Errors = []models.CaseError{}
	}
	if resp.Results == nil {
		resp.Results = []models.ConsolidatedResult{}
	}
	return resp
}
