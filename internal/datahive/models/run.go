package models

import "time"

// CaseError records a side-effect failure for one case. The rest of the run
// carries on.
type CaseError struct {
	CacheKey string `json:"cache_key"`
	NoticeNo string `json:"notice_no"`
	Error    string `json:"error"`
}

// RunSummary describes one reconciliation run. It is what the run store keeps
// and the trigger endpoint returns.
type RunSummary struct {
	RunID         string               `json:"run_id"`
	Class         IdentifierClass      `json:"class"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    time.Time            `json:"finished_at"`
	Pairs         int                  `json:"pairs"`
	Identifiers   int                  `json:"identifiers"`
	Results       []ConsolidatedResult `json:"results"`
	FailedSources []string             `json:"failed_sources,omitempty"`
	Applied       int                  `json:"applied"`
	Errors        []CaseError          `json:"errors,omitempty"`
}

// Result returns the consolidated result for cacheKey.
func (s *RunSummary) Result(cacheKey string) (*ConsolidatedResult, bool) {
	for i := range s.Results {
		if s.Results[i].CacheKey == cacheKey {
			return &s.Results[i], true
		}
	}
	return nil, false
}
