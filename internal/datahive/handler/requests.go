package handler

import (
	"fmt"
	"strings"
	"time"

	"recon/internal/datahive/models"
	dErrors "recon/pkg/domain-errors"
)

const maxNotices = 10000

// NoticeRequest is one case in a trigger request. OffenceDate accepts a
// calendar date or an RFC 3339 timestamp.
type NoticeRequest struct {
	Identifier           string `json:"identifier"`
	NoticeNo             string `json:"notice_no"`
	OffenceDate          string `json:"offence_date,omitempty"`
	OwnerDriverIndicator string `json:"owner_driver_indicator,omitempty"`
}

// ReconcileRequest is the body of POST /v1/reconcile/{class}.
type ReconcileRequest struct {
	Notices []NoticeRequest `json:"notices"`
}

// ToNotices validates the request and converts it to domain notices.
func (r *ReconcileRequest) ToNotices() ([]models.Notice, error) {
	if len(r.Notices) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "notices must not be empty")
	}
	if len(r.Notices) > maxNotices {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d notices per run", maxNotices))
	}
	out := make([]models.Notice, 0, len(r.Notices))
	for i, n := range r.Notices {
		id := strings.ToUpper(strings.TrimSpace(n.Identifier))
		noticeNo := strings.TrimSpace(n.NoticeNo)
		if id == "" || noticeNo == "" {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("notices[%d]: identifier and notice_no are required", i))
		}
		notice := models.Notice{
			Pair:                 models.Pair{Identifier: id, CaseReference: noticeNo},
			OwnerDriverIndicator: strings.TrimSpace(n.OwnerDriverIndicator),
		}
		if s := strings.TrimSpace(n.OffenceDate); s != "" {
			t, err := parseDate(s)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("notices[%d]: invalid offence_date", i))
			}
			notice.OffenceDate = &t
		}
		out = append(out, notice)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
