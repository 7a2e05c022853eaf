package cli

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"recon/internal/datahive/handler"
	"recon/internal/datahive/models"
)

var csvColumns = []string{"identifier", "notice_no", "offence_date", "owner_driver_indicator"}

// LoadNotices reads notices as JSON or CSV, chosen by the file extension.
// Both go through the same validation as the HTTP trigger.
func LoadNotices(r io.Reader, name string) ([]models.Notice, error) {
	var req handler.ReconcileRequest
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		rows, err := readCSV(r)
		if err != nil {
			return nil, err
		}
		req.Notices = rows
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, fmt.Errorf("decoding notices: %w", err)
		}
	}
	return req.ToNotices()
}

func readCSV(r io.Reader) ([]handler.NoticeRequest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range csvColumns[:2] {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv header is missing %q", col)
		}
	}

	var out []handler.NoticeRequest
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}
		field := func(col string) string {
			if i, ok := idx[col]; ok && i < len(rec) {
				return rec[i]
			}
			return ""
		}
		out = append(out, handler.NoticeRequest{
			Identifier:           field(csvColumns[0]),
			NoticeNo:             field(csvColumns[1]),
			OffenceDate:          field(csvColumns[2]),
			OwnerDriverIndicator: field(csvColumns[3]),
		})
	}
}
