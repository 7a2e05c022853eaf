// Package sideeffect turns consolidated results into case updates: the
// status codes a notice receives and the registry records written against
// it.
package sideeffect

import (
	"regexp"
	"strings"

	"recon/internal/datahive/models"
)

// Remarks recorded with each status code.
const (
	RemarkDeceased          = "Date of death found in DataHive"
	RemarkConverted         = "ID converted to PR/SC"
	RemarkDeregistered      = "ID found in Deregistered Firms"
	RemarkNotFound          = "UEN not found in DataHive"
	RemarkInterfaceError    = "DataHive interface error"
	RemarkNoAddress         = "No address returned from DataHive"
	RemarkInvalidBlock      = "Invalid House/Block Number"
	RemarkInvalidFloor      = "Invalid Floor Number"
	RemarkInvalidPostalCode = "Invalid postal code"
)

var postalCodePattern = regexp.MustCompile(`^\d{6}$`)

// Action is one status code to apply to a notice.
type Action struct {
	Code   models.StatusCode
	Remark string
}

// Derive returns the status actions for result in application order. It
// reads nothing but its arguments.
func Derive(notice models.Notice, result *models.ConsolidatedResult) []Action {
	if result == nil {
		return nil
	}
	var out []Action

	if d := result.Facts.Death; d != nil {
		code := models.CodeDeceasedBeforeOffence
		if notice.OffenceDate != nil && d.DateOfDeath.After(*notice.OffenceDate) {
			code = models.CodeDeceasedAfterOffence
		}
		out = append(out, Action{Code: code, Remark: RemarkDeceased})
	}

	if result.Facts.Conversion != nil && !result.IsDegraded(models.DegradedConversion) {
		out = append(out, Action{Code: models.CodeConverted, Remark: RemarkConverted})
	}

	if result.Class == models.ClassUEN {
		out = append(out, deriveCompany(result)...)
	}
	return out
}

func deriveCompany(result *models.ConsolidatedResult) []Action {
	switch {
	case result.HasError():
		remark := strings.TrimSpace(result.Error)
		if remark == "" {
			remark = RemarkInterfaceError
		}
		return []Action{{Code: models.CodeSystemError, Remark: remark}}
	case result.NotFound || result.Facts.Company == nil:
		return []Action{{Code: models.CodeSystemError, Remark: RemarkNotFound}}
	}

	c := result.Facts.Company
	var out []Action
	if remark, ok := ValidateAddress(&c.Address); !ok {
		out = append(out, Action{Code: models.CodeSystemError, Remark: remark})
	}
	if c.Deregistered {
		out = append(out, Action{Code: models.CodeDeregistered, Remark: RemarkDeregistered})
	}
	return out
}

// ValidateAddress checks a registered company address. The first failing
// rule's remark is returned with ok false.
func ValidateAddress(a *models.Address) (remark string, ok bool) {
	switch {
	case a.IsEmpty():
		return RemarkNoAddress, false
	case models.Blank(a.Block):
		return RemarkInvalidBlock, false
	case models.Blank(a.Floor):
		return RemarkInvalidFloor, false
	case !models.Blank(a.PostalCode) && !postalCodePattern.MatchString(strings.TrimSpace(*a.PostalCode)):
		return RemarkInvalidPostalCode, false
	}
	return "", true
}
