// Package merge applies the fixed precedence rules that fold per-source
// fragments into one fact per category.
package merge

import (
	"recon/internal/datahive/models"
	"recon/internal/datahive/schema"
)

// ErrorFunc receives rows that failed to decode. It may be nil.
type ErrorFunc func(row *schema.Row, err error)

// First returns the first row, in chunk order, that decodes to a fact.
// Rows the decoder filters out or rejects are skipped.
func First[T any](rows []*schema.Row, decode func(*schema.Row) (*T, error), onErr ErrorFunc) *T {
	for _, row := range rows {
		f, err := decode(row)
		if err != nil {
			if onErr != nil {
				onErr(row, err)
			}
			continue
		}
		if f != nil {
			return f
		}
	}
	return nil
}

// All decodes every row, keeping order.
func All[T any](rows []*schema.Row, decode func(*schema.Row) (*T, error), onErr ErrorFunc) []T {
	var out []T
	for _, row := range rows {
		f, err := decode(row)
		if err != nil {
			if onErr != nil {
				onErr(row, err)
			}
			continue
		}
		if f != nil {
			out = append(out, *f)
		}
	}
	return out
}

// prefer returns primary when present, otherwise secondary.
func prefer[T any](primary, secondary *T) *T {
	if primary != nil {
		return primary
	}
	return secondary
}

// WorkAuthorization prefers an employment pass over a work permit.
func WorkAuthorization(ep, wp *models.WorkAuthorizationFact) *models.WorkAuthorizationFact {
	return prefer(ep, wp)
}

// ResidencyPass prefers a long-term visit pass over a short-term one.
func ResidencyPass(ltvp, stp *models.ResidencyPassFact) *models.ResidencyPassFact {
	return prefer(ltvp, stp)
}

// Conversion prefers a PR grant over an SC grant.
func Conversion(pr, sc *models.ConversionFact) *models.ConversionFact {
	return prefer(pr, sc)
}

// Company treats a registered entity as definitive.
func Company(registered, deregistered *models.CompanyFact) *models.CompanyFact {
	return prefer(registered, deregistered)
}

// Unresolved returns the ids with no rows in resolved, keeping order. It
// drives early exit: a secondary source is only asked about these.
func Unresolved(ids []string, resolved map[string][]*schema.Row) []string {
	var out []string
	for _, id := range ids {
		if len(resolved[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Without returns ids minus those in drop, keeping order.
func Without(ids []string, drop map[string]struct{}) []string {
	if len(drop) == 0 {
		return ids
	}
	var out []string
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
