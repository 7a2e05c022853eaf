// Package models holds the reconciliation domain types shared by the query,
// merge, service and side-effect packages.
package models

import (
	"strings"
	"time"

	pstrings "recon/pkg/platform/strings"
)

// IdentifierClass is the kind of identifier a run reconciles.
type IdentifierClass string

const (
	ClassNRIC IdentifierClass = "NRIC"
	ClassFIN  IdentifierClass = "FIN"
	ClassUEN  IdentifierClass = "UEN"
)

// ParseClass accepts the class name in any case.
func ParseClass(s string) (IdentifierClass, bool) {
	switch IdentifierClass(strings.ToUpper(strings.TrimSpace(s))) {
	case ClassNRIC:
		return ClassNRIC, true
	case ClassFIN:
		return ClassFIN, true
	case ClassUEN:
		return ClassUEN, true
	}
	return "", false
}

// Pair binds an identifier to the case it was referenced by. Many pairs may
// share an identifier.
type Pair struct {
	Identifier    string `json:"identifier"`
	CaseReference string `json:"case_reference"`
}

// CacheKey uniquely identifies the consolidated result for this pair.
func (p Pair) CacheKey() string {
	return p.Identifier + "|" + p.CaseReference
}

// Notice is a pair plus the case attributes the side-effect rules need.
type Notice struct {
	Pair
	OffenceDate          *time.Time `json:"offence_date,omitempty"`
	OwnerDriverIndicator string     `json:"owner_driver_indicator,omitempty"`
}

// Pairs extracts the pairs from notices, keeping order.
func Pairs(notices []Notice) []Pair {
	out := make([]Pair, len(notices))
	for i, n := range notices {
		out[i] = n.Pair
	}
	return out
}

// UniqueIdentifiers returns the distinct identifiers of pairs in first-seen
// order. Empty identifiers are dropped.
func UniqueIdentifiers(pairs []Pair) []string {
	ids := make([]string, len(pairs))
	for i, p := range pairs {
		ids[i] = p.Identifier
	}
	return pstrings.Dedupe(ids)
}
