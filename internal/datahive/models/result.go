package models

// MergedFacts is everything resolved for one identifier after precedence has
// been applied. Single-valued categories are nil when no source reported
// them; list categories are empty.
type MergedFacts struct {
	Death             *DeathFact             `json:"death,omitempty"`
	Conversion        *ConversionFact        `json:"conversion,omitempty"`
	WorkAuthorization *WorkAuthorizationFact `json:"work_authorization,omitempty"`
	ResidencyPass     *ResidencyPassFact     `json:"residency_pass,omitempty"`
	Company           *CompanyFact           `json:"company,omitempty"`

	Custody        []CustodyFact       `json:"custody,omitempty"`
	Incarcerations []IncarcerationFact `json:"incarcerations,omitempty"`
	Welfare        []WelfareFact       `json:"welfare,omitempty"`
	Shareholders   []ShareholderFact   `json:"shareholders,omitempty"`
	BoardMembers   []BoardMemberFact   `json:"board_members,omitempty"`
}

// Stamp returns a deep copy of m with every fact tagged with caseRef. The
// receiver is never modified, so one MergedFacts can back many pairs.
func (m MergedFacts) Stamp(caseRef string) MergedFacts {
	out := MergedFacts{}
	if m.Death != nil {
		v := *m.Death
		v.CaseReference = caseRef
		out.Death = &v
	}
	if m.Conversion != nil {
		v := *m.Conversion
		v.CaseReference = caseRef
		out.Conversion = &v
	}
	if m.WorkAuthorization != nil {
		v := *m.WorkAuthorization
		v.CaseReference = caseRef
		if v.Address != nil {
			a := *v.Address
			v.Address = &a
		}
		out.WorkAuthorization = &v
	}
	if m.ResidencyPass != nil {
		v := *m.ResidencyPass
		v.CaseReference = caseRef
		if v.Address != nil {
			a := *v.Address
			v.Address = &a
		}
		out.ResidencyPass = &v
	}
	if m.Company != nil {
		v := *m.Company
		v.CaseReference = caseRef
		out.Company = &v
	}
	out.Custody = stampAll(m.Custody, func(f *CustodyFact) { f.CaseReference = caseRef })
	out.Incarcerations = stampAll(m.Incarcerations, func(f *IncarcerationFact) { f.CaseReference = caseRef })
	out.Welfare = stampAll(m.Welfare, func(f *WelfareFact) { f.CaseReference = caseRef })
	out.Shareholders = stampAll(m.Shareholders, func(f *ShareholderFact) { f.CaseReference = caseRef })
	out.BoardMembers = stampAll(m.BoardMembers, func(f *BoardMemberFact) { f.CaseReference = caseRef })
	return out
}

// IsEmpty reports whether no category resolved.
func (m MergedFacts) IsEmpty() bool {
	return m.Death == nil && m.Conversion == nil && m.WorkAuthorization == nil &&
		m.ResidencyPass == nil && m.Company == nil && len(m.Custody) == 0 &&
		len(m.Incarcerations) == 0 && len(m.Welfare) == 0 &&
		len(m.Shareholders) == 0 && len(m.BoardMembers) == 0
}

func stampAll[T any](in []T, stamp func(*T)) []T {
	if len(in) == 0 {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	for i := range out {
		stamp(&out[i])
	}
	return out
}

// Degradation names a business rule that was skipped because a source it
// depends on was unavailable.
type Degradation string

const (
	// DegradedConversion means the PR/SC grant tables could not be queried,
	// so conversion-based status codes were not derived.
	DegradedConversion Degradation = "conversion_sources_unavailable"
)

// SourceUnavailable marks a source whose lookup failed for the identifier.
func SourceUnavailable(source string) Degradation {
	return Degradation("unavailable:" + source)
}

// ConsolidatedResult is the outcome for one pair. It is the only artifact of
// a run that is persisted or published.
type ConsolidatedResult struct {
	Pair     Pair            `json:"pair"`
	CacheKey string          `json:"cache_key"`
	Class    IdentifierClass `json:"class"`
	Facts    MergedFacts     `json:"facts"`

	// NotFound is set for registry lookups that resolved in no source.
	NotFound bool `json:"not_found,omitempty"`
	// Error carries an interface failure that prevented resolution.
	Error    string        `json:"error,omitempty"`
	Degraded []Degradation `json:"degraded,omitempty"`

	// Codes lists the status codes derived by the side-effect applier.
	Codes []StatusCode `json:"codes,omitempty"`
}

// HasError reports whether an interface failure was recorded.
func (r *ConsolidatedResult) HasError() bool {
	return r.Error != ""
}

// IsDegraded reports whether d was recorded.
func (r *ConsolidatedResult) IsDegraded(d Degradation) bool {
	for _, v := range r.Degraded {
		if v == d {
			return true
		}
	}
	return false
}
