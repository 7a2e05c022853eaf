package models

import (
	"strings"
	"time"
)

// Subject tags a fact with the identifier it was decoded for and, once
// stamped, the case it is reported against.
type Subject struct {
	Identifier    string `json:"identifier"`
	CaseReference string `json:"case_reference,omitempty"`
}

// Address is a postal address as returned by the registries. Every part is
// optional.
type Address struct {
	Block      *string `json:"block,omitempty"`
	Floor      *string `json:"floor,omitempty"`
	Unit       *string `json:"unit,omitempty"`
	Street     *string `json:"street,omitempty"`
	Building   *string `json:"building,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
}

// IsEmpty reports whether no part carries a non-blank value.
func (a *Address) IsEmpty() bool {
	if a == nil {
		return true
	}
	for _, p := range []*string{a.Block, a.Floor, a.Unit, a.Street, a.Building, a.PostalCode} {
		if !Blank(p) {
			return false
		}
	}
	return true
}

// DeathFact is a registered date of death.
type DeathFact struct {
	Subject
	DateOfDeath     time.Time  `json:"date_of_death"`
	ReferencePeriod *time.Time `json:"reference_period,omitempty"`
}

// ConversionKind records which grant table resolved a conversion.
type ConversionKind string

const (
	ConversionPR ConversionKind = "PR"
	ConversionSC ConversionKind = "SC"
)

// ConversionFact records that a foreign identifier was converted to a local
// one by a residence or citizenship grant.
type ConversionFact struct {
	Subject
	Kind            ConversionKind `json:"kind"`
	UIN             *string        `json:"uin,omitempty"`
	PreviousID      *string        `json:"previous_id,omitempty"`
	GrantDate       *time.Time     `json:"grant_date,omitempty"`
	ReferencePeriod *time.Time     `json:"reference_period,omitempty"`
}

// WorkPassKind separates the two work-pass table families.
type WorkPassKind string

const (
	WorkPassEP WorkPassKind = "EP"
	WorkPassWP WorkPassKind = "WP"
)

// WorkAuthorizationFact is an employment pass or a work permit.
type WorkAuthorizationFact struct {
	Subject
	Kind            WorkPassKind `json:"kind"`
	PassType        *string      `json:"pass_type,omitempty"`
	WorkPermitNo    *string      `json:"work_permit_no,omitempty"`
	ExpiryDate      *time.Time   `json:"expiry_date,omitempty"`
	CancelledDate   *time.Time   `json:"cancelled_date,omitempty"`
	WithdrawnDate   *time.Time   `json:"withdrawn_date,omitempty"`
	ApplicationDate *time.Time   `json:"application_date,omitempty"`
	IssuanceDate    *time.Time   `json:"issuance_date,omitempty"`
	IPAExpiryDate   *time.Time   `json:"ipa_expiry_date,omitempty"`
	WorkPassStatus  *string      `json:"work_pass_status,omitempty"`
	EmployerUEN     *string      `json:"employer_uen,omitempty"`
	EmployerID      *string      `json:"employer_id,omitempty"`
	Active          bool         `json:"active"`
	Address         *Address     `json:"address,omitempty"`
}

// ResidencyPassKind separates long-term and short-term visit passes.
type ResidencyPassKind string

const (
	PassLTVP ResidencyPassKind = "LTVP"
	PassSTP  ResidencyPassKind = "STP"
)

// ResidencyPassFact is a non-work pass.
type ResidencyPassFact struct {
	Subject
	Kind             ResidencyPassKind `json:"kind"`
	PassType         *string           `json:"pass_type,omitempty"`
	PrincipalName    *string           `json:"principal_name,omitempty"`
	Sex              *string           `json:"sex,omitempty"`
	DateOfBirth      *time.Time        `json:"date_of_birth,omitempty"`
	DateOfIssue      *time.Time        `json:"date_of_issue,omitempty"`
	DateOfExpiry     *time.Time        `json:"date_of_expiry,omitempty"`
	ReferencePeriod  *time.Time        `json:"reference_period,omitempty"`
	AddressIndicator *string           `json:"address_indicator,omitempty"`
	Address          *Address          `json:"address,omitempty"`
}

// CustodyFact is a current custody status.
type CustodyFact struct {
	Subject
	CustodyStatus   *string    `json:"custody_status,omitempty"`
	InstitutionCode *string    `json:"institution_code,omitempty"`
	ReferencePeriod *time.Time `json:"reference_period,omitempty"`
}

// IncarcerationFact is a tentative release record for one inmate number.
type IncarcerationFact struct {
	Subject
	InmateNumber         string     `json:"inmate_number"`
	TentativeReleaseDate *time.Time `json:"tentative_release_date,omitempty"`
	ReferencePeriod      *time.Time `json:"reference_period,omitempty"`
}

// WelfareSource names the assistance scheme a welfare row came from.
type WelfareSource string

const (
	WelfareFSC WelfareSource = "FSC"
	WelfareCCC WelfareSource = "CCC"
)

// WelfareFact is one assistance record.
type WelfareFact struct {
	Subject
	Source          WelfareSource `json:"source"`
	BeneficiaryName *string       `json:"beneficiary_name,omitempty"`
	PeriodStart     *time.Time    `json:"period_start,omitempty"`
	PeriodEnd       *time.Time    `json:"period_end,omitempty"`
	DataDate        *time.Time    `json:"data_date,omitempty"`
	PaymentDate     *time.Time    `json:"payment_date,omitempty"`
	ReferencePeriod *time.Time    `json:"reference_period,omitempty"`
}

// CompanyFact is a business registration. Deregistered is true when it came
// from the deregistered-firms source.
type CompanyFact struct {
	Subject
	Name               *string    `json:"name,omitempty"`
	EntityType         *string    `json:"entity_type,omitempty"`
	RegistrationDate   *time.Time `json:"registration_date,omitempty"`
	DeregistrationDate *time.Time `json:"deregistration_date,omitempty"`
	StatusCode         *string    `json:"status_code,omitempty"`
	TypeCode           *string    `json:"type_code,omitempty"`
	AddressLine        *string    `json:"address_line,omitempty"`
	Address            Address    `json:"address"`
	Deregistered       bool       `json:"deregistered"`
}

// Listed reports whether the entity is a listed company.
func (c *CompanyFact) Listed() bool {
	return c != nil && c.EntityType != nil && *c.EntityType == "LC"
}

// ShareholderFact is one shareholding in a company.
type ShareholderFact struct {
	Subject
	Category          *string `json:"category,omitempty"`
	CompanyProfileUEN *string `json:"company_profile_uen,omitempty"`
	PersonID          *string `json:"person_id,omitempty"`
	SharesAllotted    *int64  `json:"shares_allotted,omitempty"`
}

// BoardMemberFact is one board position in a company.
type BoardMemberFact struct {
	Subject
	PersonID         *string    `json:"person_id,omitempty"`
	PositionHeldCode *string    `json:"position_held_code,omitempty"`
	AppointmentDate  *time.Time `json:"appointment_date,omitempty"`
	WithdrawnDate    *time.Time `json:"withdrawn_date,omitempty"`
	ReferencePeriod  *time.Time `json:"reference_period,omitempty"`
}

// Blank reports whether s is nil or only whitespace.
func Blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
