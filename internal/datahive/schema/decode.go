package schema

import (
	"fmt"

	"recon/internal/datahive/models"
)

// Decoders return (nil, nil) for rows the source filters out, and an error
// only when the row does not match its spec.

// DecodeDeath skips rows without a date of death.
func DecodeDeath(r *Row) (*models.DeathFact, error) {
	date := r.Date("DATE_OF_DEATH")
	ref := r.Date("REFERENCE_PERIOD")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if date == nil {
		return nil, nil
	}
	return &models.DeathFact{
		Subject:         subject(r),
		DateOfDeath:     *date,
		ReferencePeriod: ref,
	}, nil
}

// DecodeConversion handles both grant sources.
func DecodeConversion(r *Row) (*models.ConversionFact, error) {
	kind, grantCol := models.ConversionPR, "DATE_PR_GRANTED"
	switch r.Spec().Source {
	case SourcePRGrant:
	case SourceSCGrant:
		kind, grantCol = models.ConversionSC, "SC_GRANT_DATE"
	default:
		return nil, wrongSource(r, SourcePRGrant, SourceSCGrant)
	}
	f := &models.ConversionFact{
		Subject:         subject(r),
		Kind:            kind,
		UIN:             r.Text("UIN"),
		PreviousID:      r.Text("PREVIOUS_FIN"),
		GrantDate:       r.Date(grantCol),
		ReferencePeriod: r.Date("REFERENCE_PERIOD"),
	}
	return f, r.Err()
}

func DecodeCustody(r *Row) (*models.CustodyFact, error) {
	f := &models.CustodyFact{
		Subject:         subject(r),
		CustodyStatus:   r.Text("CURRENT_CUSTODY_STATUS"),
		InstitutionCode: r.Text("INSTIT_CODE"),
		ReferencePeriod: r.Date("REFERENCE_PERIOD"),
	}
	return f, r.Err()
}

// DecodeRelease skips rows without an inmate number.
func DecodeRelease(r *Row) (*models.IncarcerationFact, error) {
	inmate := r.Text("INMATE_NUMBER")
	f := &models.IncarcerationFact{
		Subject:              subject(r),
		TentativeReleaseDate: r.Date("TENTATIVE_DATE_OF_RELEASE"),
		ReferencePeriod:      r.Date("REFERENCE_PERIOD"),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if inmate == nil {
		return nil, nil
	}
	f.InmateNumber = *inmate
	return f, nil
}

// DecodeEPPass keeps active passes only.
func DecodeEPPass(r *Row) (*models.WorkAuthorizationFact, error) {
	active := r.Flag("ISACTIVE")
	f := &models.WorkAuthorizationFact{
		Subject:         subject(r),
		Kind:            models.WorkPassEP,
		PassType:        r.Text("PASSTYPE_CD"),
		ExpiryDate:      r.Date("EXPIRY_DT"),
		CancelledDate:   r.Date("CANCELLED_DT"),
		WithdrawnDate:   r.Date("WITHDRAWN_DT"),
		ApplicationDate: r.Date("APPLICATION_DT"),
		IssuanceDate:    r.Date("ISSUANCE_DT"),
		EmployerUEN:     r.Text("UEN"),
		Active:          active,
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if !active {
		return nil, nil
	}
	return f, nil
}

// DecodeEPForeigner returns the residential address held for an EP holder.
func DecodeEPForeigner(r *Row) (*models.Address, error) {
	a := &models.Address{
		Block:      r.Text("BLOCK_HOUSE_NO"),
		Floor:      r.Text("FLOOR_NO"),
		Unit:       r.Text("UNIT_NO"),
		Street:     r.Text("STREET_NAME"),
		PostalCode: r.Text("POSTAL_CODE_NO"),
	}
	return a, r.Err()
}

// Worker links a FIN to its work permit number and address.
type Worker struct {
	Identifier   string
	WorkPermitNo string
	Address      *models.Address
}

// DecodeWPWorker skips workers without a work permit number.
func DecodeWPWorker(r *Row) (*Worker, error) {
	permit := r.Text("WORK_PERMIT_NO")
	addr := &models.Address{
		Block:      r.Text("BLOCK_HOUSE_NO"),
		Floor:      r.Text("FLOOR_NO"),
		Unit:       r.Text("UNIT_NO"),
		Street:     r.Text("STREET_NAME"),
		PostalCode: r.Text("POSTAL_CODE_NO"),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if permit == nil {
		return nil, nil
	}
	return &Worker{Identifier: r.Key(), WorkPermitNo: *permit, Address: addr}, nil
}

// DecodeWPPass is keyed by work permit number; the caller fills in the
// identifier and address from the matching Worker.
func DecodeWPPass(r *Row) (*models.WorkAuthorizationFact, error) {
	permit := r.Key()
	f := &models.WorkAuthorizationFact{
		Kind:            models.WorkPassWP,
		WorkPermitNo:    &permit,
		PassType:        r.Text("PASS_TYPE_CD"),
		ExpiryDate:      r.Date("EXPIRY_DT"),
		CancelledDate:   r.Date("REVOKED_CANCELLED_DT"),
		ApplicationDate: r.Date("APPLICATION_DT"),
		IPAExpiryDate:   r.Date("IPA_EXPIRY_DT"),
		IssuanceDate:    r.Date("ISSUANCE_DT"),
		WorkPassStatus:  r.Text("WORK_PASS_STATUS_CD"),
		EmployerUEN:     r.Text("UEN"),
		EmployerID:      r.Text("EMPLOYER_NRICFIN"),
		Active:          r.Flag("ISACTIVE"),
	}
	return f, r.Err()
}

// DecodeResidencyPass handles both visit-pass sources. They differ only in
// the spelling of the expiry column.
func DecodeResidencyPass(r *Row) (*models.ResidencyPassFact, error) {
	kind, expiryCol := models.PassLTVP, "DATEOF_EXPIRY"
	switch r.Spec().Source {
	case SourceLTVP:
	case SourceSTP:
		kind, expiryCol = models.PassSTP, "DATE_OF_EXPIRY"
	default:
		return nil, wrongSource(r, SourceLTVP, SourceSTP)
	}
	f := &models.ResidencyPassFact{
		Subject:          subject(r),
		Kind:             kind,
		PassType:         r.Text("NON_WORK_PASS_TYPE"),
		PrincipalName:    r.Text("PRINCIPAL_NAME"),
		Sex:              r.Text("SEX"),
		DateOfBirth:      r.Date("DATE_OF_BIRTH"),
		DateOfIssue:      r.Date("DATE_OF_ISSUE"),
		DateOfExpiry:     r.Date(expiryCol),
		ReferencePeriod:  r.Date("REFERENCE_PERIOD"),
		AddressIndicator: r.Text("ADDRESS_INDICATOR"),
		Address: &models.Address{
			Block:      r.Text("BLOCK"),
			Floor:      r.Text("FLOOR"),
			Unit:       r.Text("UNIT"),
			Street:     r.Text("STREET_NAME"),
			Building:   r.Text("BUILDING_NAME"),
			PostalCode: r.Text("POSTAL_CODE"),
		},
	}
	return f, r.Err()
}

// DecodeCompany handles the registered and deregistered firm sources.
func DecodeCompany(r *Row) (*models.CompanyFact, error) {
	var deregistered bool
	switch r.Spec().Source {
	case SourceCompanyRegistered:
	case SourceCompanyDeregistered:
		deregistered = true
	default:
		return nil, wrongSource(r, SourceCompanyRegistered, SourceCompanyDeregistered)
	}
	f := &models.CompanyFact{
		Subject:            subject(r),
		Name:               r.Text("ENTITY_NAME"),
		EntityType:         r.Text("ENTITY_TYPE"),
		RegistrationDate:   r.Date("REGISTRATION_DATE"),
		DeregistrationDate: r.Date("DEREGISTRATION_DATE"),
		StatusCode:         r.Text("ENTITY_STATUS_CODE"),
		TypeCode:           r.Text("COMPANY_TYPE_CODE"),
		AddressLine:        r.Text("ADDRESS_ONE"),
		Address: models.Address{
			Block:      r.Text("ADDRESS_ONE_BLOCK_HOUSE_NUMBER"),
			Floor:      r.Text("ADDRESS_ONE_LEVEL_NUMBER"),
			Unit:       r.Text("ADDRESS_ONE_UNIT_NUMBER"),
			Street:     r.Text("ADDRESS_ONE_STREET_NAME"),
			Building:   r.Text("ADDRESS_ONE_BUILDING_NAME"),
			PostalCode: r.Text("ADDRESS_ONE_POSTAL_CODE"),
		},
		Deregistered: deregistered,
	}
	return f, r.Err()
}

func DecodeShareholder(r *Row) (*models.ShareholderFact, error) {
	f := &models.ShareholderFact{
		Subject:           subject(r),
		Category:          r.Text("SHAREHOLDER_CATEGORY"),
		CompanyProfileUEN: r.Text("SHAREHOLDER_COMPANY_PROFILE_UEN"),
		PersonID:          r.Text("SHAREHOLDER_PERSON_ID_NO"),
		SharesAllotted:    r.Int64("SHAREHOLDER_SHARE_ALLOTTED_NO"),
	}
	return f, r.Err()
}

func DecodeBoard(r *Row) (*models.BoardMemberFact, error) {
	f := &models.BoardMemberFact{
		Subject:          subject(r),
		PersonID:         r.Text("PERSON_IDENTIFICATION_NUMBER"),
		PositionHeldCode: r.Text("POSITION_HELD_CODE"),
		AppointmentDate:  r.Date("POSITION_APPOINTMENT_DATE"),
		WithdrawnDate:    r.Date("POSITION_WITHDRAWN_WITHDRAWAL_DATE"),
		ReferencePeriod:  r.Date("REFERENCE_PERIOD"),
	}
	return f, r.Err()
}

// DecodeWelfare handles both assistance schemes.
func DecodeWelfare(r *Row) (*models.WelfareFact, error) {
	var source models.WelfareSource
	switch r.Spec().Source {
	case SourceWelfareFSC:
		source = models.WelfareFSC
	case SourceWelfareCCC:
		source = models.WelfareCCC
	default:
		return nil, wrongSource(r, SourceWelfareFSC, SourceWelfareCCC)
	}
	f := &models.WelfareFact{
		Subject:         subject(r),
		Source:          source,
		BeneficiaryName: r.Text("BENEFICIARY_NAME"),
		PeriodStart:     r.Date("ASSISTANCE_START"),
		PeriodEnd:       r.Date("ASSISTANCE_END"),
		DataDate:        r.Date("DATA_DATE"),
		PaymentDate:     r.Date("PAYMENT_DATE"),
		ReferencePeriod: r.Date("REFERENCE_PERIOD"),
	}
	return f, r.Err()
}

func subject(r *Row) models.Subject {
	return models.Subject{Identifier: r.Key()}
}

func wrongSource(r *Row, want ...Source) error {
	return fmt.Errorf("%s: %w: want one of %v", r.Spec().Source, ErrWrongSource, want)
}
