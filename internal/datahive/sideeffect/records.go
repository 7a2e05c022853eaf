package sideeffect

import (
	"context"
	"fmt"
	"strings"

	"recon/internal/datahive/models"
	"recon/internal/datahive/store"
)

// Tables written by the applier.
const (
	TableCompanyDetail      = "ocms_dh_acra_company_detail"
	TableOwnerDriverAddress = "ocms_offence_notice_owner_driver_addr"
	TableOwnerDriver        = "ocms_offence_notice_owner_driver"
	TableValidOffenceNotice = "ocms_valid_offence_notice"
	TableSuspendedNotice    = "ocms_suspended_notice"
	TableSuspensionReason   = "ocms_suspension_reason"
	TableWorkPermit         = "ocms_dh_mom_work_permit"
	TablePass               = "ocms_dh_mha_pass"
	TableCustody            = "ocms_dh_sps_custody"
	TableIncarceration      = "ocms_dh_sps_incarceration"
	TableComcare            = "ocms_dh_msf_comcare_fund"
	TableShareholder        = "ocms_dh_acra_shareholder_info"
	TableBoard              = "ocms_dh_acra_board_info"
)

const (
	addressTypeRegistered = "mha_reg"
	defaultOwnerDriver    = "O"
	maxPersonIDLen        = 12
	maxCorporateUENLen    = 9
)

func (a *Applier) writeRecords(ctx context.Context, notice models.Notice, result *models.ConsolidatedResult) error {
	f := result.Facts
	switch result.Class {
	case models.ClassUEN:
		if result.HasError() || f.Company == nil {
			return nil
		}
		return a.writeCompany(ctx, notice, f)
	case models.ClassFIN:
		if err := a.writeFIN(ctx, notice, f); err != nil {
			return err
		}
	case models.ClassNRIC:
		if err := a.writeWelfare(ctx, notice, f.Welfare); err != nil {
			return err
		}
	}
	return a.writeCustody(ctx, notice, f)
}

func (a *Applier) writeCompany(ctx context.Context, notice models.Notice, f models.MergedFacts) error {
	c := f.Company
	uen := notice.Identifier
	if _, err := store.Upsert(ctx, a.store, TableCompanyDetail,
		store.Fields{"uen": uen, "noticeNo": notice.CaseReference},
		store.Fields{
			"entityName":         c.Name,
			"entityStatusCode":   c.StatusCode,
			"companyTypeCode":    c.TypeCode,
			"entityType":         c.EntityType,
			"registrationDate":   c.RegistrationDate,
			"deregistrationDate": c.DeregistrationDate,
		}); err != nil {
		return err
	}

	if c.Address.IsEmpty() {
		a.logger.WarnContext(ctx, "no company address returned",
			"notice_no", notice.CaseReference,
			"uen", uen,
		)
	} else {
		// Blank parts are written as NULL, clearing whatever was stored.
		if _, err := store.Upsert(ctx, a.store, TableOwnerDriverAddress,
			store.Fields{
				"noticeNo":             notice.CaseReference,
				"ownerDriverIndicator": ownerDriver(notice),
				"typeOfAddress":        addressTypeRegistered,
			},
			store.Fields{
				"blkHseNo":   c.Address.Block,
				"floorNo":    c.Address.Floor,
				"unitNo":     c.Address.Unit,
				"streetName": c.Address.Street,
				"bldgName":   c.Address.Building,
				"postalCode": c.Address.PostalCode,
			}); err != nil {
			return err
		}
	}

	if !models.Blank(c.Name) {
		if _, err := a.store.Patch(ctx, TableOwnerDriver,
			store.Fields{"noticeNo": notice.CaseReference, "idNo": uen, "offenderIndicator": "Y"},
			store.Fields{"name": c.Name}); err != nil {
			return fmt.Errorf("updating company name: %w", err)
		}
	}

	for _, s := range f.Shareholders {
		if err := a.writeShareholder(ctx, notice, s); err != nil {
			return err
		}
	}
	if c.Listed() && len(f.Shareholders) > 0 {
		if _, err := a.store.Patch(ctx, TableOwnerDriver,
			store.Fields{"noticeNo": notice.CaseReference},
			store.Fields{"gazettedFlag": "Y"}); err != nil {
			return fmt.Errorf("updating gazetted flag: %w", err)
		}
	}
	for _, b := range f.BoardMembers {
		if err := a.writeBoardMember(ctx, notice, b); err != nil {
			return err
		}
	}
	return nil
}

// writeShareholder keys individual holders by person id and corporate
// holders by their own UEN, both cut to the column width.
func (a *Applier) writeShareholder(ctx context.Context, notice models.Notice, s models.ShareholderFact) error {
	id := truncate(s.PersonID, maxPersonIDLen)
	if id == "" {
		id = truncate(s.CompanyProfileUEN, maxCorporateUENLen)
	}
	if id == "" {
		a.logger.WarnContext(ctx, "skipping shareholder without person id or UEN",
			"notice_no", notice.CaseReference,
			"uen", notice.Identifier,
		)
		return nil
	}
	_, err := store.Upsert(ctx, a.store, TableShareholder,
		store.Fields{"companyUen": notice.Identifier, "noticeNo": notice.CaseReference, "personIdNo": id},
		store.Fields{
			"shareAllottedNo":   s.SharesAllotted,
			"companyProfileUen": s.CompanyProfileUEN,
			"category":          s.Category,
		})
	return err
}

func (a *Applier) writeBoardMember(ctx context.Context, notice models.Notice, b models.BoardMemberFact) error {
	id := truncate(b.PersonID, maxPersonIDLen)
	if id == "" {
		return nil
	}
	_, err := store.Upsert(ctx, a.store, TableBoard,
		store.Fields{"entityUen": notice.Identifier, "noticeNo": notice.CaseReference, "personIdNo": id},
		store.Fields{
			"positionHeldCode":        b.PositionHeldCode,
			"positionAppointmentDate": b.AppointmentDate,
			"positionWithdrawnDate":   b.WithdrawnDate,
			"referencePeriod":         b.ReferencePeriod,
		})
	return err
}

func (a *Applier) writeFIN(ctx context.Context, notice models.Notice, f models.MergedFacts) error {
	if w := f.WorkAuthorization; w != nil {
		if _, err := store.Upsert(ctx, a.store, TableWorkPermit,
			store.Fields{"idNo": notice.Identifier, "noticeNo": notice.CaseReference},
			store.Fields{
				"workPermitNo":    w.WorkPermitNo,
				"passType":        w.PassType,
				"expiryDate":      w.ExpiryDate,
				"cancelledDate":   w.CancelledDate,
				"employerUen":     w.EmployerUEN,
				"issuanceDate":    w.IssuanceDate,
				"applicationDate": w.ApplicationDate,
				"ipaExpiryDate":   w.IPAExpiryDate,
				"workPassStatus":  w.WorkPassStatus,
				"withdrawnDate":   w.WithdrawnDate,
			}); err != nil {
			return err
		}
	}

	if p := f.ResidencyPass; p != nil {
		if _, err := store.Upsert(ctx, a.store, TablePass,
			store.Fields{"noticeNo": notice.CaseReference},
			store.Fields{"idNo": notice.Identifier, "mhaPassExpiryDate": p.DateOfExpiry}); err != nil {
			return err
		}
	}

	if err := a.writeFINAddress(ctx, notice, f); err != nil {
		return err
	}

	if c := f.Conversion; c != nil {
		if err := a.writeConversion(ctx, notice, c); err != nil {
			return err
		}
	}
	return nil
}

// writeFINAddress copies the work-pass address, or failing that the
// residency-pass address, onto the offender. Absent parts keep their stored
// value.
func (a *Applier) writeFINAddress(ctx context.Context, notice models.Notice, f models.MergedFacts) error {
	var addr *models.Address
	switch {
	case f.WorkAuthorization != nil && f.WorkAuthorization.Address != nil:
		addr = f.WorkAuthorization.Address
	case f.ResidencyPass != nil && f.ResidencyPass.Address != nil:
		addr = f.ResidencyPass.Address
	}
	if addr == nil || (addr.Block == nil && addr.Street == nil && addr.PostalCode == nil) {
		return nil
	}

	fields := store.Fields{}
	for field, v := range map[string]*string{
		"regBlkHseNo":   addr.Block,
		"regFloor":      addr.Floor,
		"regUnit":       addr.Unit,
		"regStreet":     addr.Street,
		"regBldg":       addr.Building,
		"regPostalCode": addr.PostalCode,
	} {
		if v != nil {
			fields[field] = *v
		}
	}
	if _, err := a.store.Patch(ctx, TableOwnerDriver, store.Fields{"noticeNo": notice.CaseReference}, fields); err != nil {
		return fmt.Errorf("updating offender address: %w", err)
	}
	return nil
}

func (a *Applier) writeConversion(ctx context.Context, notice models.Notice, c *models.ConversionFact) error {
	fields := store.Fields{"previousFin": c.PreviousID}
	switch c.Kind {
	case models.ConversionPR:
		fields["datePrGranted"] = c.GrantDate
		fields["referencePeriodAliveScpr"] = c.ReferencePeriod
	case models.ConversionSC:
		fields["scGrantDate"] = c.GrantDate
		fields["referencePeriodScgrant"] = c.ReferencePeriod
	}
	if _, err := store.Upsert(ctx, a.store, TablePass,
		store.Fields{"idNo": notice.Identifier, "noticeNo": notice.CaseReference}, fields); err != nil {
		return err
	}

	if models.Blank(c.UIN) {
		return nil
	}
	if _, err := a.store.Patch(ctx, TableOwnerDriver,
		store.Fields{"noticeNo": notice.CaseReference},
		store.Fields{"newNric": strings.TrimSpace(*c.UIN)}); err != nil {
		return fmt.Errorf("updating new NRIC: %w", err)
	}
	return nil
}

func (a *Applier) writeWelfare(ctx context.Context, notice models.Notice, welfare []models.WelfareFact) error {
	for _, w := range welfare {
		if _, err := store.Upsert(ctx, a.store, TableComcare,
			store.Fields{"idNo": notice.Identifier, "noticeNo": notice.CaseReference, "source": string(w.Source)},
			store.Fields{
				"paymentDate":     w.PaymentDate,
				"assistanceStart": w.PeriodStart,
				"assistanceEnd":   w.PeriodEnd,
				"beneficiaryName": w.BeneficiaryName,
				"dataDate":        w.DataDate,
				"referencePeriod": w.ReferencePeriod,
			}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) writeCustody(ctx context.Context, notice models.Notice, f models.MergedFacts) error {
	for _, c := range f.Custody {
		if _, err := store.Upsert(ctx, a.store, TableCustody,
			store.Fields{"idNo": notice.Identifier, "noticeNo": notice.CaseReference},
			store.Fields{
				"currentCustodyStatus": c.CustodyStatus,
				"institCode":           c.InstitutionCode,
				"referencePeriod":      c.ReferencePeriod,
			}); err != nil {
			return err
		}
	}
	for _, inc := range f.Incarcerations {
		if inc.InmateNumber == "" {
			continue
		}
		existing, err := a.store.Query(ctx, TableIncarceration, store.Fields{"inmateNumber": inc.InmateNumber})
		if err != nil {
			return fmt.Errorf("checking %s: %w", TableIncarceration, err)
		}
		fields := store.Fields{
			"tentativeReleaseDate":       inc.TentativeReleaseDate,
			"referencePeriodRelease":     inc.ReferencePeriod,
			"referencePeriodOffenceInfo": a.now(),
		}
		if len(existing) > 0 {
			if _, err := a.store.Patch(ctx, TableIncarceration, store.Fields{"inmateNumber": inc.InmateNumber}, fields); err != nil {
				return fmt.Errorf("patching %s: %w", TableIncarceration, err)
			}
			continue
		}
		// The inmate number alone identifies the record, so the case keys
		// are only set when it is first created.
		fields["inmateNumber"] = inc.InmateNumber
		fields["noticeNo"] = notice.CaseReference
		fields["idNo"] = notice.Identifier
		if err := a.store.Create(ctx, TableIncarceration, fields); err != nil {
			return fmt.Errorf("creating %s: %w", TableIncarceration, err)
		}
	}
	return nil
}

func ownerDriver(n models.Notice) string {
	if n.OwnerDriverIndicator == "" {
		return defaultOwnerDriver
	}
	return n.OwnerDriverIndicator
}

func truncate(s *string, n int) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if len(v) > n {
		v = v[:n]
	}
	return v
}
