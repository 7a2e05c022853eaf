// Package schema holds the static per-source table definitions and the
// positional row decoder. Columns are always looked up by name through a
// spec's index table so a reordered SELECT list fails loudly instead of
// shifting values into the wrong fields.
package schema

import "fmt"

// Source names one upstream view.
type Source string

const (
	SourceDeath               Source = "death"
	SourcePRGrant             Source = "pr_grant"
	SourceSCGrant             Source = "sc_grant"
	SourceCustody             Source = "custody"
	SourceRelease             Source = "release"
	SourceEPPass              Source = "ep_pass"
	SourceEPForeigner         Source = "ep_foreigner"
	SourceWPWorker            Source = "wp_worker"
	SourceWPPass              Source = "wp_pass"
	SourceLTVP                Source = "ltvp"
	SourceSTP                 Source = "stp"
	SourceCompanyRegistered   Source = "company_registered"
	SourceCompanyDeregistered Source = "company_deregistered"
	SourceShareholder         Source = "shareholder"
	SourceBoard               Source = "board"
	SourceWelfareFSC          Source = "welfare_fsc"
	SourceWelfareCCC          Source = "welfare_ccc"
)

// Spec is the query and decode contract for one source.
type Spec struct {
	Source       Source
	Table        string
	FilterColumn string
	Columns      []string
	// KeyColumn is the column whose value groups rows by identifier. It is
	// not always the filter column's position in the SELECT list.
	KeyColumn string

	index map[string]int
}

// NewSpec builds a spec and its column index. It panics when the key column
// is not selected or a column repeats; specs are static so this only fires
// on a programming error.
func NewSpec(source Source, table, filterColumn, keyColumn string, columns ...string) *Spec {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			panic(fmt.Sprintf("schema %s: duplicate column %s", source, c))
		}
		index[c] = i
	}
	if _, ok := index[keyColumn]; !ok {
		panic(fmt.Sprintf("schema %s: key column %s not selected", source, keyColumn))
	}
	return &Spec{
		Source:       source,
		Table:        table,
		FilterColumn: filterColumn,
		Columns:      columns,
		KeyColumn:    keyColumn,
		index:        index,
	}
}

// Index returns the position of col in the SELECT list.
func (s *Spec) Index(col string) (int, bool) {
	i, ok := s.index[col]
	return i, ok
}

func (s *Spec) String() string {
	return string(s.Source)
}

func personPassColumns(expiry string) []string {
	return []string{
		"SEX", "BLOCK", "FLOOR", "UNIT", "STREET_NAME", "BUILDING_NAME", "POSTAL_CODE",
		"ADDRESS_INDICATOR", expiry, "REFERENCE_PERIOD", "FIN", "PRINCIPAL_NAME",
		"NON_WORK_PASS_TYPE", "DATE_OF_ISSUE", "DATE_OF_BIRTH",
	}
}

var companyColumns = []string{
	"ENTITY_NAME", "ENTITY_TYPE", "REGISTRATION_DATE", "DEREGISTRATION_DATE",
	"ENTITY_STATUS_CODE", "COMPANY_TYPE_CODE", "ADDRESS_ONE",
	"ADDRESS_ONE_BLOCK_HOUSE_NUMBER", "ADDRESS_ONE_LEVEL_NUMBER", "ADDRESS_ONE_UNIT_NUMBER",
	"ADDRESS_ONE_POSTAL_CODE", "ADDRESS_ONE_STREET_NAME", "ADDRESS_ONE_BUILDING_NAME", "UEN",
}

var welfareColumns = []string{
	"BENEFICIARY_ID_NO", "ASSISTANCE_START", "ASSISTANCE_END", "BENEFICIARY_NAME",
	"DATA_DATE", "PAYMENT_DATE", "REFERENCE_PERIOD",
}

var (
	Death = NewSpec(SourceDeath, "V_DH_MHA_FINDEATH", "FIN", "FIN",
		"FIN", "DATE_OF_DEATH", "REFERENCE_PERIOD")

	PRGrant = NewSpec(SourcePRGrant, "V_DH_MHA_ALIVE_SCPR", "FIN", "FIN",
		"UIN", "PREVIOUS_FIN", "DATE_PR_GRANTED", "REFERENCE_PERIOD", "FIN")

	SCGrant = NewSpec(SourceSCGrant, "V_DH_MHA_SCGRANT", "FIN", "FIN",
		"UIN", "PREVIOUS_FIN", "SC_GRANT_DATE", "REFERENCE_PERIOD", "FIN")

	Custody = NewSpec(SourceCustody, "V_DH_SPS_CUSTODY_STATUS", "UIN", "UIN",
		"UIN", "CURRENT_CUSTODY_STATUS", "INSTIT_CODE", "REFERENCE_PERIOD")

	Release = NewSpec(SourceRelease, "V_DH_SPS_RELEASE_DATE", "UIN", "UIN",
		"TENTATIVE_DATE_OF_RELEASE", "INMATE_NUMBER", "UIN", "REFERENCE_PERIOD")

	EPPass = NewSpec(SourceEPPass, "V_DH_MOM_EPWORKPASS", "FIN", "FIN",
		"CANCELLED_DT", "EXPIRY_DT", "WITHDRAWN_DT", "APPLICATION_DT", "PASSTYPE_CD",
		"ISSUANCE_DT", "UEN", "ISACTIVE", "FIN")

	EPForeigner = NewSpec(SourceEPForeigner, "V_DH_MOM_EPFOREIGNER", "FIN", "FIN",
		"FOREIGNER_NAME", "DATE_OF_BIRTH", "SEX_CD", "BLOCK_HOUSE_NO", "STREET_NAME",
		"FLOOR_NO", "UNIT_NO", "POSTAL_CODE_NO", "LAST_CHANGE_ADDRESS_DT", "ISACTIVE", "FIN")

	WPWorker = NewSpec(SourceWPWorker, "V_DH_MOM_WPWORKER", "FIN", "FIN",
		"FIN", "WORKER_NAME", "DATE_OF_BIRTH", "SEX_CD", "BLOCK_HOUSE_NO", "STREET_NAME",
		"FLOOR_NO", "UNIT_NO", "POSTAL_CODE_NO", "LAST_CHANGE_ADDRESS_DT", "ISACTIVE",
		"WORK_PERMIT_NO")

	WPPass = NewSpec(SourceWPPass, "V_DH_MOM_WPWORKPASS", "WORK_PERMIT_NO", "WORK_PERMIT_NO",
		"EXPIRY_DT", "REVOKED_CANCELLED_DT", "WORK_PERMIT_NO", "APPLICATION_DT", "PASS_TYPE_CD",
		"WORK_PASS_STATUS_CD", "IPA_EXPIRY_DT", "ISSUANCE_DT", "UEN", "EMPLOYER_NRICFIN",
		"ISACTIVE")

	LTVP = NewSpec(SourceLTVP, "V_DH_MHA_LTVP", "FIN", "FIN", personPassColumns("DATEOF_EXPIRY")...)

	STP = NewSpec(SourceSTP, "V_DH_MHA_STP", "FIN", "FIN", personPassColumns("DATE_OF_EXPIRY")...)

	CompanyRegistered = NewSpec(SourceCompanyRegistered, "V_DH_ACRA_FIRMINFO_R", "UEN", "UEN",
		companyColumns...)

	CompanyDeregistered = NewSpec(SourceCompanyDeregistered, "V_DH_ACRA_FIRMINFO_D", "UEN", "UEN",
		companyColumns...)

	Shareholder = NewSpec(SourceShareholder, "V_DH_ACRA_SHAREHOLDER_GZ", "COMPANY_UEN", "COMPANY_UEN",
		"SHAREHOLDER_CATEGORY", "SHAREHOLDER_COMPANY_PROFILE_UEN", "SHAREHOLDER_PERSON_ID_NO",
		"SHAREHOLDER_SHARE_ALLOTTED_NO", "COMPANY_UEN")

	Board = NewSpec(SourceBoard, "V_DH_ACRA_BOARD_INFO_FULL", "ENTITY_UEN", "ENTITY_UEN",
		"POSITION_APPOINTMENT_DATE", "POSITION_WITHDRAWN_WITHDRAWAL_DATE",
		"PERSON_IDENTIFICATION_NUMBER", "ENTITY_UEN", "POSITION_HELD_CODE", "REFERENCE_PERIOD")

	WelfareFSC = NewSpec(SourceWelfareFSC, "V_DH_MSF_I2_FCF", "BENEFICIARY_ID_NO", "BENEFICIARY_ID_NO",
		welfareColumns...)

	WelfareCCC = NewSpec(SourceWelfareCCC, "V_DH_MSF_I3_CCF", "BENEFICIARY_ID_NO", "BENEFICIARY_ID_NO",
		welfareColumns...)
)

// All lists every spec, in the order sources are documented.
func All() []*Spec {
	return []*Spec{
		Death, PRGrant, SCGrant, Custody, Release, EPPass, EPForeigner, WPWorker, WPPass,
		LTVP, STP, CompanyRegistered, CompanyDeregistered, Shareholder, Board,
		WelfareFSC, WelfareCCC,
	}
}
