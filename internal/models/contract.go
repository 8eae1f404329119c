package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Side distinguishes the two contract families.
type Side string

const (
	SideClient Side = "client"
	SideStaff  Side = "staff"
)

func (s Side) Valid() bool { return s == SideClient || s == SideStaff }

// ModelName is the audit model name for contracts of this side.
func (s Side) ModelName() string {
	if s == SideStaff {
		return "StaffContract"
	}
	return "ClientContract"
}

const (
	ContractTypeOrdinary = "10"
	ContractTypeDispatch = "20"
	ContractTypeReferral = "30"

	// EmploymentTypeFixedTermDispatch is the employment-type master code
	// of staff dispatched on a fixed-term basis.
	EmploymentTypeFixedTermDispatch = "30"
)

// Status is ordered: every later state compares greater.
type Status int

const (
	StatusDraft     Status = 1
	StatusPending   Status = 20
	StatusApproved  Status = 30
	StatusIssued    Status = 40
	StatusConfirmed Status = 50
)

var statusNames = map[Status]string{
	StatusDraft:     "draft",
	StatusPending:   "pending",
	StatusApproved:  "approved",
	StatusIssued:    "issued",
	StatusConfirmed: "confirmed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseStatus(v string) (Status, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for s, n := range statusNames {
		if n == v || fmt.Sprint(int(s)) == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown contract status %q", v)
}

// AtLeast reports whether s has reached other in the lifecycle.
func (s Status) AtLeast(other Status) bool { return s >= other }

type BillUnit string

const (
	BillHourly  BillUnit = "hourly"
	BillDaily   BillUnit = "daily"
	BillMonthly BillUnit = "monthly"
	BillLump    BillUnit = "lump"
)

// BillPayment is the closing and payment schedule of a client contract.
type BillPayment struct {
	ClosingDay          int `json:"closing_day"`
	InvoiceOffsetMonths int `json:"invoice_offset_months"`
	PaymentOffsetMonths int `json:"payment_offset_months"`
	PaymentDay          int `json:"payment_day"`
}

// ContractCore carries the lifecycle fields shared by both sides.
type ContractCore struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	TenantID         uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	PatternID        *uuid.UUID `json:"pattern_id,omitempty" db:"pattern_id"`
	ContractTypeCode string     `json:"contract_type_code" db:"contract_type_code"`
	Name             string     `json:"contract_name" db:"contract_name"`
	Number           *string    `json:"contract_number,omitempty" db:"contract_number"`
	StartDate        time.Time  `json:"start_date" db:"start_date"`
	EndDate          *time.Time `json:"end_date,omitempty" db:"end_date"`
	Amount           *int64     `json:"amount,omitempty" db:"amount"`
	BillUnit         BillUnit   `json:"bill_unit,omitempty" db:"bill_unit"`
	Description      string     `json:"description,omitempty" db:"description"`
	Notes            string     `json:"notes,omitempty" db:"notes"`
	Status           Status     `json:"status" db:"status"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy       *uuid.UUID `json:"approved_by,omitempty" db:"approved_by"`
	IssuedAt         *time.Time `json:"issued_at,omitempty" db:"issued_at"`
	IssuedBy         *uuid.UUID `json:"issued_by,omitempty" db:"issued_by"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	ConfirmedBy      *uuid.UUID `json:"confirmed_by,omitempty" db:"confirmed_by"`
	Version          int        `json:"version" db:"version"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// NumberOrEmpty returns the contract number or "" when unassigned.
func (c *ContractCore) NumberOrEmpty() string {
	if c.Number == nil {
		return ""
	}
	return *c.Number
}

// ClearWitnesses drops the number and every status witness.
func (c *ContractCore) ClearWitnesses() {
	c.Number = nil
	c.ApprovedAt, c.ApprovedBy = nil, nil
	c.IssuedAt, c.IssuedBy = nil, nil
	c.ConfirmedAt, c.ConfirmedBy = nil, nil
}

type ClientContract struct {
	ContractCore
	ClientID        uuid.UUID            `json:"client_id" db:"client_id"`
	CorporateNumber string               `json:"corporate_number" db:"corporate_number"`
	BillPayment     *BillPayment         `json:"bill_payment,omitempty" db:"bill_payment"`
	Haken           *ClientContractHaken `json:"haken,omitempty"`
}

func (c *ClientContract) IsDispatch() bool {
	return c.ContractTypeCode == ContractTypeDispatch
}

// ClientContractHaken is the dispatch satellite of a client contract.
type ClientContractHaken struct {
	ClientContractID           uuid.UUID  `json:"client_contract_id" db:"client_contract_id"`
	HakenOfficeID              *uuid.UUID `json:"haken_office_id,omitempty" db:"haken_office_id"`
	HakenUnitID                *uuid.UUID `json:"haken_unit_id,omitempty" db:"haken_unit_id"`
	CommanderID                *uuid.UUID `json:"commander_id,omitempty" db:"commander_id"`
	ComplaintOfficerClientID   *uuid.UUID `json:"complaint_officer_client_id,omitempty" db:"complaint_officer_client_id"`
	ResponsiblePersonClientID  *uuid.UUID `json:"responsible_person_client_id,omitempty" db:"responsible_person_client_id"`
	ComplaintOfficerCompanyID  *uuid.UUID `json:"complaint_officer_company_id,omitempty" db:"complaint_officer_company_id"`
	ResponsiblePersonCompanyID *uuid.UUID `json:"responsible_person_company_id,omitempty" db:"responsible_person_company_id"`
	LimitByAgreement           bool       `json:"limit_by_agreement" db:"limit_by_agreement"`
	LimitIndefinite            bool       `json:"limit_indefinite" db:"limit_indefinite"`
	// TTP marks an introduction-scheduled dispatch.
	TTP bool `json:"ttp" db:"ttp"`
	// PeriodExemptDetail is set when the dispatch falls outside the
	// period limit, and says on which ground.
	PeriodExemptDetail *string `json:"period_exempt_detail,omitempty" db:"period_exempt_detail"`
}

// Exempt reports whether the dispatch is outside the period limit.
func (h *ClientContractHaken) Exempt() bool {
	return h.PeriodExemptDetail != nil && *h.PeriodExemptDetail != ""
}

// MissingFields lists the role assignments still unset.
func (h *ClientContractHaken) MissingFields() []string {
	var missing []string
	check := func(name string, v *uuid.UUID) {
		if v == nil || *v == uuid.Nil {
			missing = append(missing, name)
		}
	}
	check("haken_office_id", h.HakenOfficeID)
	check("haken_unit_id", h.HakenUnitID)
	check("commander_id", h.CommanderID)
	check("complaint_officer_client_id", h.ComplaintOfficerClientID)
	check("responsible_person_client_id", h.ResponsiblePersonClientID)
	check("complaint_officer_company_id", h.ComplaintOfficerCompanyID)
	check("responsible_person_company_id", h.ResponsiblePersonCompanyID)
	return missing
}

type StaffContract struct {
	ContractCore
	StaffID            uuid.UUID `json:"staff_id" db:"staff_id"`
	EmploymentTypeCode string    `json:"employment_type_code,omitempty" db:"employment_type_code"`
	WorkLocation       string    `json:"work_location,omitempty" db:"work_location"`
	BusinessContent    string    `json:"business_content,omitempty" db:"business_content"`
}

type TermPosition int

const (
	TermPreamble  TermPosition = 1
	TermBody      TermPosition = 2
	TermPostamble TermPosition = 3
)

type ContractPattern struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	TenantID           uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	Domain             Side           `json:"domain" db:"domain"`
	ContractTypeCode   string         `json:"contract_type_code" db:"contract_type_code"`
	Name               string         `json:"name" db:"name"`
	EmploymentTypeCode string         `json:"employment_type_code,omitempty" db:"employment_type_code"`
	IsActive           bool           `json:"is_active" db:"is_active"`
	Terms              []ContractTerm `json:"terms"`
}

type ContractTerm struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	PatternID    uuid.UUID    `json:"pattern_id" db:"pattern_id"`
	Clause       string       `json:"clause" db:"clause"`
	Text         string       `json:"text" db:"text"`
	Position     TermPosition `json:"position" db:"position"`
	DisplayOrder int          `json:"display_order" db:"display_order"`
}

type Assignment struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	TenantID         uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	ClientContractID uuid.UUID  `json:"client_contract_id" db:"client_contract_id"`
	StaffContractID  uuid.UUID  `json:"staff_contract_id" db:"staff_contract_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	CreatedBy        *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
}

type PrintKind string

const (
	PrintContract             PrintKind = "contract"
	PrintQuotation            PrintKind = "quotation"
	PrintClashDayNotification PrintKind = "clash_day_notification"
	PrintDispatchNotification PrintKind = "dispatch_notification"
	PrintDispatchLedger       PrintKind = "dispatch_ledger"
	// PrintEmploymentConditions is rendered per assignment and never stored.
	PrintEmploymentConditions PrintKind = "employment_conditions"
)

// Print is the immutable record of one rendered document.
type Print struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TenantID       uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Side           Side       `json:"side" db:"side"`
	ContractID     uuid.UUID  `json:"contract_id" db:"contract_id"`
	Kind           PrintKind  `json:"print_kind" db:"print_kind"`
	Title          string     `json:"document_title" db:"document_title"`
	ContractNumber string     `json:"contract_number,omitempty" db:"contract_number"`
	PrintedAt      time.Time  `json:"printed_at" db:"printed_at"`
	PrintedBy      *uuid.UUID `json:"printed_by,omitempty" db:"printed_by"`
	BlobKey        string     `json:"-" db:"blob_key"`
	Filename       string     `json:"filename" db:"filename"`
	SHA256         string     `json:"sha256" db:"sha256"`
	Size           int64      `json:"size" db:"size"`
}
