package models

import (
	"time"

	"github.com/google/uuid"
)

type Client struct {
	ID              uuid.UUID `json:"id" db:"id"`
	TenantID        uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name            string    `json:"name" db:"name"`
	CorporateNumber string    `json:"corporate_number" db:"corporate_number"`
	// BasicContractDate gates ordinary contracts, BasicContractDateHaken
	// gates dispatch contracts.
	BasicContractDate      *time.Time `json:"basic_contract_date,omitempty" db:"basic_contract_date"`
	BasicContractDateHaken *time.Time `json:"basic_contract_date_haken,omitempty" db:"basic_contract_date_haken"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
}

// EligibleFor reports whether the client may be the counterparty of a
// contract of the given type.
func (c *Client) EligibleFor(typeCode string) bool {
	if typeCode == ContractTypeDispatch {
		return c.BasicContractDateHaken != nil
	}
	return c.BasicContractDate != nil
}

// ClientOrganization is a department or office inside a client.
type ClientOrganization struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ClientID uuid.UUID `json:"client_id" db:"client_id"`
	Name     string    `json:"name" db:"name"`
	// HakenJigyoshoTeishokubi is the office-level conflict date the client
	// notified; required before a clash-day notification can be issued.
	HakenJigyoshoTeishokubi *time.Time `json:"haken_jigyosho_teishokubi,omitempty" db:"haken_jigyosho_teishokubi"`
}

type ClientUser struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ClientID uuid.UUID `json:"client_id" db:"client_id"`
	Name     string    `json:"name" db:"name"`
	Title    string    `json:"title,omitempty" db:"title"`
	Email    string    `json:"email,omitempty" db:"email"`
	Phone    string    `json:"phone,omitempty" db:"phone"`
}

type Staff struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TenantID       uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Name           string     `json:"name" db:"name"`
	Email          string     `json:"email,omitempty" db:"email"`
	EmployeeNumber string     `json:"employee_number,omitempty" db:"employee_number"`
	HireDate       *time.Time `json:"hire_date,omitempty" db:"hire_date"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Contractable reports whether a staff contract may be drafted for s.
func (s *Staff) Contractable() bool {
	return s.EmployeeNumber != "" && s.HireDate != nil
}

// StaffSatellites holds the sensitive one-to-one records of a staff
// member as the agency knows them. Nil means no record.
type StaffSatellites struct {
	Profile       *ProfileData       `json:"profile,omitempty"`
	Mynumber      *MynumberData      `json:"mynumber,omitempty"`
	Bank          *BankData          `json:"bank,omitempty"`
	International *InternationalData `json:"international,omitempty"`
	Disability    *DisabilityData    `json:"disability,omitempty"`
}

type ProfileData struct {
	NameLast      string `json:"name_last"`
	NameFirst     string `json:"name_first"`
	NameKanaLast  string `json:"name_kana_last"`
	NameKanaFirst string `json:"name_kana_first"`
	BirthDate     string `json:"birth_date"`
	Sex           string `json:"sex"`
	PostalCode    string `json:"postal_code"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
}

type MynumberData struct {
	Number string `json:"number"`
}

type BankData struct {
	BankCode      string `json:"bank_code"`
	BranchCode    string `json:"branch_code"`
	AccountType   string `json:"account_type"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

type InternationalData struct {
	ResidenceStatus  string `json:"residence_status"`
	ResidenceCardNo  string `json:"residence_card_number"`
	ResidencePeriodT string `json:"residence_period_to"`
}

type DisabilityData struct {
	DisabilityType  string `json:"disability_type"`
	DisabilityGrade string `json:"disability_grade"`
}
