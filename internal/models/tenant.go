package models

import (
	"time"

	"github.com/google/uuid"
)

type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type DispatchTreatment string

const (
	DispatchTreatmentAgreement  DispatchTreatment = "agreement"
	DispatchTreatmentComparison DispatchTreatment = "comparison"
)

// Company is the agency a tenant maps onto.
type Company struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	TenantID          uuid.UUID         `json:"tenant_id" db:"tenant_id"`
	Name              string            `json:"name" db:"name"`
	CorporateNumber   string            `json:"corporate_number" db:"corporate_number"`
	DispatchTreatment DispatchTreatment `json:"dispatch_treatment_method" db:"dispatch_treatment_method"`
	RoundSealKey      string            `json:"round_seal_key,omitempty" db:"round_seal_key"`
	SquareSealKey     string            `json:"square_seal_key,omitempty" db:"square_seal_key"`
	// NumberPrefix is the leading segment of every contract number the
	// tenant issues.
	NumberPrefix string    `json:"number_prefix" db:"number_prefix"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CompanyUser is an agency employee named on dispatch contracts.
type CompanyUser struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name     string    `json:"name" db:"name"`
	Email    string    `json:"email,omitempty" db:"email"`
	Phone    string    `json:"phone,omitempty" db:"phone"`
}
