package models

import (
	"time"

	"github.com/google/uuid"
)

// TeishokubiKey identifies one (staff, client, organisation) dispatch line.
type TeishokubiKey struct {
	StaffEmail            string `json:"staff_email"`
	ClientCorporateNumber string `json:"client_corporate_number"`
	OrganizationName      string `json:"organization_name"`
}

// Teishokubi is derived state: the conflict date of one dispatch line.
type Teishokubi struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	TeishokubiKey
	DispatchStartDate time.Time `json:"dispatch_start_date" db:"dispatch_start_date"`
	ConflictDate      time.Time `json:"conflict_date" db:"conflict_date"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
