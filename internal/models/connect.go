package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ConnectStatus string

const (
	ConnectPending  ConnectStatus = "pending"
	ConnectApproved ConnectStatus = "approved"
)

// ConnectStaff binds an external staff account to a tenant.
type ConnectStaff struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	TenantID        uuid.UUID     `json:"tenant_id" db:"tenant_id"`
	CorporateNumber string        `json:"corporate_number" db:"corporate_number"`
	Email           string        `json:"email" db:"email"`
	Status          ConnectStatus `json:"status" db:"status"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy      *uuid.UUID    `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// ConnectClient binds an external client contact to a tenant and the
// client organisation the contact speaks for.
type ConnectClient struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	TenantID        uuid.UUID     `json:"tenant_id" db:"tenant_id"`
	ClientID        uuid.UUID     `json:"client_id" db:"client_id"`
	CorporateNumber string        `json:"corporate_number" db:"corporate_number"`
	Email           string        `json:"email" db:"email"`
	Status          ConnectStatus `json:"status" db:"status"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy      *uuid.UUID    `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

type RequestKind string

const (
	RequestProfile       RequestKind = "profile"
	RequestMynumber      RequestKind = "mynumber"
	RequestBank          RequestKind = "bank"
	RequestInternational RequestKind = "international"
	RequestDisability    RequestKind = "disability"
)

// DerivedRequest asks the agency to take over data the external staff
// reported differently from the staff master.
type DerivedRequest struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	TenantID       uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	ConnectStaffID uuid.UUID       `json:"connect_staff_id" db:"connect_staff_id"`
	Kind           RequestKind     `json:"kind" db:"kind"`
	Status         string          `json:"status" db:"status"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// ExternalProfile is what an external staff account self-reports.
type ExternalProfile struct {
	Email string `json:"email"`
	StaffSatellites
}
