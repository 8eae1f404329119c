package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// StaffAgreement is a tenant's legal text staff must accept before
// confirming a contract.
type StaffAgreement struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TenantID     uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name         string    `json:"name" db:"name"`
	Text         string    `json:"agreement_text" db:"agreement_text"`
	DisplayOrder int       `json:"display_order" db:"display_order"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TextHash fingerprints the current agreement text.
func (a *StaffAgreement) TextHash() string {
	return HashText(a.Text)
}

func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

type AgreementAcceptance struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	TenantID    uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Email       string     `json:"email" db:"email"`
	AgreementID uuid.UUID  `json:"agreement_id" db:"agreement_id"`
	TextHash    string     `json:"text_hash" db:"text_hash"`
	IsAgreed    bool       `json:"is_agreed" db:"is_agreed"`
	AgreedAt    *time.Time `json:"agreed_at,omitempty" db:"agreed_at"`
}

// Satisfies reports whether the acceptance still covers a.
func (acc *AgreementAcceptance) Satisfies(a *StaffAgreement) bool {
	return acc.IsAgreed && acc.AgreementID == a.ID && acc.TextHash == a.TextHash()
}
