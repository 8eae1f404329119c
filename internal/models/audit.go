package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditCreate                    AuditAction = "create"
	AuditUpdate                    AuditAction = "update"
	AuditDelete                    AuditAction = "delete"
	AuditView                      AuditAction = "view"
	AuditPrint                     AuditAction = "print"
	AuditQuotationIssue            AuditAction = "quotation_issue"
	AuditClashDayNotificationIssue AuditAction = "clash_day_notification_issue"
	AuditDispatchNotificationIssue AuditAction = "dispatch_notification_issue"
	AuditDispatchLedgerIssue       AuditAction = "dispatch_ledger_issue"
	AuditConfirm                   AuditAction = "confirm"
	AuditUnconfirm                 AuditAction = "unconfirm"
	AuditRevert                    AuditAction = "revert"
)

// AuditEvent is append-only.
type AuditEvent struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	TenantID   uuid.UUID   `json:"tenant_id" db:"tenant_id"`
	ActorID    *uuid.UUID  `json:"actor_id,omitempty" db:"actor_id"`
	ActorName  string      `json:"actor_name,omitempty" db:"actor_name"`
	Action     AuditAction `json:"action" db:"action"`
	ModelName  string      `json:"model_name" db:"model_name"`
	ObjectID   string      `json:"object_id" db:"object_id"`
	ObjectRepr string      `json:"object_repr" db:"object_repr"`
	Version    *int        `json:"version,omitempty" db:"version"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}
