package queue

import "github.com/nikhilbhutani/staffcore/internal/mail"

const (
	TypeMailSend          = "mail:send"
	TypeTeishokubiRebuild = "teishokubi:rebuild"
)

type MailSendPayload struct {
	mail.Message
	TenantID string `json:"tenant_id,omitempty"`
}

// TeishokubiRebuildPayload names the tenant to rebuild; empty rebuilds
// every tenant.
type TeishokubiRebuildPayload struct {
	TenantID string `json:"tenant_id,omitempty"`
}
