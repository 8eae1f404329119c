package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/staffcore/internal/mail"
	"github.com/nikhilbhutani/staffcore/internal/queue"
)

type MailWorker struct {
	sender mail.Sender
}

func NewMailWorker(sender mail.Sender) *MailWorker {
	return &MailWorker{sender: sender}
}

func (w *MailWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.MailSendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("mail without recipient: %w", asynq.SkipRetry)
	}

	if err := w.sender.Send(ctx, payload.Message); err != nil {
		slog.Warn("mail delivery failed", "to", payload.To, "tenant_id", payload.TenantID, "error", err)
		return err
	}
	slog.Info("mail delivered", "to", payload.To, "tenant_id", payload.TenantID)
	return nil
}
