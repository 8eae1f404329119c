package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/staffcore/internal/queue"
	"github.com/nikhilbhutani/staffcore/internal/teishokubi"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

type TeishokubiWorker struct {
	svc         *teishokubi.Service
	parallelism int
}

func NewTeishokubiWorker(svc *teishokubi.Service, parallelism int) *TeishokubiWorker {
	return &TeishokubiWorker{svc: svc, parallelism: parallelism}
}

func (w *TeishokubiWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.TeishokubiRebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	if payload.TenantID == "" {
		counts, err := w.svc.RebuildAll(ctx, w.parallelism)
		if err != nil {
			return fmt.Errorf("rebuild teishokubi: %w", err)
		}
		slog.Info("teishokubi rebuilt", "tenants", len(counts))
		return nil
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("parse tenant ID: %w: %w", err, asynq.SkipRetry)
	}
	n, err := w.svc.RebuildTenant(tenant.WithTenantID(ctx, tenantID))
	if err != nil {
		return fmt.Errorf("rebuild teishokubi for tenant %s: %w", tenantID, err)
	}
	slog.Info("teishokubi rebuilt", "tenant_id", tenantID, "rows", n)
	return nil
}
