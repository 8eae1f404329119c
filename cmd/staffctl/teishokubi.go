package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/staffcore/internal/queue"
	"github.com/nikhilbhutani/staffcore/internal/teishokubi"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

var teishokubiCmd = &cobra.Command{
	Use:   "teishokubi",
	Short: "Maintain the derived conflict dates",
}

var rebuildFlags struct {
	tenant  string
	async   bool
	workers int
}

var teishokubiRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-derive conflict dates from the assignment graph",
	Long: `Rebuild deletes and re-derives every conflict date row of one tenant,
or of every tenant when --tenant is omitted. With --async the rebuild is
queued for the worker instead of running here.`,
	RunE: runTeishokubiRebuild,
}

func init() {
	f := teishokubiRebuildCmd.Flags()
	f.StringVar(&rebuildFlags.tenant, "tenant", "", "tenant ID or corporate number")
	f.BoolVar(&rebuildFlags.async, "async", false, "queue the rebuild for the worker")
	f.IntVar(&rebuildFlags.workers, "workers", 4, "tenants rebuilt in parallel")
	teishokubiCmd.AddCommand(teishokubiRebuildCmd)
}

func runTeishokubiRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, done, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer done()

	tenantID := uuid.Nil
	if rebuildFlags.tenant != "" {
		t, err := resolveTenant(ctx, tenant.NewService(st), rebuildFlags.tenant)
		if err != nil {
			return err
		}
		tenantID = t.ID
	}

	if rebuildFlags.async {
		jobs := queue.NewClient(cfg.Redis)
		defer jobs.Close()
		if err := jobs.EnqueueTeishokubiRebuild(ctx, tenantID); err != nil {
			return err
		}
		fmt.Println("queued")
		return nil
	}

	svc := teishokubi.NewService(st)
	if tenantID != uuid.Nil {
		n, err := svc.RebuildTenant(tenant.WithTenantID(ctx, tenantID))
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d rows\n", tenantID, n)
		return nil
	}
	counts, err := svc.RebuildAll(ctx, rebuildFlags.workers)
	if err != nil {
		return err
	}
	for id, n := range counts {
		fmt.Printf("%s\t%d rows\n", id, n)
	}
	return nil
}
