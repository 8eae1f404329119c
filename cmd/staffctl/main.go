// Command staffctl administers a staffcore installation: schema
// migrations, tenants, conflict-date rebuilds, numbering and tokens.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/database"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store/postgres"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "staffctl",
	Short:         "Administer the staffcore contract core",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		return err
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, tenantCmd, teishokubiCmd, numberingCmd, tokenCmd)
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	return database.NewPool(ctx, cfg.Database)
}

func openStore(ctx context.Context) (*postgres.Store, func(), error) {
	pool, err := openPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	return postgres.New(pool, cfg.Numbering.LockTimeout), pool.Close, nil
}

// resolveTenant accepts a tenant ID or a company corporate number.
func resolveTenant(ctx context.Context, svc *tenant.Service, ref string) (*models.Tenant, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return svc.GetByID(ctx, id)
	}
	return svc.GetByCorporateNumber(ctx, ref)
}
