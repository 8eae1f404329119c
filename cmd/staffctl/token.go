package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/staffcore/internal/auth"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

var tokenFlags struct {
	tenant     string
	kind       string
	email      string
	name       string
	perms      []string
	privileged bool
	ttl        time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint access tokens",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a bearer token for the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
		ctx := cmd.Context()
		st, done, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer done()
		t, err := resolveTenant(ctx, tenant.NewService(st), tokenFlags.tenant)
		if err != nil {
			return err
		}

		kind := tenant.ActorKind(tokenFlags.kind)
		switch kind {
		case tenant.KindOperator, tenant.KindStaff, tenant.KindClient:
		default:
			return fmt.Errorf("kind must be operator, staff or client")
		}
		a := &tenant.Actor{
			ID:           uuid.New(),
			Name:         tokenFlags.name,
			Email:        tokenFlags.email,
			Kind:         kind,
			Permissions:  tokenFlags.perms,
			Privileged:   tokenFlags.privileged && kind == tenant.KindOperator,
			SessionID:    uuid.NewString(),
			HomeTenantID: t.ID,
		}
		ttl := tokenFlags.ttl
		if ttl == 0 {
			ttl = cfg.Auth.TokenTTL
		}
		tok, err := auth.Mint(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl, a)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	f := tokenMintCmd.Flags()
	f.StringVar(&tokenFlags.tenant, "tenant", "", "home tenant ID or corporate number")
	f.StringVar(&tokenFlags.kind, "kind", string(tenant.KindOperator), "operator, staff or client")
	f.StringVar(&tokenFlags.email, "email", "", "account email")
	f.StringVar(&tokenFlags.name, "name", "", "display name")
	f.StringSliceVar(&tokenFlags.perms, "perm", nil, "granted permission, repeatable; * grants all")
	f.BoolVar(&tokenFlags.privileged, "privileged", false, "allow switching tenants (operators only)")
	f.DurationVar(&tokenFlags.ttl, "ttl", 0, "token lifetime, defaults to JWT_TTL")
	tokenMintCmd.MarkFlagRequired("tenant")
	tokenCmd.AddCommand(tokenMintCmd)
}
