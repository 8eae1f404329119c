package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Register and list tenants",
}

var tenantCreateFlags struct {
	name, slug, corporateNumber, prefix string
	treatment                           string
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a tenant and its company",
	RunE:  runTenantCreate,
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, done, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer done()
		list, err := tenant.NewService(st).List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSLUG\tNAME")
		for _, t := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Slug, t.Name)
		}
		return tw.Flush()
	},
}

func init() {
	f := tenantCreateCmd.Flags()
	f.StringVar(&tenantCreateFlags.name, "name", "", "company name")
	f.StringVar(&tenantCreateFlags.slug, "slug", "", "tenant slug")
	f.StringVar(&tenantCreateFlags.corporateNumber, "corporate-number", "", "13-digit corporate number")
	f.StringVar(&tenantCreateFlags.prefix, "prefix", "", "contract number prefix")
	f.StringVar(&tenantCreateFlags.treatment, "dispatch-treatment", string(models.DispatchTreatmentAgreement), "agreement or comparison")
	for _, name := range []string{"name", "slug", "corporate-number", "prefix"} {
		tenantCreateCmd.MarkFlagRequired(name)
	}
	tenantCmd.AddCommand(tenantCreateCmd, tenantListCmd)
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	fl := tenantCreateFlags
	cn, err := tenant.NormalizeCorporateNumber(fl.corporateNumber)
	if err != nil {
		return fmt.Errorf("corporate number %q: %w", fl.corporateNumber, err)
	}
	treatment := models.DispatchTreatment(fl.treatment)
	if treatment != models.DispatchTreatmentAgreement && treatment != models.DispatchTreatmentComparison {
		return fmt.Errorf("dispatch treatment must be agreement or comparison")
	}

	ctx := cmd.Context()
	st, done, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer done()

	t := &models.Tenant{Name: fl.name, Slug: fl.slug}
	if err := st.CreateTenant(ctx, t); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	company := &models.Company{
		Name:              fl.name,
		CorporateNumber:   cn,
		DispatchTreatment: treatment,
		NumberPrefix:      fl.prefix,
	}
	err = st.InTx(tenant.WithTenant(ctx, t), func(ctx context.Context, tx store.Tx) error {
		return tx.SaveCompany(ctx, company)
	})
	if err != nil {
		return fmt.Errorf("save company: %w", err)
	}
	fmt.Println(t.ID)
	return nil
}
