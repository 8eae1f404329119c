package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

var numberingCmd = &cobra.Command{
	Use:   "numbering",
	Short: "Inspect contract number sequences",
}

var numberingInspectCmd = &cobra.Command{
	Use:   "inspect <tenant>",
	Short: "Show the last number handed out per letter and year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, done, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer done()
		t, err := resolveTenant(ctx, tenant.NewService(st), args[0])
		if err != nil {
			return err
		}

		var (
			seqs   []store.Sequence
			prefix string
		)
		err = st.InTx(tenant.WithTenant(ctx, t), func(ctx context.Context, tx store.Tx) error {
			c, err := tx.Company(ctx)
			if err != nil {
				return err
			}
			prefix = c.NumberPrefix
			seqs, err = tx.Sequences(ctx)
			return err
		})
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LETTER\tYEAR\tLAST\tLAST NUMBER")
		for _, s := range seqs {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s%d%s%06d\n", s.Letter, s.Year, s.Last, prefix, s.Year, s.Letter, s.Last)
		}
		return tw.Flush()
	},
}

func init() {
	numberingCmd.AddCommand(numberingInspectCmd)
}
