package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

func newImportCmd(e *env) *cobra.Command {
	var (
		as     string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Issue invoices from a CSV export",
		Long:  "Issue one invoice per CSV row on behalf of --as. The batch is all-or-nothing: any invalid row rejects the whole file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := invoice.ParseAddress(as)
			if err != nil {
				return fmt.Errorf("--as: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}

			if dryRun {
				res, err := a.Importer.Preview(caller, f)
				if err != nil {
					return err
				}

				out := map[string]any{"profile": res.Profile, "charset": res.Charset, "rows": len(res.Rows)}

				return render(cmd.OutOrStdout(), e.format, out, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%d rows ready (profile %s, %s)\n", len(res.Rows), res.Profile, res.Charset)
					return err
				})
			}

			invs, err := a.Importer.Import(cmd.Context(), caller, f)
			if err != nil {
				return err
			}

			views := make([]invoiceView, len(invs))
			for i, inv := range invs {
				views[i] = toInvoiceView(inv)
			}

			return render(cmd.OutOrStdout(), e.format, views, func(w io.Writer) error {
				return table(w, "ID\tCOUNTERPARTY\tAMOUNT\tCONTENT_REF", func(tw io.Writer) {
					for _, inv := range invs {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", inv.ID, inv.Counterparty, inv.Amount, inv.ContentRef)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "issuer address the invoices are issued by")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate without issuing")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}
