package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/statement"
)

func newStatementCmd(e *env) *cobra.Command {
	var (
		status string
		zipOut string
	)

	cmd := &cobra.Command{
		Use:   "statement <address>",
		Short: "Show the account statement of a party",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}

			var filter *invoice.Status
			if status != "" {
				filter = new(invoice.Status(status))
			}

			st, err := a.Statements.Build(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}

			if zipOut != "" {
				return writeZipFile(zipOut, st)
			}

			return render(cmd.OutOrStdout(), e.format, toStatementView(st), func(w io.Writer) error {
				_, err := io.WriteString(w, statement.Summary(st))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only list invoices in this status; totals still cover all")
	cmd.Flags().StringVar(&zipOut, "zip", "", "write summary.txt and invoices.csv to this zip file instead of printing")

	return cmd
}

func writeZipFile(path string, st *statement.Statement) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if err := statement.WriteZip(f, st); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
