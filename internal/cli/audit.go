package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/blockbill/internal/audit"
)

// ErrVerificationFailed is returned when any checked invoice disagrees with its history.
var ErrVerificationFailed = errors.New("verification failed")

func newVerifyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [id]",
		Short: "Replay event histories and compare them with stored records",
		Long:  "With an id, verify that invoice. Without one, verify every invoice in the store. Exits non-zero if any record disagrees with its history.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}

				report, err := a.Verifier.Verify(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("invoice %d: %w", id, err)
				}

				if err := render(cmd.OutOrStdout(), e.format, report, func(w io.Writer) error {
					return writeReport(w, report)
				}); err != nil {
					return err
				}

				if !report.OK {
					return ErrVerificationFailed
				}

				return nil
			}

			summary, err := a.Verifier.VerifyAll(cmd.Context())
			if err != nil {
				return err
			}

			if err := render(cmd.OutOrStdout(), e.format, summary, func(w io.Writer) error {
				fmt.Fprintf(w, "checked %d invoices, %d failed\n", summary.Checked, len(summary.Failed))

				for i := range summary.Failed {
					if err := writeReport(w, &summary.Failed[i]); err != nil {
						return err
					}
				}

				return nil
			}); err != nil {
				return err
			}

			if len(summary.Failed) > 0 {
				return ErrVerificationFailed
			}

			return nil
		},
	}
}

func writeReport(w io.Writer, r *audit.Report) error {
	if r.OK {
		_, err := fmt.Fprintf(w, "invoice %d: ok (%s, %d events)\n", r.InvoiceID, r.Status, r.Events)
		return err
	}

	if r.Problem != "" {
		_, err := fmt.Fprintf(w, "invoice %d: history cannot be replayed: %s\n", r.InvoiceID, r.Problem)
		return err
	}

	fmt.Fprintf(w, "invoice %d: %d mismatches\n", r.InvoiceID, len(r.Mismatches))

	return table(w, "  FIELD\tSTORED\tREPLAYED", func(tw io.Writer) {
		for _, m := range r.Mismatches {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", m.Field, m.Stored, m.Replayed)
		}
	})
}

func newArchiveCmd(e *env) *cobra.Command {
	var sweep bool

	cmd := &cobra.Command{
		Use:   "archive [id]",
		Short: "Write the history of terminal invoices to the archive store",
		Long:  "Archive one settled or void invoice, or with --sweep every terminal invoice that has no archive yet. Archives are create-only.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sweep == (len(args) == 1) {
				return errors.New("pass either an invoice id or --sweep")
			}

			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}

			if a.Archiver == nil {
				return errors.New("no archive store configured: set ARCHIVE_DRIVER")
			}

			if sweep {
				res, err := a.Archiver.Sweep(cmd.Context())
				if err != nil {
					return err
				}

				return render(cmd.OutOrStdout(), e.format, res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "archived %d, already present %d\n", res.Archived, res.Present)
					return err
				})
			}

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			created, err := a.Archiver.Archive(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := map[string]any{"id": id, "key": audit.Key(id), "created": created}

			return render(cmd.OutOrStdout(), e.format, out, func(w io.Writer) error {
				if created {
					_, err := fmt.Fprintf(w, "archived %s\n", audit.Key(id))
					return err
				}

				_, err := fmt.Fprintf(w, "%s already archived\n", audit.Key(id))

				return err
			})
		},
	}

	cmd.Flags().BoolVar(&sweep, "sweep", false, "archive every terminal invoice missing from the archive")

	return cmd
}
