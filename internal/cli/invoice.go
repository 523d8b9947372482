package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid invoice id %q", s)
	}

	return id, nil
}

func newGetCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}

			inv, err := a.Query.Get(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("invoice %d: %w", id, err)
			}

			return render(cmd.OutOrStdout(), e.format, toInvoiceView(inv), func(w io.Writer) error {
				return table(w, "FIELD\tVALUE", func(tw io.Writer) {
					fmt.Fprintf(tw, "id\t%d\n", inv.ID)
					fmt.Fprintf(tw, "status\t%s\n", inv.Status)
					fmt.Fprintf(tw, "issuer\t%s\n", inv.Issuer)
					fmt.Fprintf(tw, "counterparty\t%s\n", inv.Counterparty)
					fmt.Fprintf(tw, "amount\t%s\n", inv.Amount)
					fmt.Fprintf(tw, "content_ref\t%s\n", inv.ContentRef)
					fmt.Fprintf(tw, "created_at\t%s\n", formatOptionalTime(&inv.CreatedAt))
					fmt.Fprintf(tw, "settled_at\t%s\n", formatOptionalTime(inv.SettledAt))
				})
			})
		},
	}
}

func newListCmd(e *env) *cobra.Command {
	var (
		issuer       string
		counterparty string
		status       string
		limit        int
		offset       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices by issuer, counterparty or status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}

			filter := invoice.ListFilter{Limit: limit, Offset: offset}
			if status != "" {
				filter.Status = new(invoice.Status(status))
			}

			var invs []*invoice.Invoice

			switch {
			case issuer != "":
				invs, err = a.Query.ListByIssuer(cmd.Context(), issuer, filter)
			case counterparty != "":
				invs, err = a.Query.ListByCounterparty(cmd.Context(), counterparty, filter)
			case status != "":
				invs, err = a.Query.ListByStatus(cmd.Context(), invoice.Status(status), filter)
			default:
				return fmt.Errorf("one of --issuer, --counterparty or --status is required")
			}

			if err != nil {
				return err
			}

			views := make([]invoiceView, len(invs))
			for i, inv := range invs {
				views[i] = toInvoiceView(inv)
			}

			return render(cmd.OutOrStdout(), e.format, views, func(w io.Writer) error {
				return table(w, "ID\tSTATUS\tISSUER\tCOUNTERPARTY\tAMOUNT\tCONTENT_REF", func(tw io.Writer) {
					for _, inv := range invs {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
							inv.ID, inv.Status, inv.Issuer, inv.Counterparty, inv.Amount, inv.ContentRef)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&issuer, "issuer", "", "list invoices issued by this address")
	cmd.Flags().StringVar(&counterparty, "counterparty", "", "list invoices addressed to this address")
	cmd.Flags().StringVar(&status, "status", "", "open, settled or void")
	cmd.Flags().IntVar(&limit, "limit", invoice.DefaultListLimit, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")

	return cmd
}

func newHistoryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the event history of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}

			events, err := a.Query.History(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("invoice %d: %w", id, err)
			}

			return render(cmd.OutOrStdout(), e.format, toEventViews(events), func(w io.Writer) error {
				return table(w, "SEQ\tKIND\tACTOR\tAMOUNT\tCONTENT_REF\tOCCURRED_AT", func(tw io.Writer) {
					for _, ev := range events {
						amount := "-"
						if ev.Amount != nil {
							amount = ev.Amount.String()
						}

						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
							ev.Seq, ev.Kind, ev.Actor, amount, ev.ContentRef, formatOptionalTime(&ev.OccurredAt))
					}
				})
			})
		},
	}
}
