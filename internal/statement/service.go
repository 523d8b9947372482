package statement

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

// Role is the side a party is on for one invoice.
type Role string

const (
	RoleIssuer       Role = "issuer"
	RoleCounterparty Role = "counterparty"
)

// Line is one invoice in a statement, seen from the party's side.
type Line struct {
	Invoice *invoice.Invoice
	Role    Role
}

// Totals sum invoice amounts by side and status. Voided invoices count toward none.
type Totals struct {
	Outstanding decimal.Decimal `json:"outstanding"` // open, issued by the party
	Received    decimal.Decimal `json:"received"`    // settled, issued by the party
	Payable     decimal.Decimal `json:"payable"`     // open, owed by the party
	Paid        decimal.Decimal `json:"paid"`        // settled, owed by the party
}

type Statement struct {
	Party       invoice.Address
	GeneratedAt time.Time
	Lines       []Line
	Totals      Totals
}

// Service builds party statements.
type Service struct {
	reader invoice.Reader
	now    func() time.Time
}

// NewService creates a new statement Service.
func NewService(reader invoice.Reader) *Service {
	return &Service{reader: reader, now: func() time.Time { return time.Now().UTC() }}
}

// Build collects every invoice the party issued or owes, ordered by id, with totals.
// A non-nil status narrows the lines but not the totals.
func (s *Service) Build(ctx context.Context, party string, status *invoice.Status) (*Statement, error) {
	addr, err := invoice.ParseAddress(party)
	if err != nil {
		return nil, err
	}

	if status != nil && !status.Valid() {
		return nil, invoice.ErrInvalidStatus
	}

	issued, err := collect(ctx, func(f invoice.ListFilter) ([]*invoice.Invoice, error) {
		return s.reader.ListByIssuer(ctx, addr, f)
	})
	if err != nil {
		return nil, fmt.Errorf("listing issued invoices: %w", err)
	}

	received, err := collect(ctx, func(f invoice.ListFilter) ([]*invoice.Invoice, error) {
		return s.reader.ListByCounterparty(ctx, addr, f)
	})
	if err != nil {
		return nil, fmt.Errorf("listing received invoices: %w", err)
	}

	st := &Statement{
		Party:       addr,
		GeneratedAt: s.now(),
		Lines:       make([]Line, 0, len(issued)+len(received)),
	}

	add := func(inv *invoice.Invoice, role Role) {
		st.Totals.add(inv, role)

		if status == nil || inv.Status == *status {
			st.Lines = append(st.Lines, Line{Invoice: inv, Role: role})
		}
	}

	// Both lists are sorted by id; merge them.
	i, j := 0, 0
	for i < len(issued) || j < len(received) {
		if j == len(received) || (i < len(issued) && issued[i].ID < received[j].ID) {
			add(issued[i], RoleIssuer)
			i++

			continue
		}

		add(received[j], RoleCounterparty)
		j++
	}

	return st, nil
}

func (t *Totals) add(inv *invoice.Invoice, role Role) {
	switch {
	case role == RoleIssuer && inv.Status == invoice.StatusOpen:
		t.Outstanding = t.Outstanding.Add(inv.Amount)
	case role == RoleIssuer && inv.Status == invoice.StatusSettled:
		t.Received = t.Received.Add(inv.SettledValue)
	case role == RoleCounterparty && inv.Status == invoice.StatusOpen:
		t.Payable = t.Payable.Add(inv.Amount)
	case role == RoleCounterparty && inv.Status == invoice.StatusSettled:
		t.Paid = t.Paid.Add(inv.SettledValue)
	}
}

func collect(ctx context.Context, list func(invoice.ListFilter) ([]*invoice.Invoice, error)) ([]*invoice.Invoice, error) {
	var all []*invoice.Invoice

	filter := invoice.ListFilter{Limit: invoice.MaxListLimit}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := list(filter)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)

		if len(page) < filter.Limit {
			return all, nil
		}

		filter.Offset += len(page)
	}
}

// Other returns the address on the other side of the line.
func (l Line) Other() invoice.Address {
	if l.Role == RoleIssuer {
		return l.Invoice.Counterparty
	}

	return l.Invoice.Issuer
}

// Summary renders the statement as plain text, one line per invoice followed by the totals.
func Summary(st *Statement) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Statement for %s (%s)\n\n", st.Party, st.GeneratedAt.Format(time.RFC3339))

	for _, l := range st.Lines {
		sign := "-"
		if l.Role == RoleIssuer {
			sign = "+"
		}

		ref := l.Invoice.ContentRef
		if ref == "" {
			ref = "no document"
		}

		fmt.Fprintf(&sb, "* #%d | %s | %s | %s%s | %s | %s\n",
			l.Invoice.ID,
			l.Invoice.CreatedAt.Format("2006-01-02"),
			l.Other(),
			sign,
			l.Invoice.Amount.String(),
			l.Invoice.Status,
			ref,
		)
	}

	fmt.Fprintf(&sb, "\nOutstanding: %s\nReceived:    %s\nPayable:     %s\nPaid:        %s\n",
		st.Totals.Outstanding, st.Totals.Received, st.Totals.Payable, st.Totals.Paid)

	return sb.String()
}

var csvHeader = []string{"id", "role", "issuer", "counterparty", "amount", "status", "settled_value", "content_ref", "created_at", "settled_at"}

// WriteCSV writes the statement lines as comma-separated values with a header row.
func WriteCSV(w io.Writer, st *Statement) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, l := range st.Lines {
		settledAt := ""
		if l.Invoice.SettledAt != nil {
			settledAt = l.Invoice.SettledAt.UTC().Format(time.RFC3339)
		}

		settled := ""
		if l.Invoice.Status == invoice.StatusSettled {
			settled = l.Invoice.SettledValue.String()
		}

		err := cw.Write([]string{
			strconv.FormatInt(l.Invoice.ID, 10),
			string(l.Role),
			l.Invoice.Issuer.String(),
			l.Invoice.Counterparty.String(),
			l.Invoice.Amount.String(),
			string(l.Invoice.Status),
			settled,
			l.Invoice.ContentRef,
			l.Invoice.CreatedAt.UTC().Format(time.RFC3339),
			settledAt,
		})
		if err != nil {
			return fmt.Errorf("writing invoice %d: %w", l.Invoice.ID, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// WriteZip writes a zip bundle holding summary.txt and invoices.csv.
func WriteZip(w io.Writer, st *Statement) error {
	zw := zip.NewWriter(w)

	f, err := zw.Create("summary.txt")
	if err != nil {
		return fmt.Errorf("creating summary entry: %w", err)
	}

	if _, err := io.WriteString(f, Summary(st)); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	f, err = zw.Create("invoices.csv")
	if err != nil {
		return fmt.Errorf("creating csv entry: %w", err)
	}

	if err := WriteCSV(f, st); err != nil {
		return err
	}

	return zw.Close()
}

// Filename is the suggested download name for a zip bundle.
func Filename(st *Statement) string {
	return fmt.Sprintf("statement_%s_%s.zip", st.Party, st.GeneratedAt.Format("20060102"))
}
