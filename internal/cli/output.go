package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/statement"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// render writes v as JSON or YAML, or calls text for the human format.
// YAML is produced from the JSON form so both share field names.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	case formatYAML:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var generic any
		if err := dec.Decode(&generic); err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}

		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(numbersAsYAML(generic)); err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}

		return enc.Close()
	}

	return text(w)
}

// numbersAsYAML turns json.Number leaves into plain integers where they fit so
// YAML prints them unquoted.
func numbersAsYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = numbersAsYAML(x)
		}
	case []any:
		for i, x := range t {
			t[i] = numbersAsYAML(x)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}

		if f, err := t.Float64(); err == nil {
			return f
		}
	}

	return v
}

func table(w io.Writer, header string, rows func(tw io.Writer)) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)

	return tw.Flush()
}

type invoiceView struct {
	ID           int64            `json:"id"`
	Issuer       invoice.Address  `json:"issuer"`
	Counterparty invoice.Address  `json:"counterparty"`
	Amount       decimal.Decimal  `json:"amount"`
	ContentRef   string           `json:"content_ref"`
	Status       invoice.Status   `json:"status"`
	SettledValue *decimal.Decimal `json:"settled_value,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	SettledAt    *time.Time       `json:"settled_at,omitempty"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`
}

func toInvoiceView(inv *invoice.Invoice) invoiceView {
	v := invoiceView{
		ID:           inv.ID,
		Issuer:       inv.Issuer,
		Counterparty: inv.Counterparty,
		Amount:       inv.Amount,
		ContentRef:   inv.ContentRef,
		Status:       inv.Status,
		CreatedAt:    inv.CreatedAt,
		SettledAt:    inv.SettledAt,
		UpdatedAt:    inv.UpdatedAt,
	}

	if inv.Status == invoice.StatusSettled {
		v.SettledValue = new(inv.SettledValue)
	}

	return v
}

type eventView struct {
	Seq          int64             `json:"seq"`
	ID           string            `json:"id"`
	Kind         invoice.EventKind `json:"kind"`
	Actor        invoice.Address   `json:"actor"`
	Amount       *decimal.Decimal  `json:"amount,omitempty"`
	ContentRef   string            `json:"content_ref,omitempty"`
	Counterparty invoice.Address   `json:"counterparty,omitempty"`
	Beneficiary  invoice.Address   `json:"beneficiary,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

func toEventViews(events []invoice.Event) []eventView {
	out := make([]eventView, len(events))
	for i, ev := range events {
		out[i] = eventView{
			Seq:          ev.Seq,
			ID:           ev.ID.String(),
			Kind:         ev.Kind,
			Actor:        ev.Actor,
			Amount:       ev.Amount,
			ContentRef:   ev.ContentRef,
			Counterparty: ev.Counterparty,
			Beneficiary:  ev.Beneficiary,
			OccurredAt:   ev.OccurredAt,
		}
	}

	return out
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.UTC().Format(time.RFC3339)
}

type statementLineView struct {
	invoiceView
	Role statement.Role `json:"role"`
}

type statementView struct {
	Party       invoice.Address     `json:"party"`
	GeneratedAt time.Time           `json:"generated_at"`
	Lines       []statementLineView `json:"lines"`
	Totals      statement.Totals    `json:"totals"`
}

func toStatementView(st *statement.Statement) statementView {
	v := statementView{
		Party:       st.Party,
		GeneratedAt: st.GeneratedAt,
		Lines:       make([]statementLineView, len(st.Lines)),
		Totals:      st.Totals,
	}

	for i, l := range st.Lines {
		v.Lines[i] = statementLineView{invoiceView: toInvoiceView(l.Invoice), Role: l.Role}
	}

	return v
}
