// Package audit checks stored invoices against their event history and
// archives the final history of every terminal invoice.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

// Mismatch is one field whose stored value differs from the replayed history.
type Mismatch struct {
	Field    string `json:"field"`
	Stored   string `json:"stored"`
	Replayed string `json:"replayed"`
}

type Report struct {
	InvoiceID  int64      `json:"invoice_id"`
	Status     string     `json:"status"`
	Events     int        `json:"events"`
	OK         bool       `json:"ok"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
	Problem    string     `json:"problem,omitempty"`
}

type Summary struct {
	Checked int      `json:"checked"`
	Failed  []Report `json:"failed"`
}

type Verifier struct {
	reader invoice.Reader
}

func NewVerifier(reader invoice.Reader) *Verifier {
	return &Verifier{reader: reader}
}

// Verify replays the invoice's history and compares the result with the stored record.
// A history that cannot be replayed is reported, not returned as an error.
func (v *Verifier) Verify(ctx context.Context, id int64) (*Report, error) {
	stored, err := v.reader.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := v.reader.History(ctx, id)
	if err != nil && !errors.Is(err, invoice.ErrNotFound) {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	return Compare(stored, events), nil
}

// Compare builds the report for a stored record and its history.
func Compare(stored *invoice.Invoice, events []invoice.Event) *Report {
	report := &Report{InvoiceID: stored.ID, Status: string(stored.Status), Events: len(events)}

	replayed, err := invoice.Replay(events)
	if err != nil {
		report.Problem = err.Error()
		return report
	}

	check := func(field, s, r string) {
		if s != r {
			report.Mismatches = append(report.Mismatches, Mismatch{Field: field, Stored: s, Replayed: r})
		}
	}

	check("id", fmt.Sprint(stored.ID), fmt.Sprint(replayed.ID))
	check("issuer", stored.Issuer.String(), replayed.Issuer.String())
	check("counterparty", stored.Counterparty.String(), replayed.Counterparty.String())
	check("amount", stored.Amount.String(), replayed.Amount.String())
	check("content_ref", stored.ContentRef, replayed.ContentRef)
	check("status", string(stored.Status), string(replayed.Status))
	check("settled_value", stored.SettledValue.String(), replayed.SettledValue.String())
	check("settled_at", formatTime(stored.SettledAt), formatTime(replayed.SettledAt))

	report.OK = len(report.Mismatches) == 0

	return report
}

var ErrMismatch = errors.New("stored record does not match its history")

// Err describes a failed report as an error wrapping ErrMismatch or
// invoice.ErrInvalidHistory. It returns nil for a passing report.
func (r *Report) Err() error {
	switch {
	case r.OK:
		return nil
	case r.Problem != "":
		return fmt.Errorf("%w: %s", invoice.ErrInvalidHistory, r.Problem)
	}

	fields := make([]string, len(r.Mismatches))
	for i, m := range r.Mismatches {
		fields[i] = m.Field
	}

	return fmt.Errorf("%w: %s", ErrMismatch, strings.Join(fields, ", "))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

// VerifyAll checks every invoice, paging through each status.
func (v *Verifier) VerifyAll(ctx context.Context) (*Summary, error) {
	summary := &Summary{Failed: []Report{}}

	for _, status := range []invoice.Status{invoice.StatusOpen, invoice.StatusSettled, invoice.StatusVoid} {
		err := eachInvoice(ctx, v.reader, status, func(inv *invoice.Invoice) error {
			events, err := v.reader.History(ctx, inv.ID)
			if err != nil && !errors.Is(err, invoice.ErrNotFound) {
				return fmt.Errorf("loading history of invoice %d: %w", inv.ID, err)
			}

			summary.Checked++

			if r := Compare(inv, events); !r.OK {
				summary.Failed = append(summary.Failed, *r)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// eachInvoice pages through ListByStatus. Pages are keyed by offset, so a
// concurrent transition can move a record between pages; the next run sees it.
func eachInvoice(ctx context.Context, reader invoice.Reader, status invoice.Status, fn func(*invoice.Invoice) error) error {
	filter := invoice.ListFilter{Limit: invoice.MaxListLimit}

	for {
		page, err := reader.ListByStatus(ctx, status, filter)
		if err != nil {
			return fmt.Errorf("listing %s invoices: %w", status, err)
		}

		for _, inv := range page {
			if err := fn(inv); err != nil {
				return err
			}
		}

		if len(page) < filter.Limit {
			return nil
		}

		filter.Offset += len(page)
	}
}
