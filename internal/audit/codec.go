package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

// ContentType is the media type of an archived history.
const ContentType = "application/x-ndjson"

// line is the archived form of one event. Field names are part of the archive
// format and must not change.
type line struct {
	Seq          int64     `json:"seq"`
	ID           uuid.UUID `json:"id"`
	InvoiceID    int64     `json:"invoice_id"`
	Kind         string    `json:"kind"`
	Actor        string    `json:"actor"`
	Amount       *string   `json:"amount,omitempty"`
	ContentRef   string    `json:"content_ref,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Beneficiary  string    `json:"beneficiary,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Encode writes events as JSON Lines, one event per line, in the given order.
func Encode(w io.Writer, events []invoice.Event) error {
	enc := json.NewEncoder(w)

	for _, ev := range events {
		l := line{
			Seq:          ev.Seq,
			ID:           ev.ID,
			InvoiceID:    ev.InvoiceID,
			Kind:         string(ev.Kind),
			Actor:        string(ev.Actor),
			ContentRef:   ev.ContentRef,
			Counterparty: string(ev.Counterparty),
			Beneficiary:  string(ev.Beneficiary),
			OccurredAt:   ev.OccurredAt.UTC(),
		}

		if ev.Amount != nil {
			l.Amount = new(ev.Amount.String())
		}

		if err := enc.Encode(l); err != nil {
			return fmt.Errorf("encoding event %d: %w", ev.Seq, err)
		}
	}

	return nil
}

// Decode reads a JSON Lines history written by Encode.
func Decode(r io.Reader) ([]invoice.Event, error) {
	var events []invoice.Event

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("decoding line %d: %w", n, err)
		}

		ev := invoice.Event{
			Seq:          l.Seq,
			ID:           l.ID,
			InvoiceID:    l.InvoiceID,
			Kind:         invoice.EventKind(l.Kind),
			Actor:        invoice.Address(l.Actor),
			ContentRef:   l.ContentRef,
			Counterparty: invoice.Address(l.Counterparty),
			Beneficiary:  invoice.Address(l.Beneficiary),
			OccurredAt:   l.OccurredAt,
		}

		if l.Amount != nil {
			amount, err := decimal.NewFromString(*l.Amount)
			if err != nil {
				return nil, fmt.Errorf("decoding amount on line %d: %w", n, err)
			}

			ev.Amount = &amount
		}

		events = append(events, ev)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	return events, nil
}
