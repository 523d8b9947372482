package invoice

import (
	"fmt"
)

// Replay folds an invoice history into the state it implies. The first event
// must be Issued; nothing may follow a Settled or Voided event.
func Replay(events []Event) (*Invoice, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty history", ErrInvalidHistory)
	}

	first := events[0]
	if first.Kind != EventIssued {
		return nil, fmt.Errorf("%w: first event is %s", ErrInvalidHistory, first.Kind)
	}

	if first.Amount == nil {
		return nil, fmt.Errorf("%w: issued event without amount", ErrInvalidHistory)
	}

	inv := &Invoice{
		ID:           first.InvoiceID,
		Issuer:       first.Actor,
		Counterparty: first.Counterparty,
		Amount:       *first.Amount,
		ContentRef:   first.ContentRef,
		Status:       StatusOpen,
		CreatedAt:    first.OccurredAt,
	}

	for i, ev := range events[1:] {
		pos := i + 2

		if ev.InvoiceID != inv.ID {
			return nil, fmt.Errorf("%w: event %d belongs to invoice %d", ErrInvalidHistory, pos, ev.InvoiceID)
		}

		if inv.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s after terminal status %s", ErrInvalidHistory, ev.Kind, inv.Status)
		}

		at := ev.OccurredAt

		switch ev.Kind {
		case EventSettled:
			if ev.Actor != inv.Counterparty {
				return nil, fmt.Errorf("%w: settled by non-counterparty %s", ErrInvalidHistory, ev.Actor)
			}

			if ev.Amount == nil || !ev.Amount.Equal(inv.Amount) {
				return nil, fmt.Errorf("%w: settlement value differs from amount", ErrInvalidHistory)
			}

			inv.Status = StatusSettled
			inv.SettledValue = *ev.Amount
			inv.SettledAt = &at
		case EventVoided:
			if ev.Actor != inv.Issuer {
				return nil, fmt.Errorf("%w: voided by non-issuer %s", ErrInvalidHistory, ev.Actor)
			}

			inv.Status = StatusVoid
		case EventMetadataUpdated:
			if ev.Actor != inv.Issuer {
				return nil, fmt.Errorf("%w: metadata updated by non-issuer %s", ErrInvalidHistory, ev.Actor)
			}

			inv.ContentRef = ev.ContentRef
		default:
			return nil, fmt.Errorf("%w: unexpected %s event at position %d", ErrInvalidHistory, ev.Kind, pos)
		}

		inv.UpdatedAt = &at
	}

	return inv, nil
}
