package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

type invoiceResponse struct {
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

type eventResponse struct {
	Seq          int64             `json:"seq"`
	ID           uuid.UUID         `json:"id"`
	Kind         invoice.EventKind `json:"kind"`
	Actor        invoice.Address   `json:"actor"`
	Amount       *decimal.Decimal  `json:"amount,omitempty"`
	ContentRef   string            `json:"content_ref,omitempty"`
	Counterparty invoice.Address   `json:"counterparty,omitempty"`
	Beneficiary  invoice.Address   `json:"beneficiary,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

type listResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func toResponse(inv *invoice.Invoice) invoiceResponse {
	resp := invoiceResponse{
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
		resp.SettledValue = new(inv.SettledValue)
	}

	return resp
}

func toResponseList(invs []*invoice.Invoice) []invoiceResponse {
	resp := make([]invoiceResponse, len(invs))
	for i, inv := range invs {
		resp[i] = toResponse(inv)
	}

	return resp
}

func toEventResponses(events []invoice.Event) []eventResponse {
	resp := make([]eventResponse, len(events))
	for i, ev := range events {
		resp[i] = eventResponse{
			Seq:          ev.Seq,
			ID:           ev.ID,
			Kind:         ev.Kind,
			Actor:        ev.Actor,
			Amount:       ev.Amount,
			ContentRef:   ev.ContentRef,
			Counterparty: ev.Counterparty,
			Beneficiary:  ev.Beneficiary,
			OccurredAt:   ev.OccurredAt,
		}
	}

	return resp
}
