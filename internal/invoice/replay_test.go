package invoice_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

func issuedEvent() invoice.Event {
	return invoice.Event{
		Seq:          1,
		InvoiceID:    7,
		Kind:         invoice.EventIssued,
		Actor:        alice,
		Amount:       new(decimal.NewFromInt(100)),
		ContentRef:   "ipfs://a",
		Counterparty: bob,
		OccurredAt:   fixedNow,
	}
}

func TestReplay(t *testing.T) {
	later := fixedNow.Add(time.Minute)

	t.Run("IssuedOnly", func(t *testing.T) {
		got, err := invoice.Replay([]invoice.Event{issuedEvent()})

		require.NoError(t, err)
		assert.Equal(t, int64(7), got.ID)
		assert.Equal(t, invoice.StatusOpen, got.Status)
		assert.Equal(t, alice, got.Issuer)
		assert.Equal(t, bob, got.Counterparty)
		assert.Equal(t, "ipfs://a", got.ContentRef)
		assert.Nil(t, got.UpdatedAt)
	})

	t.Run("MetadataThenSettle", func(t *testing.T) {
		got, err := invoice.Replay([]invoice.Event{
			issuedEvent(),
			{Seq: 2, InvoiceID: 7, Kind: invoice.EventMetadataUpdated, Actor: alice, ContentRef: "ipfs://b", OccurredAt: fixedNow},
			{Seq: 3, InvoiceID: 7, Kind: invoice.EventSettled, Actor: bob, Amount: new(decimal.NewFromInt(100)), Beneficiary: alice, OccurredAt: later},
		})

		require.NoError(t, err)
		assert.Equal(t, invoice.StatusSettled, got.Status)
		assert.Equal(t, "ipfs://b", got.ContentRef)
		require.NotNil(t, got.SettledAt)
		assert.Equal(t, later, *got.SettledAt)
		assert.True(t, got.SettledValue.Equal(got.Amount))
	})

	t.Run("Voided", func(t *testing.T) {
		got, err := invoice.Replay([]invoice.Event{
			issuedEvent(),
			{Seq: 2, InvoiceID: 7, Kind: invoice.EventVoided, Actor: alice, OccurredAt: later},
		})

		require.NoError(t, err)
		assert.Equal(t, invoice.StatusVoid, got.Status)
		assert.Nil(t, got.SettledAt)
	})

	invalid := []struct {
		name   string
		events []invoice.Event
	}{
		{name: "Empty"},
		{
			name:   "DoesNotStartWithIssued",
			events: []invoice.Event{{InvoiceID: 7, Kind: invoice.EventVoided, Actor: alice}},
		},
		{
			name: "EventAfterSettlement",
			events: []invoice.Event{
				issuedEvent(),
				{InvoiceID: 7, Kind: invoice.EventSettled, Actor: bob, Amount: new(decimal.NewFromInt(100))},
				{InvoiceID: 7, Kind: invoice.EventVoided, Actor: alice},
			},
		},
		{
			name: "SettledTwice",
			events: []invoice.Event{
				issuedEvent(),
				{InvoiceID: 7, Kind: invoice.EventSettled, Actor: bob, Amount: new(decimal.NewFromInt(100))},
				{InvoiceID: 7, Kind: invoice.EventSettled, Actor: bob, Amount: new(decimal.NewFromInt(100))},
			},
		},
		{
			name: "SettledByIssuer",
			events: []invoice.Event{
				issuedEvent(),
				{InvoiceID: 7, Kind: invoice.EventSettled, Actor: alice, Amount: new(decimal.NewFromInt(100))},
			},
		},
		{
			name: "PartialSettlement",
			events: []invoice.Event{
				issuedEvent(),
				{InvoiceID: 7, Kind: invoice.EventSettled, Actor: bob, Amount: new(decimal.NewFromInt(50))},
			},
		},
		{
			name: "VoidedByCounterparty",
			events: []invoice.Event{
				issuedEvent(),
				{InvoiceID: 7, Kind: invoice.EventVoided, Actor: bob},
			},
		},
		{
			name: "ForeignInvoice",
			events: []invoice.Event{
				issuedEvent(),
				{InvoiceID: 8, Kind: invoice.EventVoided, Actor: alice},
			},
		},
		{
			name: "SecondIssued",
			events: []invoice.Event{
				issuedEvent(),
				issuedEvent(),
			},
		},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoice.Replay(tt.events)
			assert.ErrorIs(t, err, invoice.ErrInvalidHistory)
		})
	}
}
