package audit_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/blockbill/internal/audit"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

const (
	merchant = invoice.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	client   = invoice.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func settledHistory() []invoice.Event {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	return []invoice.Event{
		{
			Seq:          1,
			ID:           uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			InvoiceID:    7,
			Kind:         invoice.EventIssued,
			Actor:        merchant,
			Amount:       new(decimal.NewFromInt(500)),
			ContentRef:   "ipfs://a",
			Counterparty: client,
			OccurredAt:   issued,
		},
		{
			Seq:        2,
			ID:         uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			InvoiceID:  7,
			Kind:       invoice.EventMetadataUpdated,
			Actor:      merchant,
			ContentRef: "ipfs://b",
			OccurredAt: issued.Add(time.Hour),
		},
		{
			Seq:         4,
			ID:          uuid.MustParse("33333333-3333-3333-3333-333333333333"),
			InvoiceID:   7,
			Kind:        invoice.EventSettled,
			Actor:       client,
			Amount:      new(decimal.NewFromInt(500)),
			Beneficiary: merchant,
			OccurredAt:  time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC),
		},
	}
}

func TestEncode_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, audit.Encode(&buf, settledHistory()))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "settled_history", buf.Bytes())
}

func TestDecode_RoundTripReplays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, audit.Encode(&buf, settledHistory()))

	events, err := audit.Decode(&buf)
	require.NoError(t, err)
	require.Len(t, events, 3)

	inv, err := invoice.Replay(events)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSettled, inv.Status)
	assert.Equal(t, "ipfs://b", inv.ContentRef)
	assert.Equal(t, "500", inv.SettledValue.String())
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := audit.Decode(bytes.NewBufferString("{\"seq\":1}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
