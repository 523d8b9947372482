package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice/memstore"
	"github.com/MrJamesThe3rd/blockbill/internal/metrics"
)

const (
	issuer       = invoice.Address("0x1111111111111111111111111111111111111111")
	counterparty = invoice.Address("0x2222222222222222222222222222222222222222")
)

func TestObserver_CountsLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := metrics.New()
	svc := invoice.NewService(memstore.New(), invoice.WithObservers(obs))

	inv, err := svc.Issue(ctx, issuer, invoice.IssueParams{
		Issuer:       string(issuer),
		Counterparty: string(counterparty),
		Amount:       decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	_, err = svc.Settle(ctx, inv.ID, counterparty, decimal.NewFromInt(9))
	require.ErrorIs(t, err, invoice.ErrWrongAmount)

	_, err = svc.Settle(ctx, inv.ID, counterparty, decimal.NewFromInt(10))
	require.NoError(t, err)

	_, err = svc.Void(ctx, inv.ID, issuer)
	require.ErrorIs(t, err, invoice.ErrAlreadyFinalized)

	_, err = svc.Settle(ctx, 404, counterparty, decimal.NewFromInt(10))
	require.ErrorIs(t, err, invoice.ErrNotFound)

	reg := obs.Registry()

	expected := `
# HELP blockbill_invoice_rejections_total Rejected invoice operations by operation and reason.
# TYPE blockbill_invoice_rejections_total counter
blockbill_invoice_rejections_total{operation="settle",reason="not_found"} 1
blockbill_invoice_rejections_total{operation="settle",reason="wrong_amount"} 1
blockbill_invoice_rejections_total{operation="void",reason="already_finalized"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "blockbill_invoice_rejections_total"))

	expected = `
# HELP blockbill_invoice_transitions_total Committed invoice lifecycle transitions by event kind.
# TYPE blockbill_invoice_transitions_total counter
blockbill_invoice_transitions_total{kind="issued"} 1
blockbill_invoice_transitions_total{kind="settled"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "blockbill_invoice_transitions_total"))
}

func TestObserver_Handler(t *testing.T) {
	obs := metrics.New()
	obs.Committed(context.Background(), &invoice.Invoice{}, invoice.Event{Kind: invoice.EventVoided})

	rec := httptest.NewRecorder()
	obs.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `blockbill_invoice_transitions_total{kind="voided"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
