package statement_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice/memstore"
	"github.com/MrJamesThe3rd/blockbill/internal/statement"
)

const (
	alice = invoice.Address("0x1111111111111111111111111111111111111111")
	bob   = invoice.Address("0x2222222222222222222222222222222222222222")
	carol = invoice.Address("0x3333333333333333333333333333333333333333")
)

// seed: alice issues #1 (bob, 100, settled), #2 (bob, 200, open), #4 (carol, 50, void);
// carol issues #3 (alice, 70, open) and #5 (alice, 30, settled).
func seed(t *testing.T) *memstore.Store {
	t.Helper()

	ctx := context.Background()
	store := memstore.New()
	svc := invoice.NewService(store)

	issue := func(from, to invoice.Address, amount int64) *invoice.Invoice {
		inv, err := svc.Issue(ctx, from, invoice.IssueParams{
			Issuer:       string(from),
			Counterparty: string(to),
			Amount:       decimal.NewFromInt(amount),
			ContentRef:   "ipfs://doc",
		})
		require.NoError(t, err)

		return inv
	}

	first := issue(alice, bob, 100)
	issue(alice, bob, 200)
	issue(carol, alice, 70)
	voided := issue(alice, carol, 50)
	paid := issue(carol, alice, 30)

	_, err := svc.Settle(ctx, first.ID, bob, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = svc.Void(ctx, voided.ID, alice)
	require.NoError(t, err)
	_, err = svc.Settle(ctx, paid.ID, alice, decimal.NewFromInt(30))
	require.NoError(t, err)

	return store
}

func TestService_Build(t *testing.T) {
	svc := statement.NewService(seed(t))

	st, err := svc.Build(context.Background(), "0x"+strings.ToUpper(string(alice[2:])), nil)
	require.NoError(t, err)

	ids := make([]int64, len(st.Lines))
	for i, l := range st.Lines {
		ids[i] = l.Invoice.ID
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
	assert.Equal(t, statement.RoleIssuer, st.Lines[0].Role)
	assert.Equal(t, statement.RoleCounterparty, st.Lines[2].Role)
	assert.Equal(t, carol, st.Lines[2].Other())

	assert.Equal(t, "200", st.Totals.Outstanding.String())
	assert.Equal(t, "100", st.Totals.Received.String())
	assert.Equal(t, "70", st.Totals.Payable.String())
	assert.Equal(t, "30", st.Totals.Paid.String())
}

func TestService_BuildStatusFilter(t *testing.T) {
	svc := statement.NewService(seed(t))
	open := invoice.StatusOpen

	st, err := svc.Build(context.Background(), string(alice), &open)
	require.NoError(t, err)
	require.Len(t, st.Lines, 2)
	assert.Equal(t, int64(2), st.Lines[0].Invoice.ID)
	assert.Equal(t, int64(3), st.Lines[1].Invoice.ID)

	// Totals still cover every invoice.
	assert.Equal(t, "100", st.Totals.Received.String())
}

func TestService_BuildErrors(t *testing.T) {
	bogus := invoice.Status("pending")

	tests := []struct {
		name      string
		party     string
		status    *invoice.Status
		setupMock func(m *invoice.MockReader)
		wantErr   error
	}{
		{
			name:      "invalid party",
			party:     "not-an-address",
			setupMock: func(m *invoice.MockReader) {},
			wantErr:   invoice.ErrInvalidParty,
		},
		{
			name:      "invalid status",
			party:     string(alice),
			status:    &bogus,
			setupMock: func(m *invoice.MockReader) {},
			wantErr:   invoice.ErrInvalidStatus,
		},
		{
			name:  "store failure",
			party: string(alice),
			setupMock: func(m *invoice.MockReader) {
				m.EXPECT().ListByIssuer(gomock.Any(), alice, gomock.Any()).Return(nil, assert.AnError)
			},
			wantErr: assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := invoice.NewMockReader(ctrl)
			tt.setupMock(m)

			_, err := statement.NewService(m).Build(context.Background(), tt.party, tt.status)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSummary(t *testing.T) {
	st, err := statement.NewService(seed(t)).Build(context.Background(), string(bob), nil)
	require.NoError(t, err)

	out := statement.Summary(st)
	assert.Contains(t, out, "Statement for "+string(bob))
	assert.Contains(t, out, "* #1 | ")
	assert.Contains(t, out, "| "+string(alice)+" | -100 | settled | ipfs://doc")
	assert.Contains(t, out, "Payable:     200")
	assert.Contains(t, out, "Paid:        100")
}

func TestWriteZip(t *testing.T) {
	st, err := statement.NewService(seed(t)).Build(context.Background(), string(bob), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, statement.WriteZip(&buf, st))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "summary.txt", zr.File[0].Name)
	assert.Equal(t, "invoices.csv", zr.File[1].Name)

	f, err := zr.File[1].Open()
	require.NoError(t, err)
	defer f.Close()

	raw, err := io.ReadAll(f)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, []string{"1", "counterparty", string(alice), string(bob), "100", "settled", "100"}, rows[1][:7])
	assert.Equal(t, "", rows[2][6], "open invoices have no settled value")

	assert.True(t, strings.HasPrefix(statement.Filename(st), "statement_"+string(bob)+"_"))
}
