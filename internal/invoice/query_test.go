package invoice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

func TestQuery_ListByIssuer(t *testing.T) {
	type testCase struct {
		name      string
		issuer    string
		filter    invoice.ListFilter
		setupMock func(m *invoice.MockReader)
		wantLen   int
		wantErr   error
	}

	tests := []testCase{
		{
			name:   "NormalizesAddressAndFilter",
			issuer: "0x1111111111111111111111111111111111111111",
			filter: invoice.ListFilter{Limit: 10_000, Offset: -3},
			setupMock: func(m *invoice.MockReader) {
				m.EXPECT().
					ListByIssuer(gomock.Any(), alice, invoice.ListFilter{Limit: invoice.MaxListLimit}).
					Return([]*invoice.Invoice{{ID: 1}, {ID: 2}}, nil)
			},
			wantLen: 2,
		},
		{
			name:   "DefaultLimit",
			issuer: "0x1111111111111111111111111111111111111111",
			setupMock: func(m *invoice.MockReader) {
				m.EXPECT().
					ListByIssuer(gomock.Any(), alice, invoice.ListFilter{Limit: invoice.DefaultListLimit}).
					Return(nil, nil)
			},
		},
		{
			name:    "InvalidAddress",
			issuer:  "merchant",
			wantErr: invoice.ErrInvalidParty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			reader := invoice.NewMockReader(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(reader)
			}

			got, err := invoice.NewQuery(reader).ListByIssuer(context.Background(), tt.issuer, tt.filter)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestQuery_ListByCounterparty(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := invoice.NewMockReader(ctrl)

	status := invoice.StatusOpen
	reader.EXPECT().
		ListByCounterparty(gomock.Any(), bob, invoice.ListFilter{Status: &status, Limit: 5, Offset: 5}).
		Return([]*invoice.Invoice{{ID: 3}}, nil)

	got, err := invoice.NewQuery(reader).ListByCounterparty(context.Background(),
		"0x2222222222222222222222222222222222222222",
		invoice.ListFilter{Status: &status, Limit: 5, Offset: 5})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)
}

func TestQuery_ListByStatus(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reader := invoice.NewMockReader(ctrl)

		other := invoice.StatusVoid
		reader.EXPECT().
			ListByStatus(gomock.Any(), invoice.StatusSettled, invoice.ListFilter{Limit: invoice.DefaultListLimit}).
			Return(nil, nil)

		_, err := invoice.NewQuery(reader).ListByStatus(context.Background(), invoice.StatusSettled, invoice.ListFilter{Status: &other})
		require.NoError(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		reader := invoice.NewMockReader(gomock.NewController(t))

		_, err := invoice.NewQuery(reader).ListByStatus(context.Background(), invoice.Status("paid"), invoice.ListFilter{})
		require.ErrorIs(t, err, invoice.ErrInvalidStatus)
	})
}

func TestQuery_GetPassesThroughNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := invoice.NewMockReader(ctrl)
	reader.EXPECT().Get(gomock.Any(), int64(42)).Return(nil, invoice.ErrNotFound)

	_, err := invoice.NewQuery(reader).Get(context.Background(), 42)
	require.ErrorIs(t, err, invoice.ErrNotFound)
}
