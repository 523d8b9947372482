package invoice_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

const (
	alice = invoice.Address("0x1111111111111111111111111111111111111111")
	bob   = invoice.Address("0x2222222222222222222222222222222222222222")
	carol = invoice.Address("0x3333333333333333333333333333333333333333")
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return fixedNow }

type recordingObserver struct {
	committed []invoice.Event
	rejected  []error
}

func (r *recordingObserver) Committed(_ context.Context, _ *invoice.Invoice, ev invoice.Event) {
	r.committed = append(r.committed, ev)
}

func (r *recordingObserver) Rejected(_ invoice.Operation, err error) {
	r.rejected = append(r.rejected, err)
}

func openInvoice() *invoice.Invoice {
	return &invoice.Invoice{
		ID:           1,
		Issuer:       alice,
		Counterparty: bob,
		Amount:       decimal.NewFromInt(100),
		ContentRef:   "ipfs://a",
		Status:       invoice.StatusOpen,
		CreatedAt:    fixedNow.Add(-time.Hour),
	}
}

func TestService_Issue(t *testing.T) {
	type args struct {
		caller invoice.Address
		params invoice.IssueParams
	}

	type testCase struct {
		name      string
		args      args
		setupMock func(m *invoice.MockRepository)
		wantErr   error
	}

	valid := invoice.IssueParams{
		Issuer:       string(alice),
		Counterparty: string(bob),
		Amount:       decimal.NewFromInt(100),
		ContentRef:   "ipfs://a",
	}

	tests := []testCase{
		{
			name: "Success",
			args: args{caller: alice, params: valid},
			setupMock: func(m *invoice.MockRepository) {
				m.EXPECT().
					Create(gomock.Any(), gomock.Len(1)).
					DoAndReturn(func(_ context.Context, batch []invoice.Issuance) error {
						batch[0].Invoice.ID = 1
						batch[0].Event.InvoiceID = 1
						batch[0].Event.Seq = 1
						return nil
					})
			},
		},
		{
			name: "ZeroAmount",
			args: args{caller: alice, params: invoice.IssueParams{
				Issuer:       string(alice),
				Counterparty: string(bob),
				Amount:       decimal.Zero,
			}},
			wantErr: invoice.ErrInvalidAmount,
		},
		{
			name: "FractionalAmount",
			args: args{caller: alice, params: invoice.IssueParams{
				Issuer:       string(alice),
				Counterparty: string(bob),
				Amount:       decimal.RequireFromString("1.5"),
			}},
			wantErr: invoice.ErrInvalidAmount,
		},
		{
			name: "EmptyCounterparty",
			args: args{caller: alice, params: invoice.IssueParams{
				Issuer: string(alice),
				Amount: decimal.NewFromInt(100),
			}},
			wantErr: invoice.ErrInvalidParty,
		},
		{
			name: "SelfInvoice",
			args: args{caller: alice, params: invoice.IssueParams{
				Issuer:       string(alice),
				Counterparty: "0x1111111111111111111111111111111111111111",
				Amount:       decimal.NewFromInt(100),
			}},
			wantErr: invoice.ErrInvalidParty,
		},
		{
			name:    "CallerIsNotIssuer",
			args:    args{caller: carol, params: valid},
			wantErr: invoice.ErrNotIssuer,
		},
		{
			name: "RepoError",
			args: args{caller: alice, params: valid},
			setupMock: func(m *invoice.MockRepository) {
				m.EXPECT().
					Create(gomock.Any(), gomock.Any()).
					Return(errors.New("db error"))
			},
			wantErr: errors.New("db error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := invoice.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			obs := &recordingObserver{}
			svc := invoice.NewService(repo, invoice.WithClock(fixedClock{}), invoice.WithObservers(obs))
			got, err := svc.Issue(context.Background(), tt.args.caller, tt.args.params)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, got)
				assert.Empty(t, obs.committed)

				if errors.Is(err, tt.wantErr) {
					assert.Len(t, obs.rejected, 1)
				} else {
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}

				return
			}

			require.NoError(t, err)
			assert.Equal(t, int64(1), got.ID)
			assert.Equal(t, invoice.StatusOpen, got.Status)
			assert.Equal(t, alice, got.Issuer)
			assert.Equal(t, bob, got.Counterparty)
			assert.Equal(t, fixedNow, got.CreatedAt)

			require.Len(t, obs.committed, 1)
			ev := obs.committed[0]
			assert.Equal(t, invoice.EventIssued, ev.Kind)
			assert.Equal(t, bob, ev.Counterparty)
			assert.True(t, ev.Amount.Equal(decimal.NewFromInt(100)))
		})
	}
}

func TestService_IssueNormalizesAddresses(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := invoice.NewMockRepository(ctrl)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	svc := invoice.NewService(repo)
	got, err := svc.Issue(context.Background(), alice, invoice.IssueParams{
		Issuer:       "  0x1111111111111111111111111111111111111111 ",
		Counterparty: "0xABCDEFabcdef0000000000000000000000000000",
		Amount:       decimal.NewFromInt(5),
	})

	require.NoError(t, err)
	assert.Equal(t, invoice.Address("0xabcdefabcdef0000000000000000000000000000"), got.Counterparty)
}

func TestService_IssueBatch(t *testing.T) {
	t.Run("RejectsWholeBatchOnInvalidEntry", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := invoice.NewMockRepository(ctrl)

		svc := invoice.NewService(repo)
		_, err := svc.IssueBatch(context.Background(), alice, []invoice.IssueParams{
			{Issuer: string(alice), Counterparty: string(bob), Amount: decimal.NewFromInt(1)},
			{Issuer: string(alice), Counterparty: string(bob), Amount: decimal.NewFromInt(-1)},
		})

		require.ErrorIs(t, err, invoice.ErrInvalidAmount)
		assert.Contains(t, err.Error(), "entry 2")
	})

	t.Run("PersistsInOrder", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := invoice.NewMockRepository(ctrl)
		repo.EXPECT().
			Create(gomock.Any(), gomock.Len(2)).
			DoAndReturn(func(_ context.Context, batch []invoice.Issuance) error {
				for i := range batch {
					batch[i].Invoice.ID = int64(i + 1)
				}
				return nil
			})

		svc := invoice.NewService(repo)
		got, err := svc.IssueBatch(context.Background(), alice, []invoice.IssueParams{
			{Issuer: string(alice), Counterparty: string(bob), Amount: decimal.NewFromInt(1)},
			{Issuer: string(alice), Counterparty: string(carol), Amount: decimal.NewFromInt(2)},
		})

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(1), got[0].ID)
		assert.Equal(t, carol, got[1].Counterparty)
	})

	t.Run("Empty", func(t *testing.T) {
		svc := invoice.NewService(invoice.NewMockRepository(gomock.NewController(t)))
		got, err := svc.IssueBatch(context.Background(), alice, nil)

		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestService_Settle(t *testing.T) {
	type args struct {
		caller invoice.Address
		value  decimal.Decimal
	}

	type testCase struct {
		name    string
		args    args
		stored  func() *invoice.Invoice
		loadErr error
		wantErr error
	}

	settled := func() *invoice.Invoice {
		inv := openInvoice()
		inv.Status = invoice.StatusSettled
		return inv
	}

	voided := func() *invoice.Invoice {
		inv := openInvoice()
		inv.Status = invoice.StatusVoid
		return inv
	}

	tests := []testCase{
		{
			name:   "Success",
			args:   args{caller: bob, value: decimal.NewFromInt(100)},
			stored: openInvoice,
		},
		{
			name:    "WrongAmount",
			args:    args{caller: bob, value: decimal.NewFromInt(99)},
			stored:  openInvoice,
			wantErr: invoice.ErrWrongAmount,
		},
		{
			name:    "Overpayment",
			args:    args{caller: bob, value: decimal.NewFromInt(101)},
			stored:  openInvoice,
			wantErr: invoice.ErrWrongAmount,
		},
		{
			name:    "IssuerCannotSettle",
			args:    args{caller: alice, value: decimal.NewFromInt(100)},
			stored:  openInvoice,
			wantErr: invoice.ErrNotCounterparty,
		},
		{
			name:    "Stranger",
			args:    args{caller: carol, value: decimal.NewFromInt(100)},
			stored:  openInvoice,
			wantErr: invoice.ErrNotCounterparty,
		},
		{
			name:    "AlreadySettled",
			args:    args{caller: bob, value: decimal.NewFromInt(100)},
			stored:  settled,
			wantErr: invoice.ErrAlreadySettled,
		},
		{
			name:    "AlreadySettledWinsOverAuthorization",
			args:    args{caller: carol, value: decimal.NewFromInt(1)},
			stored:  settled,
			wantErr: invoice.ErrAlreadySettled,
		},
		{
			name:    "Voided",
			args:    args{caller: bob, value: decimal.NewFromInt(100)},
			stored:  voided,
			wantErr: invoice.ErrInvoiceVoided,
		},
		{
			name:    "NotFound",
			args:    args{caller: bob, value: decimal.NewFromInt(100)},
			loadErr: invoice.ErrNotFound,
			wantErr: invoice.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := invoice.NewMockRepository(ctrl)
			tx := invoice.NewMockTransition(ctrl)

			repo.EXPECT().Begin(gomock.Any(), int64(1)).Return(tx, nil)
			tx.EXPECT().Rollback().Return(nil).AnyTimes()

			if tt.loadErr != nil {
				tx.EXPECT().Load(gomock.Any()).Return(nil, tt.loadErr)
			} else {
				tx.EXPECT().Load(gomock.Any()).Return(tt.stored(), nil)
			}

			if tt.wantErr == nil {
				tx.EXPECT().
					Apply(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, inv *invoice.Invoice, ev *invoice.Event) error {
						assert.Equal(t, invoice.EventSettled, ev.Kind)
						assert.Equal(t, int64(1), ev.InvoiceID)
						assert.Equal(t, alice, ev.Beneficiary)
						assert.Equal(t, invoice.StatusSettled, inv.Status)
						return nil
					})
				tx.EXPECT().Commit().Return(nil)
			}

			obs := &recordingObserver{}
			svc := invoice.NewService(repo, invoice.WithClock(fixedClock{}), invoice.WithObservers(obs))
			got, err := svc.Settle(context.Background(), 1, tt.args.caller, tt.args.value)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				assert.Len(t, obs.rejected, 1)
				assert.Empty(t, obs.committed)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, invoice.StatusSettled, got.Status)
			assert.True(t, got.SettledValue.Equal(decimal.NewFromInt(100)))
			require.NotNil(t, got.SettledAt)
			assert.Equal(t, fixedNow, *got.SettledAt)
			assert.Len(t, obs.committed, 1)
		})
	}
}

func TestService_SettleCommitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := invoice.NewMockRepository(ctrl)
	tx := invoice.NewMockTransition(ctrl)

	repo.EXPECT().Begin(gomock.Any(), int64(1)).Return(tx, nil)
	tx.EXPECT().Load(gomock.Any()).Return(openInvoice(), nil)
	tx.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	tx.EXPECT().Commit().Return(errors.New("disk full"))
	tx.EXPECT().Rollback().Return(nil)

	obs := &recordingObserver{}
	svc := invoice.NewService(repo, invoice.WithObservers(obs))
	_, err := svc.Settle(context.Background(), 1, bob, decimal.NewFromInt(100))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, obs.committed)
}

func TestService_Void(t *testing.T) {
	type testCase struct {
		name    string
		caller  invoice.Address
		status  invoice.Status
		wantErr error
	}

	tests := []testCase{
		{name: "Success", caller: alice, status: invoice.StatusOpen},
		{name: "CounterpartyCannotVoid", caller: bob, status: invoice.StatusOpen, wantErr: invoice.ErrNotIssuer},
		{name: "Settled", caller: alice, status: invoice.StatusSettled, wantErr: invoice.ErrAlreadyFinalized},
		{name: "AlreadyVoid", caller: alice, status: invoice.StatusVoid, wantErr: invoice.ErrAlreadyFinalized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := invoice.NewMockRepository(ctrl)
			tx := invoice.NewMockTransition(ctrl)

			stored := openInvoice()
			stored.Status = tt.status

			repo.EXPECT().Begin(gomock.Any(), int64(1)).Return(tx, nil)
			tx.EXPECT().Load(gomock.Any()).Return(stored, nil)
			tx.EXPECT().Rollback().Return(nil).AnyTimes()

			if tt.wantErr == nil {
				tx.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().Commit().Return(nil)
			}

			svc := invoice.NewService(repo, invoice.WithClock(fixedClock{}))
			got, err := svc.Void(context.Background(), 1, tt.caller)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, invoice.StatusVoid, got.Status)
			assert.Nil(t, got.SettledAt)
		})
	}
}

func TestService_UpdateMetadata(t *testing.T) {
	type testCase struct {
		name    string
		caller  invoice.Address
		status  invoice.Status
		wantErr error
	}

	tests := []testCase{
		{name: "Success", caller: alice, status: invoice.StatusOpen},
		{name: "CounterpartyCannotUpdate", caller: bob, status: invoice.StatusOpen, wantErr: invoice.ErrNotIssuer},
		{name: "Settled", caller: alice, status: invoice.StatusSettled, wantErr: invoice.ErrAlreadyFinalized},
		{name: "Void", caller: alice, status: invoice.StatusVoid, wantErr: invoice.ErrAlreadyFinalized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := invoice.NewMockRepository(ctrl)
			tx := invoice.NewMockTransition(ctrl)

			stored := openInvoice()
			stored.Status = tt.status

			repo.EXPECT().Begin(gomock.Any(), int64(1)).Return(tx, nil)
			tx.EXPECT().Load(gomock.Any()).Return(stored, nil)
			tx.EXPECT().Rollback().Return(nil).AnyTimes()

			if tt.wantErr == nil {
				tx.EXPECT().
					Apply(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *invoice.Invoice, ev *invoice.Event) error {
						assert.Equal(t, invoice.EventMetadataUpdated, ev.Kind)
						assert.Equal(t, "ipfs://b", ev.ContentRef)
						return nil
					})
				tx.EXPECT().Commit().Return(nil)
			}

			svc := invoice.NewService(repo, invoice.WithClock(fixedClock{}))
			got, err := svc.UpdateMetadata(context.Background(), 1, tt.caller, "ipfs://b")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "ipfs://b", got.ContentRef)
			assert.Equal(t, invoice.StatusOpen, got.Status)
			assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))
		})
	}
}

func TestService_IsSettled(t *testing.T) {
	type testCase struct {
		name      string
		setupMock func(m *invoice.MockRepository)
		want      bool
		wantErr   error
	}

	tests := []testCase{
		{
			name: "Open",
			setupMock: func(m *invoice.MockRepository) {
				m.EXPECT().Get(gomock.Any(), int64(1)).Return(openInvoice(), nil)
			},
			want: false,
		},
		{
			name: "Settled",
			setupMock: func(m *invoice.MockRepository) {
				inv := openInvoice()
				inv.Status = invoice.StatusSettled
				m.EXPECT().Get(gomock.Any(), int64(1)).Return(inv, nil)
			},
			want: true,
		},
		{
			name: "Unknown",
			setupMock: func(m *invoice.MockRepository) {
				m.EXPECT().Get(gomock.Any(), int64(1)).Return(nil, invoice.ErrNotFound)
			},
			wantErr: invoice.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := invoice.NewMockRepository(ctrl)
			tt.setupMock(repo)

			svc := invoice.NewService(repo)
			got, err := svc.IsSettled(context.Background(), 1)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
