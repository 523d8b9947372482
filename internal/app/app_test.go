package app_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/blockbill/internal/app"
	"github.com/MrJamesThe3rd/blockbill/internal/config"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

const (
	issuer       = invoice.Address("0x1111111111111111111111111111111111111111")
	counterparty = invoice.Address("0x2222222222222222222222222222222222222222")
)

func testConfig(t *testing.T, storeDriver, archiveDriver string) *config.Config {
	t.Helper()

	var cfg config.Config
	cfg.Store.Driver = storeDriver
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "blockbill.db")
	cfg.Archive.Driver = archiveDriver
	cfg.Archive.Dir = filepath.Join(t.TempDir(), "archive")
	cfg.Archive.Workers = 1
	cfg.Archive.Queue = 8

	return &cfg
}

func TestNew_ArchivesSettledInvoices(t *testing.T) {
	tests := []struct {
		name    string
		store   string
		archive string
	}{
		{name: "memory store, memory archive", store: "memory", archive: "memory"},
		{name: "sqlite store, fs archive", store: "sqlite", archive: "fs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			a, err := app.New(ctx, testConfig(t, tt.store, tt.archive), logger)
			require.NoError(t, err)
			a.Start(ctx)

			inv, err := a.Invoices.Issue(ctx, issuer, invoice.IssueParams{
				Issuer:       string(issuer),
				Counterparty: string(counterparty),
				Amount:       decimal.NewFromInt(42),
			})
			require.NoError(t, err)

			_, err = a.Invoices.Settle(ctx, inv.ID, counterparty, decimal.NewFromInt(42))
			require.NoError(t, err)

			// Close drains the archive queue.
			require.NoError(t, a.Close())

			events, err := a.Archiver.Load(ctx, inv.ID)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, invoice.EventSettled, events[1].Kind)
		})
	}
}

func TestNew_WithoutArchive(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(t, "memory", "none"), slog.Default())
	require.NoError(t, err)
	assert.Nil(t, a.Archiver)
	assert.NoError(t, a.Close())
}

func TestOpenRepository_UnknownDriver(t *testing.T) {
	_, _, err := app.OpenRepository(context.Background(), testConfig(t, "mongo", "none"))
	require.Error(t, err)
}

func TestOpenBlobStore_UnknownDriver(t *testing.T) {
	_, err := app.OpenBlobStore(context.Background(), testConfig(t, "memory", "tape"))
	require.Error(t, err)
}
