// Package app wires the record store, archive and services shared by the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/blockbill/internal/audit"
	"github.com/MrJamesThe3rd/blockbill/internal/blob"
	"github.com/MrJamesThe3rd/blockbill/internal/blob/fs"
	"github.com/MrJamesThe3rd/blockbill/internal/blob/memory"
	"github.com/MrJamesThe3rd/blockbill/internal/blob/s3"
	"github.com/MrJamesThe3rd/blockbill/internal/config"
	"github.com/MrJamesThe3rd/blockbill/internal/database"
	"github.com/MrJamesThe3rd/blockbill/internal/importer"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice/memstore"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice/store"
	"github.com/MrJamesThe3rd/blockbill/internal/metrics"
	"github.com/MrJamesThe3rd/blockbill/internal/statement"
)

type App struct {
	Invoices   *invoice.Service
	Query      *invoice.Query
	Statements *statement.Service
	Importer   *importer.Service
	Verifier   *audit.Verifier
	Metrics    *metrics.Observer

	// Archiver is nil when ARCHIVE_DRIVER is none.
	Archiver *audit.Archiver

	db *sql.DB
}

// New opens the configured record store and archive and builds every service on them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	repo, db, err := OpenRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Query:      invoice.NewQuery(repo),
		Statements: statement.NewService(repo),
		Verifier:   audit.NewVerifier(repo),
		Metrics:    metrics.New(),
		db:         db,
	}

	observers := []invoice.Observer{a.Metrics}

	blobs, err := OpenBlobStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	if blobs != nil {
		a.Archiver = audit.NewArchiver(repo, blobs,
			audit.WithLogger(logger),
			audit.WithWorkers(cfg.Archive.Workers, cfg.Archive.Queue),
		)
		observers = append(observers, a.Archiver)
	}

	a.Invoices = invoice.NewService(repo,
		invoice.WithLogger(logger),
		invoice.WithObservers(observers...),
	)
	a.Importer = importer.NewService(a.Invoices)

	logger.Info("app initialized", "store", cfg.Store.Driver, "archive", cfg.Archive.Driver)

	return a, nil
}

// Start launches background workers. ctx bounds their writes.
func (a *App) Start(ctx context.Context) {
	if a.Archiver != nil {
		a.Archiver.Start(ctx)
	}
}

// Close drains the archive queue and closes the database.
func (a *App) Close() error {
	if a.Archiver != nil {
		a.Archiver.Close()
	}

	if a.db != nil {
		return a.db.Close()
	}

	return nil
}

// OpenRepository returns the record store selected by STORE_DRIVER, migrating SQL
// schemas. The *sql.DB is nil for the memory driver.
func OpenRepository(ctx context.Context, cfg *config.Config) (invoice.Repository, *sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Store.Driver {
	case "memory":
		return memstore.New(), nil, nil
	case "postgres":
		db, err = database.New(cfg.ConnectionString())
	case "sqlite":
		db, err = database.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if err != nil {
		return nil, nil, err
	}

	dialect, err := store.ParseDialect(cfg.Store.Driver)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	if err := store.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, nil, err
	}

	return store.New(db, dialect), db, nil
}

// OpenBlobStore returns the archive store selected by ARCHIVE_DRIVER, or nil for none.
func OpenBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch blob.Driver(cfg.Archive.Driver) {
	case "none", "":
		return nil, nil
	case blob.DriverMemory:
		return memory.New(), nil
	case blob.DriverFilesystem:
		s, err := fs.New(cfg.Archive.Dir)
		if err != nil {
			return nil, err
		}

		return s, nil
	case blob.DriverS3:
		s, err := s3.New(ctx, s3.Config{
			Region:          cfg.Archive.S3.Region,
			Bucket:          cfg.Archive.S3.Bucket,
			Endpoint:        cfg.Archive.S3.Endpoint,
			AccessKeyID:     cfg.Archive.S3.AccessKey,
			SecretAccessKey: cfg.Archive.S3.SecretKey,
			PathStyle:       cfg.Archive.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}

		return s, nil
	}

	return nil, fmt.Errorf("unknown archive driver %q", cfg.Archive.Driver)
}
