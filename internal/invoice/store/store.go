package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

var _ invoice.Repository = (*Store)(nil)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Expected column order: id, issuer, counterparty, amount, content_ref, status,
// settled_value, created_at, settled_at, updated_at
const selectInvoiceColumns = `
	id, issuer, counterparty, amount, content_ref, status,
	settled_value, created_at, settled_at, updated_at
`

func scanInvoice(s scanner) (*invoice.Invoice, error) {
	var inv invoice.Invoice

	var issuer, counterparty, status string

	var settled decimal.NullDecimal

	if err := s.Scan(
		&inv.ID, &issuer, &counterparty, &inv.Amount, &inv.ContentRef, &status,
		&settled, &inv.CreatedAt, &inv.SettledAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}

	inv.Issuer = invoice.Address(issuer)
	inv.Counterparty = invoice.Address(counterparty)
	inv.Status = invoice.Status(status)

	if settled.Valid {
		inv.SettledValue = settled.Decimal
	}

	return &inv, nil
}

const selectEventColumns = `
	seq, id, invoice_id, kind, actor, amount, content_ref, counterparty, beneficiary, occurred_at
`

func scanEvent(s scanner) (invoice.Event, error) {
	var ev invoice.Event

	var kind, actor, counterparty, beneficiary string

	var amount decimal.NullDecimal

	if err := s.Scan(
		&ev.Seq, &ev.ID, &ev.InvoiceID, &kind, &actor, &amount,
		&ev.ContentRef, &counterparty, &beneficiary, &ev.OccurredAt,
	); err != nil {
		return ev, err
	}

	ev.Kind = invoice.EventKind(kind)
	ev.Actor = invoice.Address(actor)
	ev.Counterparty = invoice.Address(counterparty)
	ev.Beneficiary = invoice.Address(beneficiary)

	if amount.Valid {
		ev.Amount = new(amount.Decimal)
	}

	return ev, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*invoice.Invoice, error) {
	query := `SELECT ` + selectInvoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(s.db.QueryRowContext(ctx, s.dialect.rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	return inv, nil
}

func (s *Store) ListByIssuer(ctx context.Context, issuer invoice.Address, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	return s.list(ctx, "issuer", string(issuer), filter)
}

func (s *Store) ListByCounterparty(ctx context.Context, counterparty invoice.Address, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	return s.list(ctx, "counterparty", string(counterparty), filter)
}

func (s *Store) ListByStatus(ctx context.Context, status invoice.Status, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	filter.Status = nil

	return s.list(ctx, "status", string(status), filter)
}

// list selects by one indexed column. column is always a constant from this file.
func (s *Store) list(ctx context.Context, column, value string, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	filter = filter.Normalize()

	query := `SELECT ` + selectInvoiceColumns + ` FROM invoices WHERE ` + column + ` = $1`
	args := []any{value}

	argIdx := 2

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, string(*filter.Status))
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing invoices by %s: %w", column, err)
	}
	defer rows.Close()

	invs := []*invoice.Invoice{}

	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}

		invs = append(invs, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invoice rows: %w", err)
	}

	return invs, nil
}

func (s *Store) History(ctx context.Context, id int64) ([]invoice.Event, error) {
	query := `SELECT ` + selectEventColumns + ` FROM invoice_events WHERE invoice_id = $1 ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []invoice.Event

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	if len(events) == 0 {
		return nil, invoice.ErrNotFound
	}

	return events, nil
}

// Create inserts every invoice and its Issued event in one database transaction.
func (s *Store) Create(ctx context.Context, batch []invoice.Issuance) error {
	if len(batch) == 0 {
		return nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := s.dialect.rebind(`
		INSERT INTO invoices (issuer, counterparty, amount, content_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`)

	for _, b := range batch {
		inv := b.Invoice

		err := dbTx.QueryRowContext(ctx, query,
			string(inv.Issuer),
			string(inv.Counterparty),
			inv.Amount,
			inv.ContentRef,
			string(inv.Status),
			inv.CreatedAt,
		).Scan(&inv.ID)
		if err != nil {
			return fmt.Errorf("creating invoice: %w", err)
		}

		b.Event.InvoiceID = inv.ID

		if err := s.appendEvent(ctx, dbTx, b.Event); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) appendEvent(ctx context.Context, q queryer, ev *invoice.Event) error {
	query := s.dialect.rebind(`
		INSERT INTO invoice_events (id, invoice_id, kind, actor, amount, content_ref, counterparty, beneficiary, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq
	`)

	var amount decimal.NullDecimal
	if ev.Amount != nil {
		amount = decimal.NewNullDecimal(*ev.Amount)
	}

	err := q.QueryRowContext(ctx, query,
		ev.ID.String(),
		ev.InvoiceID,
		string(ev.Kind),
		string(ev.Actor),
		amount,
		ev.ContentRef,
		string(ev.Counterparty),
		string(ev.Beneficiary),
		ev.OccurredAt,
	).Scan(&ev.Seq)
	if err != nil {
		return fmt.Errorf("appending %s event: %w", ev.Kind, err)
	}

	return nil
}

type transition struct {
	store *Store
	tx    *sql.Tx
	id    int64
}

// Begin opens a database transaction for one invoice. The row lock is taken by Load.
func (s *Store) Begin(ctx context.Context, id int64) (invoice.Transition, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transition tx: %w", err)
	}

	return &transition{store: s, tx: dbTx, id: id}, nil
}

func (t *transition) Load(ctx context.Context) (*invoice.Invoice, error) {
	query := `SELECT ` + selectInvoiceColumns + ` FROM invoices WHERE id = $1` + t.store.dialect.lockClause()

	inv, err := scanInvoice(t.tx.QueryRowContext(ctx, t.store.dialect.rebind(query), t.id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("locking invoice: %w", err)
	}

	return inv, nil
}

func (t *transition) Apply(ctx context.Context, inv *invoice.Invoice, ev *invoice.Event) error {
	query := t.store.dialect.rebind(`
		UPDATE invoices
		SET content_ref = $1, status = $2, settled_value = $3, settled_at = $4, updated_at = $5
		WHERE id = $6
	`)

	var settled decimal.NullDecimal
	if inv.Status == invoice.StatusSettled {
		settled = decimal.NewNullDecimal(inv.SettledValue)
	}

	res, err := t.tx.ExecContext(ctx, query,
		inv.ContentRef,
		string(inv.Status),
		settled,
		nullTime(inv.SettledAt),
		nullTime(inv.UpdatedAt),
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating invoice: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return invoice.ErrNotFound
	}

	return t.store.appendEvent(ctx, t.tx, ev)
}

func (t *transition) Commit() error { return t.tx.Commit() }

// Rollback is a no-op once the transaction has been committed.
func (t *transition) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}
