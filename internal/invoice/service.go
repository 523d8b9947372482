package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=invoice
type Reader interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	ListByIssuer(ctx context.Context, issuer Address, filter ListFilter) ([]*Invoice, error)
	ListByCounterparty(ctx context.Context, counterparty Address, filter ListFilter) ([]*Invoice, error)
	ListByStatus(ctx context.Context, status Status, filter ListFilter) ([]*Invoice, error)
	History(ctx context.Context, id int64) ([]Event, error)
}

type Repository interface {
	Reader

	// Create allocates ids and persists every issuance with its Issued event, all or nothing.
	Create(ctx context.Context, batch []Issuance) error

	// Begin opens a unit of work scoped to one invoice. The per-invoice lock is
	// taken by Transition.Load and held until Commit or Rollback.
	Begin(ctx context.Context, id int64) (Transition, error)
}

type Transition interface {
	Load(ctx context.Context) (*Invoice, error)
	Apply(ctx context.Context, inv *Invoice, ev *Event) error
	Commit() error
	Rollback() error
}

type Service struct {
	repo      Repository
	clock     Clock
	logger    *slog.Logger
	observers []Observer
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithObservers(obs ...Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, obs...) }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		clock:  systemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

type IssueParams struct {
	Issuer       string
	Counterparty string
	Amount       decimal.Decimal
	ContentRef   string
}

// Issue mints a new Open invoice on behalf of caller, who must be the declared issuer.
func (s *Service) Issue(ctx context.Context, caller Address, params IssueParams) (*Invoice, error) {
	invs, err := s.IssueBatch(ctx, caller, []IssueParams{params})
	if err != nil {
		return nil, err
	}

	return invs[0], nil
}

// IssueBatch validates every entry before persisting any, then creates them in one
// atomic write. Ids are allocated in input order.
func (s *Service) IssueBatch(ctx context.Context, caller Address, params []IssueParams) ([]*Invoice, error) {
	if len(params) == 0 {
		return nil, nil
	}

	now := s.clock.Now()
	batch := make([]Issuance, 0, len(params))

	for i, p := range params {
		inv, err := newInvoice(p, now)
		if err == nil {
			err = Authorize(OpIssue, caller, inv)
		}

		if err != nil {
			s.reject(OpIssue, err)

			if len(params) > 1 {
				return nil, fmt.Errorf("entry %d: %w", i+1, err)
			}

			return nil, err
		}

		batch = append(batch, Issuance{
			Invoice: inv,
			Event: &Event{
				ID:           uuid.New(),
				Kind:         EventIssued,
				Actor:        caller,
				Amount:       new(inv.Amount),
				ContentRef:   inv.ContentRef,
				Counterparty: inv.Counterparty,
				OccurredAt:   now,
			},
		})
	}

	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("creating invoices: %w", err)
	}

	invs := make([]*Invoice, len(batch))
	for i, b := range batch {
		invs[i] = b.Invoice
		s.committed(ctx, b.Invoice, *b.Event)
	}

	return invs, nil
}

func newInvoice(p IssueParams, now time.Time) (*Invoice, error) {
	if !p.Amount.IsPositive() || !p.Amount.IsInteger() {
		return nil, ErrInvalidAmount
	}

	issuer, err := ParseAddress(p.Issuer)
	if err != nil {
		return nil, err
	}

	counterparty, err := ParseAddress(p.Counterparty)
	if err != nil {
		return nil, err
	}

	if issuer == counterparty {
		return nil, ErrInvalidParty
	}

	return &Invoice{
		Issuer:       issuer,
		Counterparty: counterparty,
		Amount:       p.Amount,
		ContentRef:   p.ContentRef,
		Status:       StatusOpen,
		CreatedAt:    now,
	}, nil
}

// Settle discharges an Open invoice. Only the counterparty may settle and the
// supplied value must equal the invoiced amount exactly.
func (s *Service) Settle(ctx context.Context, id int64, caller Address, value decimal.Decimal) (*Invoice, error) {
	return s.transition(ctx, id, OpSettle, func(inv *Invoice, now time.Time) (*Event, error) {
		switch inv.Status {
		case StatusSettled:
			return nil, ErrAlreadySettled
		case StatusVoid:
			return nil, ErrInvoiceVoided
		}

		if err := Authorize(OpSettle, caller, inv); err != nil {
			return nil, err
		}

		if !value.Equal(inv.Amount) {
			return nil, ErrWrongAmount
		}

		inv.Status = StatusSettled
		inv.SettledValue = value
		inv.SettledAt = new(now)
		inv.UpdatedAt = new(now)

		return &Event{Kind: EventSettled, Actor: caller, Amount: new(value), Beneficiary: inv.Issuer}, nil
	})
}

// Void cancels an Open invoice on behalf of its issuer.
func (s *Service) Void(ctx context.Context, id int64, caller Address) (*Invoice, error) {
	return s.transition(ctx, id, OpVoid, func(inv *Invoice, now time.Time) (*Event, error) {
		if inv.Status.Terminal() {
			return nil, ErrAlreadyFinalized
		}

		if err := Authorize(OpVoid, caller, inv); err != nil {
			return nil, err
		}

		inv.Status = StatusVoid
		inv.UpdatedAt = new(now)

		return &Event{Kind: EventVoided, Actor: caller}, nil
	})
}

// UpdateMetadata replaces the content reference of an Open invoice.
func (s *Service) UpdateMetadata(ctx context.Context, id int64, caller Address, contentRef string) (*Invoice, error) {
	return s.transition(ctx, id, OpUpdateMetadata, func(inv *Invoice, now time.Time) (*Event, error) {
		if inv.Status.Terminal() {
			return nil, ErrAlreadyFinalized
		}

		if err := Authorize(OpUpdateMetadata, caller, inv); err != nil {
			return nil, err
		}

		inv.ContentRef = contentRef
		inv.UpdatedAt = new(now)

		return &Event{Kind: EventMetadataUpdated, Actor: caller, ContentRef: contentRef}, nil
	})
}

// IsSettled reports whether the invoice has been discharged.
func (s *Service) IsSettled(ctx context.Context, id int64) (bool, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}

	return inv.Status == StatusSettled, nil
}

type mutation func(inv *Invoice, now time.Time) (*Event, error)

func (s *Service) transition(ctx context.Context, id int64, op Operation, mutate mutation) (*Invoice, error) {
	tx, err := s.repo.Begin(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("begin %s: %w", op, err)
	}
	defer tx.Rollback()

	inv, err := tx.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.reject(op, err)
			return nil, err
		}

		return nil, fmt.Errorf("load invoice %d: %w", id, err)
	}

	now := s.clock.Now()

	ev, err := mutate(inv, now)
	if err != nil {
		s.reject(op, err)
		return nil, err
	}

	ev.ID = uuid.New()
	ev.InvoiceID = inv.ID
	ev.OccurredAt = now

	if err := tx.Apply(ctx, inv, ev); err != nil {
		return nil, fmt.Errorf("apply %s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", op, err)
	}

	s.committed(ctx, inv, *ev)

	return inv, nil
}

func (s *Service) committed(ctx context.Context, inv *Invoice, ev Event) {
	s.logger.Info("invoice transition committed",
		"invoice_id", inv.ID,
		"kind", ev.Kind,
		"actor", ev.Actor,
		"status", inv.Status,
	)

	for _, o := range s.observers {
		o.Committed(ctx, inv.Clone(), ev)
	}
}

func (s *Service) reject(op Operation, err error) {
	s.logger.Debug("invoice operation rejected", "operation", op, "reason", Code(err))

	for _, o := range s.observers {
		o.Rejected(op, err)
	}
}
