package invoice

import (
	"context"
)

// Query serves read-only projections over committed records.
type Query struct {
	reader Reader
}

func NewQuery(reader Reader) *Query {
	return &Query{reader: reader}
}

func (q *Query) Get(ctx context.Context, id int64) (*Invoice, error) {
	return q.reader.Get(ctx, id)
}

// ListByIssuer returns every invoice the address issued, whatever its status.
func (q *Query) ListByIssuer(ctx context.Context, issuer string, filter ListFilter) ([]*Invoice, error) {
	addr, err := ParseAddress(issuer)
	if err != nil {
		return nil, err
	}

	return q.reader.ListByIssuer(ctx, addr, filter.Normalize())
}

// ListByCounterparty returns every invoice addressed to the counterparty.
func (q *Query) ListByCounterparty(ctx context.Context, counterparty string, filter ListFilter) ([]*Invoice, error) {
	addr, err := ParseAddress(counterparty)
	if err != nil {
		return nil, err
	}

	return q.reader.ListByCounterparty(ctx, addr, filter.Normalize())
}

func (q *Query) ListByStatus(ctx context.Context, status Status, filter ListFilter) ([]*Invoice, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	filter = filter.Normalize()
	filter.Status = nil

	return q.reader.ListByStatus(ctx, status, filter)
}

// History returns the invoice's events in append order.
func (q *Query) History(ctx context.Context, id int64) ([]Event, error) {
	return q.reader.History(ctx, id)
}
