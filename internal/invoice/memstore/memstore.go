// Package memstore keeps invoices in process memory. Each invoice carries its
// own lock; readers load immutable snapshots and never wait on a writer.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

var errNotLoaded = errors.New("transition used before Load")

type snapshot struct {
	inv    invoice.Invoice
	events []invoice.Event
}

type entry struct {
	lock  chan struct{}
	state atomic.Pointer[snapshot]
}

// index is an append-only id list. Appends are serialized by mu; reads load
// the published slice without locking.
type index struct {
	mu  sync.Mutex
	ids atomic.Pointer[[]int64]
}

func (ix *index) add(id int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var next []int64
	if cur := ix.ids.Load(); cur != nil {
		next = append(*cur, id)
	} else {
		next = []int64{id}
	}

	ix.ids.Store(&next)
}

func (ix *index) load() []int64 {
	cur := ix.ids.Load()
	if cur == nil {
		return nil
	}

	ids := slices.Clone(*cur)
	slices.Sort(ids)

	return ids
}

type Store struct {
	entries        sync.Map // int64 -> *entry
	issuers        sync.Map // invoice.Address -> *index
	counterparties sync.Map // invoice.Address -> *index

	lastID atomic.Int64
	seq    atomic.Int64
}

func New() *Store {
	return &Store{}
}

var _ invoice.Repository = (*Store)(nil)

func (s *Store) Create(_ context.Context, batch []invoice.Issuance) error {
	if len(batch) == 0 {
		return nil
	}

	n := int64(len(batch))
	first := s.lastID.Add(n) - n + 1

	for i, b := range batch {
		id := first + int64(i)

		b.Invoice.ID = id
		b.Event.InvoiceID = id
		b.Event.Seq = s.seq.Add(1)

		e := &entry{lock: make(chan struct{}, 1)}
		e.state.Store(&snapshot{
			inv:    *b.Invoice.Clone(),
			events: []invoice.Event{*b.Event},
		})

		s.entries.Store(id, e)
	}

	// Entries are visible before any index references them.
	for _, b := range batch {
		s.indexFor(&s.issuers, b.Invoice.Issuer).add(b.Invoice.ID)
		s.indexFor(&s.counterparties, b.Invoice.Counterparty).add(b.Invoice.ID)
	}

	return nil
}

func (s *Store) indexFor(m *sync.Map, addr invoice.Address) *index {
	if ix, ok := m.Load(addr); ok {
		return ix.(*index)
	}

	ix, _ := m.LoadOrStore(addr, &index{})

	return ix.(*index)
}

func (s *Store) entry(id int64) (*entry, error) {
	e, ok := s.entries.Load(id)
	if !ok {
		return nil, invoice.ErrNotFound
	}

	return e.(*entry), nil
}

func (s *Store) Get(_ context.Context, id int64) (*invoice.Invoice, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	snap := e.state.Load()

	return snap.inv.Clone(), nil
}

func (s *Store) History(_ context.Context, id int64) ([]invoice.Event, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	return slices.Clone(e.state.Load().events), nil
}

func (s *Store) ListByIssuer(_ context.Context, issuer invoice.Address, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	return s.listIndexed(&s.issuers, issuer, filter), nil
}

func (s *Store) ListByCounterparty(_ context.Context, counterparty invoice.Address, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	return s.listIndexed(&s.counterparties, counterparty, filter), nil
}

func (s *Store) listIndexed(m *sync.Map, addr invoice.Address, filter invoice.ListFilter) []*invoice.Invoice {
	ix, ok := m.Load(addr)
	if !ok {
		return []*invoice.Invoice{}
	}

	return s.page(ix.(*index).load(), filter)
}

func (s *Store) ListByStatus(_ context.Context, status invoice.Status, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	last := s.lastID.Load()
	ids := make([]int64, 0, last)

	for id := int64(1); id <= last; id++ {
		ids = append(ids, id)
	}

	filter.Status = &status

	return s.page(ids, filter), nil
}

// page resolves ids (ascending) to invoices, applying the status filter before
// the offset and limit window. Ids reserved by an in-flight Create are skipped.
func (s *Store) page(ids []int64, filter invoice.ListFilter) []*invoice.Invoice {
	filter = filter.Normalize()
	out := make([]*invoice.Invoice, 0, min(len(ids), filter.Limit))
	skipped := 0

	for _, id := range ids {
		e, err := s.entry(id)
		if err != nil {
			continue
		}

		snap := e.state.Load()
		if filter.Status != nil && snap.inv.Status != *filter.Status {
			continue
		}

		if skipped < filter.Offset {
			skipped++
			continue
		}

		out = append(out, snap.inv.Clone())
		if len(out) == filter.Limit {
			break
		}
	}

	return out
}

func (s *Store) Begin(_ context.Context, id int64) (invoice.Transition, error) {
	return &transition{store: s, id: id}, nil
}

type transition struct {
	store *Store
	id    int64
	entry *entry
	held  bool

	inv *invoice.Invoice
	ev  *invoice.Event
}

// Load acquires the invoice lock, waiting until it is free or ctx is done.
func (t *transition) Load(ctx context.Context) (*invoice.Invoice, error) {
	if t.held {
		return t.entry.state.Load().inv.Clone(), nil
	}

	e, err := t.store.entry(t.id)
	if err != nil {
		return nil, err
	}

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.entry = e
	t.held = true

	return e.state.Load().inv.Clone(), nil
}

func (t *transition) Apply(_ context.Context, inv *invoice.Invoice, ev *invoice.Event) error {
	if !t.held {
		return errNotLoaded
	}

	t.inv = inv
	t.ev = ev

	return nil
}

func (t *transition) Commit() error {
	if !t.held {
		return errNotLoaded
	}
	defer t.release()

	if t.ev == nil {
		return nil
	}

	t.ev.Seq = t.store.seq.Add(1)

	cur := t.entry.state.Load()
	t.entry.state.Store(&snapshot{
		inv:    *t.inv.Clone(),
		events: append(cur.events, *t.ev),
	})

	return nil
}

func (t *transition) Rollback() error {
	if t.held {
		t.release()
	}

	return nil
}

func (t *transition) release() {
	t.held = false
	t.inv = nil
	t.ev = nil
	<-t.entry.lock
}
