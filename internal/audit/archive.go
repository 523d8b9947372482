package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/MrJamesThe3rd/blockbill/internal/blob"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

var ErrNotTerminal = errors.New("invoice is not settled or void")

// Key returns the blob key an invoice history is archived under.
func Key(id int64) string {
	return "invoices/" + strconv.FormatInt(id, 10) + ".jsonl"
}

type SweepResult struct {
	Archived int `json:"archived"`
	Present  int `json:"present"`
}

// Archiver writes the history of terminal invoices to a blob store. Objects are
// create-only, so archiving the same invoice twice is harmless.
type Archiver struct {
	reader invoice.Reader
	store  blob.Store
	logger *slog.Logger

	workers int
	queue   chan int64
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type ArchiverOption func(*Archiver)

func WithLogger(l *slog.Logger) ArchiverOption {
	return func(a *Archiver) { a.logger = l }
}

// WithWorkers sets the pool size and queue depth used by Start.
func WithWorkers(workers, queue int) ArchiverOption {
	return func(a *Archiver) {
		a.workers = max(workers, 1)
		a.queue = make(chan int64, max(queue, 1))
	}
}

func NewArchiver(reader invoice.Reader, store blob.Store, opts ...ArchiverOption) *Archiver {
	a := &Archiver{
		reader:  reader,
		store:   store,
		logger:  slog.Default(),
		workers: 1,
		queue:   make(chan int64, 64),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

var _ invoice.Observer = (*Archiver)(nil)

// Committed queues terminal invoices for archiving. It never blocks; when the
// queue is full the invoice is left for the next Sweep.
func (a *Archiver) Committed(_ context.Context, inv *invoice.Invoice, _ invoice.Event) {
	if !inv.Status.Terminal() {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return
	}

	select {
	case a.queue <- inv.ID:
	default:
		a.logger.Warn("archive queue full, deferring to sweep", "invoice_id", inv.ID)
	}
}

func (a *Archiver) Rejected(invoice.Operation, error) {}

// Start runs the worker pool until Close is called. ctx bounds each archive write.
func (a *Archiver) Start(ctx context.Context) {
	for range a.workers {
		a.wg.Go(func() {
			for id := range a.queue {
				if _, err := a.Archive(ctx, id); err != nil {
					a.logger.Error("failed to archive invoice", "invoice_id", id, "error", err)
				}
			}
		})
	}
}

// Close stops accepting work, drains the queue and waits for the workers.
func (a *Archiver) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	a.wg.Wait()
}

// Archive writes the invoice's history. It reports false when the archive
// already existed.
func (a *Archiver) Archive(ctx context.Context, id int64) (bool, error) {
	inv, err := a.reader.Get(ctx, id)
	if err != nil {
		return false, err
	}

	if !inv.Status.Terminal() {
		return false, fmt.Errorf("invoice %d: %w", id, ErrNotTerminal)
	}

	events, err := a.reader.History(ctx, id)
	if err != nil {
		return false, fmt.Errorf("loading history: %w", err)
	}

	if report := Compare(inv, events); !report.OK {
		return false, fmt.Errorf("invoice %d: %w", id, report.Err())
	}

	var buf bytes.Buffer
	if err := Encode(&buf, events); err != nil {
		return false, err
	}

	_, err = a.store.Put(ctx, Key(id), &buf, blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"invoice-id": strconv.FormatInt(id, 10),
			"status":     string(inv.Status),
			"events":     strconv.Itoa(len(events)),
		},
	})
	if errors.Is(err, blob.ErrExists) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("writing archive: %w", err)
	}

	a.logger.Info("invoice history archived", "invoice_id", id, "status", inv.Status, "events", len(events))

	return true, nil
}

// Sweep archives every terminal invoice that has no archive yet.
func (a *Archiver) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	for _, status := range []invoice.Status{invoice.StatusSettled, invoice.StatusVoid} {
		err := eachInvoice(ctx, a.reader, status, func(inv *invoice.Invoice) error {
			if _, err := a.store.Head(ctx, Key(inv.ID)); err == nil {
				res.Present++
				return nil
			} else if !errors.Is(err, blob.ErrNotFound) {
				return fmt.Errorf("checking archive of invoice %d: %w", inv.ID, err)
			}

			created, err := a.Archive(ctx, inv.ID)
			if err != nil {
				return err
			}

			if created {
				res.Archived++
			} else {
				res.Present++
			}

			return nil
		})
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// Load reads an archived history back.
func (a *Archiver) Load(ctx context.Context, id int64) ([]invoice.Event, error) {
	_, rc, err := a.store.Get(ctx, Key(id))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return Decode(rc)
}
