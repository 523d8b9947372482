package invoice

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of an invoice.
type Status string

const (
	StatusOpen    Status = "open"
	StatusSettled Status = "settled"
	StatusVoid    Status = "void"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusVoid
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusSettled, StatusVoid:
		return true
	}

	return false
}

// EventKind identifies the lifecycle transition an event records.
type EventKind string

const (
	EventIssued          EventKind = "issued"
	EventSettled         EventKind = "settled"
	EventVoided          EventKind = "voided"
	EventMetadataUpdated EventKind = "metadata_updated"
)

// Address is a normalized (lowercase) account identifier: 0x followed by 40 hex digits.
type Address string

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseAddress validates s and returns its normalized form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if err := validate.Var(s, "required,eth_addr"); err != nil {
		return "", ErrInvalidParty
	}

	return Address(strings.ToLower(s)), nil
}

func (a Address) String() string { return string(a) }

// Invoice is a receivable bound to an issuer, a counterparty and a fixed amount.
type Invoice struct {
	ID           int64
	Issuer       Address
	Counterparty Address
	Amount       decimal.Decimal // smallest unit of the settlement asset
	ContentRef   string
	Status       Status
	SettledValue decimal.Decimal
	CreatedAt    time.Time
	SettledAt    *time.Time
	UpdatedAt    *time.Time
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (inv *Invoice) Clone() *Invoice {
	c := *inv
	if inv.SettledAt != nil {
		c.SettledAt = new(*inv.SettledAt)
	}

	if inv.UpdatedAt != nil {
		c.UpdatedAt = new(*inv.UpdatedAt)
	}

	return &c
}

// Event is one entry of the append-only lifecycle log.
type Event struct {
	Seq        int64 // assigned by the store on append
	ID         uuid.UUID
	InvoiceID  int64
	Kind       EventKind
	Actor      Address
	Amount     *decimal.Decimal // issued amount or settled value
	ContentRef string           // set on issued and metadata_updated

	// Counterparty is set on issued events, Beneficiary (the issuer) on settled ones.
	Counterparty Address
	Beneficiary  Address
	OccurredAt   time.Time
}

// Issuance pairs a new invoice with its Issued event for atomic creation.
type Issuance struct {
	Invoice *Invoice
	Event   *Event
}

// ListFilter narrows list projections. Results are always ordered by id.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Normalize clamps the pagination window to sane bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}

	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}

	if f.Offset < 0 {
		f.Offset = 0
	}

	return f
}
