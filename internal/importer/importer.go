// Package importer turns merchant CSV uploads into batch issuance requests.
package importer

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Unit is the denomination of an amount column.
type Unit int

const (
	// UnitBase amounts are integers in the smallest unit of the settlement asset.
	UnitBase Unit = iota
	// UnitEther amounts are decimals scaled by 10^18, the way the dashboard entered them.
	UnitEther
)

var etherScale = decimal.New(1, 18)

// Profile describes the column layout of a supported CSV format.
// Adding a new format is just adding a new Profile to the profiles slice.
type Profile struct {
	Name            string
	CounterpartyCol string
	AmountCol       string
	ContentRefCol   string // optional
	Unit            Unit
}

func (p Profile) requiredCols() []string {
	return []string{p.CounterpartyCol, p.AmountCol}
}

// profiles is the ordered list of formats tried against the header row.
var profiles = []Profile{
	{
		Name:            "blockbill",
		CounterpartyCol: "counterparty",
		AmountCol:       "amount",
		ContentRefCol:   "content_ref",
		Unit:            UnitBase,
	},
	{
		Name:            "dashboard",
		CounterpartyCol: "client",
		AmountCol:       "amount_eth",
		ContentRefCol:   "metadata_uri",
		Unit:            UnitEther,
	},
}

const (
	MaxRows  = 1000
	MaxBytes = 4 << 20
)

var (
	ErrNoProfile = errors.New("no matching CSV format: expected a counterparty;amount[;content_ref] header")
	ErrNoRows    = errors.New("csv contains no invoices")
	ErrTooLarge  = errors.New("csv exceeds the import limit")
)

// RowError ties a validation failure to its 1-based line in the file.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }
