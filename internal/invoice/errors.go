package invoice

import "errors"

var (
	ErrNotFound         = errors.New("invoice not found")
	ErrInvalidAmount    = errors.New("amount must be a positive integer")
	ErrInvalidParty     = errors.New("invalid party")
	ErrNotCounterparty  = errors.New("caller is not the invoice counterparty")
	ErrNotIssuer        = errors.New("caller is not the invoice issuer")
	ErrWrongAmount      = errors.New("supplied value does not match invoice amount")
	ErrAlreadySettled   = errors.New("invoice already settled")
	ErrAlreadyFinalized = errors.New("invoice already finalized")
	ErrInvoiceVoided    = errors.New("invoice voided")
	ErrInvalidStatus    = errors.New("invalid status")

	// ErrInvalidHistory is returned by Replay for logs that break the lifecycle.
	ErrInvalidHistory = errors.New("invalid invoice history")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidParty, "invalid_party"},
	{ErrNotCounterparty, "not_counterparty"},
	{ErrNotIssuer, "not_issuer"},
	{ErrWrongAmount, "wrong_amount"},
	{ErrAlreadySettled, "already_settled"},
	{ErrAlreadyFinalized, "already_finalized"},
	{ErrInvoiceVoided, "invoice_voided"},
	{ErrInvalidStatus, "invalid_status"},
	{ErrInvalidHistory, "invalid_history"},
}

// Code returns the stable machine-readable code for a domain error,
// or "internal" for anything else.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return "internal"
}
