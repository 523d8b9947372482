package invoice

// Operation names a mutating lifecycle operation.
type Operation string

const (
	OpIssue          Operation = "issue"
	OpSettle         Operation = "settle"
	OpVoid           Operation = "void"
	OpUpdateMetadata Operation = "update_metadata"
)

// Authorize decides whether caller may perform op on inv. For OpIssue, inv is
// the prospective record carrying the declared issuer.
// It holds no state; entitlement comes only from the addresses stored on the record.
func Authorize(op Operation, caller Address, inv *Invoice) error {
	if caller == "" || inv == nil {
		return denial(op)
	}

	switch op {
	case OpSettle:
		if caller != inv.Counterparty {
			return ErrNotCounterparty
		}
	case OpIssue, OpVoid, OpUpdateMetadata:
		if caller != inv.Issuer {
			return ErrNotIssuer
		}
	default:
		return ErrNotIssuer
	}

	return nil
}

func denial(op Operation) error {
	if op == OpSettle {
		return ErrNotCounterparty
	}

	return ErrNotIssuer
}
