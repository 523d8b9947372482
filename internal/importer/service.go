package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

// Issuer is the part of the lifecycle service an import needs.
type Issuer interface {
	IssueBatch(ctx context.Context, caller invoice.Address, params []invoice.IssueParams) ([]*invoice.Invoice, error)
}

type Service struct {
	parser *Parser
	issuer Issuer
}

func NewService(issuer Issuer) *Service {
	return &Service{
		parser: NewParser(),
		issuer: issuer,
	}
}

// Preview parses and validates an upload without issuing anything.
func (s *Service) Preview(caller invoice.Address, r io.Reader) (*Result, error) {
	return s.parser.Parse(r, caller)
}

// Import issues every row of the upload as the caller, all or nothing.
func (s *Service) Import(ctx context.Context, caller invoice.Address, r io.Reader) ([]*invoice.Invoice, error) {
	res, err := s.parser.Parse(r, caller)
	if err != nil {
		return nil, err
	}

	invs, err := s.issuer.IssueBatch(ctx, caller, res.Rows)
	if err != nil {
		return nil, fmt.Errorf("issuing batch: %w", err)
	}

	slog.Info("csv batch issued", "issuer", caller, "profile", res.Profile, "charset", res.Charset, "count", len(invs))

	return invs, nil
}
