package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	enc "github.com/MrJamesThe3rd/blockbill/internal/encoding"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

// Result is a parsed upload. Rows are in file order.
type Result struct {
	Profile string
	Charset enc.Charset
	Rows    []invoice.IssueParams
}

// Parser reads issuance CSVs in any common encoding, separated by ';' or ','.
// It detects the format by matching the header row against known profiles.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse validates every row and returns all row errors joined, so a caller can
// report the whole file at once. Rows are issued on behalf of issuer.
func (p *Parser) Parse(r io.Reader, issuer invoice.Address) (*Result, error) {
	utf8r, charset, err := enc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(utf8r, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	if len(data) > MaxBytes {
		return nil, ErrTooLarge
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffComma(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := readRecords(reader)
	if err != nil {
		return nil, err
	}

	profile, cols, headerIdx := detectProfile(rows)
	if profile == nil {
		return nil, ErrNoProfile
	}

	params, err := parseRows(profile, cols, rows[headerIdx+1:], issuer)
	if err != nil {
		return nil, err
	}

	return &Result{Profile: profile.Name, Charset: charset, Rows: params}, nil
}

// sniffComma picks the separator that occurs more often in the first non-empty line.
func sniffComma(data []byte) rune {
	for line := range strings.SplitSeq(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.Count(line, ",") > strings.Count(line, ";") {
			return ','
		}

		break
	}

	return ';'
}

// record is one CSV row with its 1-based line in the file.
type record struct {
	line   int
	fields []string
}

func readRecords(reader *csv.Reader) ([]record, error) {
	var rows []record

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}

		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		line, _ := reader.FieldPos(0)
		rows = append(rows, record{line: line, fields: fields})
	}
}

type colIndex map[string]int

func detectProfile(rows []record) (*Profile, colIndex, int) {
	for rowIdx, row := range rows {
		cols := make(colIndex)

		for i, cell := range row.fields {
			name := strings.ToLower(strings.TrimSpace(cell))
			if name != "" {
				cols[name] = i
			}
		}

		for i := range profiles {
			if matchesProfile(&profiles[i], cols) {
				return &profiles[i], cols, rowIdx
			}
		}
	}

	return nil, nil, 0
}

func matchesProfile(p *Profile, cols colIndex) bool {
	for _, name := range p.requiredCols() {
		if _, ok := cols[name]; !ok {
			return false
		}
	}

	return true
}

// parseRows skips rows whose cells are all blank.
func parseRows(p *Profile, cols colIndex, rows []record, issuer invoice.Address) ([]invoice.IssueParams, error) {
	var (
		params []invoice.IssueParams
		errs   []error
	)

	refIdx := -1
	if i, ok := cols[p.ContentRefCol]; ok {
		refIdx = i
	}

	for _, rec := range rows {
		row, line := rec.fields, rec.line

		if blank(row) {
			continue
		}

		if len(params)+len(errs) == MaxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrTooLarge, MaxRows)
		}

		counterparty, err := invoice.ParseAddress(cellValue(row, cols[p.CounterpartyCol]))
		if err != nil {
			errs = append(errs, &RowError{Line: line, Err: err})
			continue
		}

		amount, err := parseAmount(cellValue(row, cols[p.AmountCol]), p.Unit)
		if err != nil {
			errs = append(errs, &RowError{Line: line, Err: err})
			continue
		}

		params = append(params, invoice.IssueParams{
			Issuer:       issuer.String(),
			Counterparty: counterparty.String(),
			Amount:       amount,
			ContentRef:   cellValue(row, refIdx),
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if len(params) == 0 {
		return nil, ErrNoRows
	}

	return params, nil
}

// parseAmount accepts plain digits with an optional decimal point in ether
// mode. Thousands separators are rejected rather than guessed.
func parseAmount(s string, unit Unit) (decimal.Decimal, error) {
	if s == "" || strings.ContainsAny(s, ", _") {
		return decimal.Decimal{}, invoice.ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, invoice.ErrInvalidAmount
	}

	if unit == UnitEther {
		d = d.Mul(etherScale)
	}

	if !d.IsPositive() || !d.IsInteger() {
		return decimal.Decimal{}, invoice.ErrInvalidAmount
	}

	return d, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}

	return true
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}
