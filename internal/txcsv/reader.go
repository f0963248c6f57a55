// Package txcsv reads transaction records from CSV and writes account
// snapshots back out.
package txcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/txengine/internal/ledger"
)

// InputHeader is the expected header row of a transaction file.
var InputHeader = []string{"type", "client", "tx", "amount"}

// RowError describes a row that could not be parsed. It is not fatal; the
// reader can keep going.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Reader decodes transaction records from CSV input.
type Reader struct {
	csv       *csv.Reader
	precision int32
	header    bool
	columns   map[string]int
}

// NewReader wraps r. Amounts are truncated to precision fractional digits.
func NewReader(r io.Reader, precision int32) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &Reader{csv: cr, precision: precision}
}

// Read returns the next record. It returns io.EOF at the end of input and a
// *RowError for a malformed row; any other error is fatal.
func (r *Reader) Read() (ledger.Record, error) {
	if !r.header {
		if err := r.readHeader(); err != nil {
			return ledger.Record{}, err
		}
	}

	fields, err := r.csv.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return ledger.Record{}, &RowError{Line: parseErr.Line, Err: parseErr.Err}
		}
		return ledger.Record{}, err
	}

	rec, err := r.parse(fields)
	if err != nil {
		line, _ := r.csv.FieldPos(0)
		return ledger.Record{}, &RowError{Line: line, Err: err}
	}
	return rec, nil
}

// ReadAll collects every well-formed record. Row errors are passed to onRowError
// when it is not nil and otherwise skipped.
func (r *Reader) ReadAll(onRowError func(*RowError)) ([]ledger.Record, error) {
	var out []ledger.Record
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			if onRowError != nil {
				onRowError(rowErr)
			}
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func (r *Reader) readHeader() error {
	fields, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(fields))
	for i, f := range fields {
		columns[strings.ToLower(strings.TrimSpace(f))] = i
	}
	for _, name := range InputHeader[:3] {
		if _, ok := columns[name]; !ok {
			return fmt.Errorf("header is missing column %q", name)
		}
	}
	r.columns = columns
	r.header = true
	return nil
}

func (r *Reader) field(fields []string, name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func (r *Reader) parse(fields []string) (ledger.Record, error) {
	kind, err := ledger.ParseKind(r.field(fields, "type"))
	if err != nil {
		return ledger.Record{}, err
	}

	client, err := strconv.ParseUint(r.field(fields, "client"), 10, 16)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("client: %w", err)
	}

	tx, err := strconv.ParseUint(r.field(fields, "tx"), 10, 32)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("tx: %w", err)
	}

	rec := ledger.Record{Kind: kind, Client: ledger.ClientID(client), Tx: ledger.TxID(tx)}

	raw := r.field(fields, "amount")
	if !kind.Funding() {
		// dispute-class rows may carry a placeholder amount; it is ignored
		return rec, nil
	}
	if raw == "" {
		return ledger.Record{}, fmt.Errorf("%s requires an amount", kind)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("amount: %w", err)
	}
	rec.Amount = decimal.NewNullDecimal(amount.Truncate(r.precision))
	return rec, nil
}
