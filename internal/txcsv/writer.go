package txcsv

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/congo-pay/txengine/internal/ledger"
)

// OutputHeader is the header row of an account snapshot.
var OutputHeader = []string{"client", "available", "held", "total", "locked"}

// Writer encodes account snapshots as CSV.
type Writer struct {
	csv       *csv.Writer
	precision int32
}

// NewWriter wraps w. Amounts are rendered with exactly precision fractional digits.
func NewWriter(w io.Writer, precision int32) *Writer {
	return &Writer{csv: csv.NewWriter(w), precision: precision}
}

// WriteAccounts writes the header followed by one row per account in the
// given order, then flushes.
func (w *Writer) WriteAccounts(accounts []ledger.Account) error {
	if err := w.csv.Write(OutputHeader); err != nil {
		return err
	}
	for _, acc := range accounts {
		row := []string{
			strconv.FormatUint(uint64(acc.Client), 10),
			acc.Available.StringFixed(w.precision),
			acc.Held.StringFixed(w.precision),
			acc.Total().StringFixed(w.precision),
			strconv.FormatBool(acc.Locked),
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	w.csv.Flush()
	return w.csv.Error()
}
