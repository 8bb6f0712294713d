// Package export renders report tables as CSV and XLSX downloads.
package export

import (
	"bufio"
	"io"
	"strings"
)

// Table is a rectangular report: a header and zero or more rows of the same
// width. NumericCols marks columns spreadsheets should store as numbers.
type Table struct {
	Header      []string
	Rows        [][]string
	NumericCols []int
}

// EscapeField quotes a CSV field only when it contains a comma, a double
// quote or a newline, doubling any inner quotes.
func EscapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// WriteCSV writes the header (always, even with no rows) and the rows, one
// record per line terminated by "\n".
func WriteCSV(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	if err := writeRecord(bw, t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writeRecord(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(EscapeField(f)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}
