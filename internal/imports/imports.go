// Package imports parses the member and giving spreadsheets churches upload.
// Parsing is pure: callers resolve envelopes and write rows themselves. A
// bad row never aborts the file; it is reported with its line number and the
// rest are returned.
package imports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"shepherd/internal/analytics"
	"shepherd/internal/pkg/apperr"
	"shepherd/internal/pkg/httputil"
)

var (
	ErrEmptyFile      = apperr.New(apperr.ErrInvalid, "the file has no header row")
	ErrMissingColumns = apperr.New(apperr.ErrInvalid, "required columns are missing")
)

// RowError describes why one data line was skipped. Line counts the header
// as line 1.
type RowError struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
}

// columns maps canonical field names to the header spellings accepted for
// them, after normalizeHeader.
type columns map[string][]string

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_", "#", "number", ".", "").Replace(h)
	return strings.Trim(h, "_")
}

// record is one data line keyed by canonical field name.
type record struct {
	line   int
	fields map[string]string
}

func (r record) get(field string) string { return strings.TrimSpace(r.fields[field]) }

// readRecords maps each data line onto the canonical fields. Unknown columns
// are ignored; required fields must all have a column.
func readRecords(src io.Reader, cols columns, required ...string) ([]record, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyFile, err)
	}

	index := make(map[string]int)
	for i, h := range header {
		name := normalizeHeader(h)
		for field, aliases := range cols {
			for _, a := range aliases {
				if a == name {
					if _, dup := index[field]; !dup {
						index[field] = i
					}
				}
			}
		}
	}
	var missing []string
	for _, f := range required {
		if _, ok := index[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var out []record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalid, "malformed CSV: "+err.Error())
		}
		line, _ := cr.FieldPos(0)
		rec := record{line: line, fields: make(map[string]string, len(index))}
		blank := true
		for field, i := range index {
			if i < len(row) {
				rec.fields[field] = row[i]
				if strings.TrimSpace(row[i]) != "" {
					blank = false
				}
			}
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out, nil
}

// validationErrors turns a struct validation failure into row errors.
func validationErrors(line int, err error) []RowError {
	fields := httputil.FieldErrors(err)
	if fields == nil {
		return []RowError{{Line: line, Message: err.Error()}}
	}
	out := make([]RowError, 0, len(fields))
	for f, tag := range fields {
		out = append(out, RowError{Line: line, Field: f, Message: "failed " + tag})
	}
	return out
}

// ParseAmount accepts plain and currency-formatted amounts: "1250",
// "$1,250.00", " 12.5 ". Blank is zero. Negative amounts are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not an amount: %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount: %q", s)
	}
	return d, nil
}

// ParseDate accepts YYYY-MM-DD and the M/D/YYYY form spreadsheets export.
func ParseDate(s string) (analytics.CalendarDate, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return analytics.ParseCalendarDate(s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return analytics.CalendarDate{}, fmt.Errorf("%w: %q", analytics.ErrInvalidDate, s)
		}
		n[i] = v
	}
	if n[2] < 1000 {
		return analytics.CalendarDate{}, fmt.Errorf("%w: %q", analytics.ErrInvalidDate, s)
	}
	return analytics.ParseCalendarDate(fmt.Sprintf("%04d-%02d-%02d", n[2], n[0], n[1]))
}
