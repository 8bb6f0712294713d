package imports

import (
	"io"

	"github.com/shopspring/decimal"

	"shepherd/internal/analytics"
	"shepherd/internal/pkg/httputil"
)

var givingColumns = columns{
	"envelope":      {"envelope", "envelope_number", "envelope_no", "envelopenumber"},
	"date":          {"date", "date_given", "given", "gift_date"},
	"amount":        {"amount", "total", "gift"},
	"current":       {"current", "general", "general_fund"},
	"mission":       {"mission", "missions"},
	"memorials":     {"memorials", "memorial"},
	"debt":          {"debt", "debt_retirement", "building"},
	"school":        {"school"},
	"miscellaneous": {"miscellaneous", "misc", "other"},
	"notes":         {"notes", "note", "memo"},
}

// categoryFields are the categorized amount columns, in Amounts order.
var categoryFields = []string{"current", "mission", "memorials", "debt", "school", "miscellaneous"}

// GivingRow is one parsed line of a giving import, keyed by envelope number.
type GivingRow struct {
	Line           int                    `json:"line"`
	EnvelopeNumber string                 `json:"envelopeNumber" validate:"required,max=20"`
	DateGiven      analytics.CalendarDate `json:"dateGiven"`
	Amounts        analytics.Amounts      `json:"amounts"`
	Notes          string                 `json:"notes,omitempty" validate:"max=500"`
}

// ParseGiving reads a giving spreadsheet. Rows may use the categorized
// columns or the legacy single amount column, which is credited to the
// general fund. When a row has both, the categorized columns win. A row whose
// total is zero is rejected.
func ParseGiving(src io.Reader) ([]GivingRow, []RowError, error) {
	records, err := readRecords(src, givingColumns, "envelope", "date")
	if err != nil {
		return nil, nil, err
	}

	var (
		rows []GivingRow
		errs []RowError
	)
	for _, rec := range records {
		row := GivingRow{
			Line:           rec.line,
			EnvelopeNumber: rec.get("envelope"),
			Notes:          rec.get("notes"),
		}
		date, err := ParseDate(rec.get("date"))
		if err != nil {
			errs = append(errs, RowError{Line: rec.line, Field: "dateGiven", Message: err.Error()})
			continue
		}
		row.DateGiven = date

		amounts, rowErr := parseAmounts(rec)
		if rowErr != nil {
			errs = append(errs, *rowErr)
			continue
		}
		if amounts.Total().IsZero() {
			errs = append(errs, RowError{Line: rec.line, Field: "amount", Message: "no amount given"})
			continue
		}
		row.Amounts = amounts

		if err := httputil.Validate.Struct(row); err != nil {
			errs = append(errs, validationErrors(rec.line, err)...)
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs, nil
}

func parseAmounts(rec record) (analytics.Amounts, *RowError) {
	values := make(map[string]decimal.Decimal, len(categoryFields)+1)
	for _, f := range append([]string{"amount"}, categoryFields...) {
		d, err := ParseAmount(rec.get(f))
		if err != nil {
			return analytics.Amounts{}, &RowError{Line: rec.line, Field: f, Message: err.Error()}
		}
		values[f] = d
	}
	a := analytics.Amounts{
		Current:       values["current"],
		Mission:       values["mission"],
		Memorials:     values["memorials"],
		Debt:          values["debt"],
		School:        values["school"],
		Miscellaneous: values["miscellaneous"],
	}
	if a.Total().IsZero() {
		return analytics.LegacyAmount(values["amount"]), nil
	}
	return a, nil
}
