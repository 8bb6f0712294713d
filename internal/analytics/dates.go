package analytics

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shepherd/internal/pkg/apperr"
)

var (
	ErrInvalidDate  = apperr.New(apperr.ErrInvalid, "invalid date: expected YYYY-MM-DD")
	ErrInvalidRange = apperr.New(apperr.ErrInvalid, "Start date must be before or equal to end date")
)

// CalendarDate is a date without a time zone. Report grouping keys are always
// derived from its components, never from an instant.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseCalendarDate splits a YYYY-MM-DD string on '-' and validates the
// components. It does not go through time.Parse so no location is involved.
func ParseCalendarDate(s string) (CalendarDate, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return CalendarDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return CalendarDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 1 || m > 12 {
		return CalendarDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	d, err := strconv.Atoi(parts[2])
	if err != nil || d < 1 || d > daysIn(time.Month(m), y) {
		return CalendarDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return CalendarDate{Year: y, Month: time.Month(m), Day: d}, nil
}

// MustDate is ParseCalendarDate for literals known to be valid.
func MustDate(s string) CalendarDate {
	d, err := ParseCalendarDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf takes the calendar components of t in t's own location.
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (d CalendarDate) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight UTC of the date. Only used for day arithmetic and as a
// database parameter for date columns.
func (d CalendarDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1.
func (d CalendarDate) Compare(o CalendarDate) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d CalendarDate) Before(o CalendarDate) bool { return d.Compare(o) < 0 }
func (d CalendarDate) After(o CalendarDate) bool  { return d.Compare(o) > 0 }

// DaysUntil is the signed number of days from d to o.
func (d CalendarDate) DaysUntil(o CalendarDate) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

func (d CalendarDate) AddDays(n int) CalendarDate {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// MonthKey is YYYY-MM, which sorts chronologically.
func (d CalendarDate) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
}

// YearsSince returns the age in whole years of someone born on d, as of asOf.
func (d CalendarDate) YearsSince(asOf CalendarDate) int {
	years := asOf.Year - d.Year
	if asOf.Month < d.Month || (asOf.Month == d.Month && asOf.Day < d.Day) {
		years--
	}
	return years
}

func (d CalendarDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *CalendarDate) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = CalendarDate{}
		return nil
	}
	parsed, err := ParseCalendarDate(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan accepts the time.Time lib/pq returns for date columns, or a string.
func (d *CalendarDate) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = CalendarDate{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case []byte:
		parsed, err := ParseCalendarDate(firstTen(string(v)))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseCalendarDate(firstTen(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into CalendarDate", src)
	}
}

// Value stores the date as its YYYY-MM-DD text so the server casts it to date.
func (d CalendarDate) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func firstTen(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DateRange is an inclusive [Start, End] range of calendar dates.
type DateRange struct {
	Start CalendarDate `json:"startDate"`
	End   CalendarDate `json:"endDate"`
}

// ParseDateRange parses both bounds and rejects Start > End.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseCalendarDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseCalendarDate(end)
	if err != nil {
		return DateRange{}, err
	}
	r := DateRange{Start: s, End: e}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return ErrInvalidRange
	}
	return nil
}

func (r DateRange) Contains(d CalendarDate) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// SpansYears reports whether month labels need a year suffix.
func (r DateRange) SpansYears() bool {
	return r.Start.Year != r.End.Year
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}
