package imports

import (
	"io"
	"strings"

	"shepherd/internal/analytics"
	"shepherd/internal/pkg/httputil"
)

var memberColumns = columns{
	"first_name":    {"first_name", "firstname", "first", "given_name"},
	"last_name":     {"last_name", "lastname", "last", "surname", "family_name"},
	"sex":           {"sex", "gender"},
	"date_of_birth": {"date_of_birth", "dob", "birthdate", "birth_date", "birthday"},
	"envelope":      {"envelope", "envelope_number", "envelope_no", "envelopenumber"},
	"participation": {"participation", "status", "membership_status"},
	"email":         {"email", "email_address", "e_mail"},
	"household":     {"household", "household_name", "family"},
}

// MemberRow is one parsed line of a member import.
type MemberRow struct {
	Line           int                     `json:"line"`
	FirstName      string                  `json:"firstName" validate:"required,max=100"`
	LastName       string                  `json:"lastName" validate:"required,max=100"`
	Sex            analytics.Sex           `json:"sex,omitempty" validate:"omitempty,oneof=male female"`
	DateOfBirth    *analytics.CalendarDate `json:"dateOfBirth,omitempty"`
	EnvelopeNumber string                  `json:"envelopeNumber,omitempty" validate:"max=20"`
	Participation  analytics.Participation `json:"participation" validate:"required,oneof=active inactive visitor transferred deceased"`
	Email          string                  `json:"email,omitempty" validate:"omitempty,email"`
	Household      string                  `json:"household,omitempty" validate:"max=200"`
}

// ParseMembers reads a member spreadsheet. First and last name columns are
// required; a blank participation means active.
func ParseMembers(src io.Reader) ([]MemberRow, []RowError, error) {
	records, err := readRecords(src, memberColumns, "first_name", "last_name")
	if err != nil {
		return nil, nil, err
	}

	var (
		rows []MemberRow
		errs []RowError
	)
	for _, rec := range records {
		row := MemberRow{
			Line:           rec.line,
			FirstName:      rec.get("first_name"),
			LastName:       rec.get("last_name"),
			Sex:            parseSex(rec.get("sex")),
			EnvelopeNumber: rec.get("envelope"),
			Participation:  analytics.Participation(strings.ToLower(rec.get("participation"))),
			Email:          strings.ToLower(rec.get("email")),
			Household:      rec.get("household"),
		}
		if row.Participation == "" {
			row.Participation = analytics.ParticipationActive
		}
		if dob := rec.get("date_of_birth"); dob != "" {
			d, err := ParseDate(dob)
			if err != nil {
				errs = append(errs, RowError{Line: rec.line, Field: "dateOfBirth", Message: err.Error()})
				continue
			}
			row.DateOfBirth = &d
		}
		if err := httputil.Validate.Struct(row); err != nil {
			errs = append(errs, validationErrors(rec.line, err)...)
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs, nil
}

// parseSex maps the usual spreadsheet spellings; anything else is passed
// through for validation to reject.
func parseSex(s string) analytics.Sex {
	switch strings.ToLower(s) {
	case "m", "male":
		return analytics.Male
	case "f", "female":
		return analytics.Female
	}
	return analytics.Sex(strings.ToLower(s))
}
