// Package analytics turns church-scoped attendance and giving rows into
// report-shaped summaries. Everything here is pure: callers load the rows,
// the functions reduce them, and nothing is fetched or written.
package analytics

import "fmt"

// AttendanceReport is the payload behind the attendance dashboard.
type AttendanceReport struct {
	Range           DateRange           `json:"range"`
	Summary         AttendanceSummary   `json:"summary"`
	MonthlyTrend    []MonthlyAttendance `json:"monthlyTrend"`
	GenderBreakdown []Bucket            `json:"genderBreakdown"`
	ByServiceType   []ServiceTypeStats  `json:"byServiceType"`
	DivineVsOther   Comparison          `json:"divineVsOther"`
	MemberVsGuest   Comparison          `json:"memberVsGuest"`
}

// BuildAttendanceReport validates ds and runs every attendance reduction over
// a single set of service tallies.
func BuildAttendanceReport(ds AttendanceDataset) (*AttendanceReport, error) {
	if err := ds.Range.Validate(); err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("attendance rows: %w", err)
	}
	tallies := TallyServices(ds)
	return &AttendanceReport{
		Range:           ds.Range,
		Summary:         SummarizeAttendance(tallies),
		MonthlyTrend:    MonthlyAttendanceTrend(tallies, ds.Range),
		GenderBreakdown: GenderBreakdown(tallies),
		ByServiceType:   ServiceTypeBreakdown(tallies),
		DivineVsOther:   CompareDivineService(tallies),
		MemberVsGuest:   CompareMembersGuests(tallies),
	}, nil
}

// GivingReport is the payload behind the giving dashboard.
type GivingReport struct {
	Range             DateRange       `json:"range"`
	Summary           GivingSummary   `json:"summary"`
	MonthlyTrend      []MonthlyGiving `json:"monthlyTrend"`
	CategoryBreakdown []Category      `json:"categoryBreakdown"`
	AgeGroups         []GivingBucket  `json:"ageGroups"`
	HouseholdTypes    []GivingBucket  `json:"householdTypes"`
}

// BuildGivingReport validates ds and reduces it. Ages are computed as of asOf.
func BuildGivingReport(ds GivingDataset, asOf CalendarDate) (*GivingReport, error) {
	if err := ds.Range.Validate(); err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("giving rows: %w", err)
	}
	return &GivingReport{
		Range:             ds.Range,
		Summary:           SummarizeGiving(ds.Records),
		MonthlyTrend:      MonthlyGivingTrend(ds),
		CategoryBreakdown: CategoryBreakdown(ds.Records),
		AgeGroups:         AgeGroupBreakdown(ds, asOf),
		HouseholdTypes:    HouseholdTypeBreakdown(ds),
	}, nil
}
