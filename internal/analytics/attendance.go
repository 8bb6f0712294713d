package analytics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ErrInvalidRecord marks a row that violates a record invariant.
var ErrInvalidRecord = errors.New("invalid record")

// Validate checks the attendance invariants once, at the ingestion boundary.
func (ds AttendanceDataset) Validate() error {
	type key struct{ member, service uuid.UUID }
	seen := make(map[key]struct{}, len(ds.Records))
	for _, rec := range ds.Records {
		if rec.TookCommunion && !rec.Attended {
			return fmt.Errorf("%w: member %s took communion at service %s without attending",
				ErrInvalidRecord, rec.MemberID, rec.ServiceID)
		}
		k := key{rec.MemberID, rec.ServiceID}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate attendance for member %s at service %s",
				ErrInvalidRecord, rec.MemberID, rec.ServiceID)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// ServiceTally is the per-service reduction every attendance figure starts from.
type ServiceTally struct {
	Service    Service
	Attendance int
	Communion  int
	Members    int
	Guests     int
	Male       int
	Female     int
}

// TallyServices reduces attendance rows to one tally per service, in date
// order. Services outside ds.Range are dropped; rows for unknown services are
// ignored. An attendee counts as a member only when their id resolves to an
// active directory entry, otherwise as a guest.
func TallyServices(ds AttendanceDataset) []ServiceTally {
	filter := !ds.Range.Start.IsZero()
	index := make(map[uuid.UUID]int, len(ds.Services))
	tallies := make([]ServiceTally, 0, len(ds.Services))
	for _, svc := range ds.Services {
		if filter && !ds.Range.Contains(svc.Date) {
			continue
		}
		if _, dup := index[svc.ID]; dup {
			continue
		}
		index[svc.ID] = len(tallies)
		tallies = append(tallies, ServiceTally{Service: svc})
	}

	for _, rec := range ds.Records {
		if !rec.Attended {
			continue
		}
		i, ok := index[rec.ServiceID]
		if !ok {
			continue
		}
		t := &tallies[i]
		t.Attendance++
		if rec.TookCommunion {
			t.Communion++
		}
		person, known := ds.Members[rec.MemberID]
		if known && person.IsActiveMember() {
			t.Members++
		} else {
			t.Guests++
		}
		if known {
			switch person.Sex {
			case Male:
				t.Male++
			case Female:
				t.Female++
			}
		}
	}

	sort.SliceStable(tallies, func(i, j int) bool {
		a, b := tallies[i].Service, tallies[j].Service
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		return a.Time < b.Time
	})
	return tallies
}

// MonthlyAttendance is one point on the attendance trend. Averages are per
// service held in the month.
type MonthlyAttendance struct {
	Month            string  `json:"month"`
	MonthKey         string  `json:"monthKey"`
	ServiceCount     int     `json:"serviceCount"`
	TotalAttendance  int     `json:"totalAttendance"`
	Attendance       float64 `json:"attendance"`
	Communion        float64 `json:"communion"`
	MemberAttendance float64 `json:"memberAttendance"`
	GuestAttendance  float64 `json:"guestAttendance"`
}

// MonthlyAttendanceTrend groups tallies by calendar month. Months with no
// services never appear.
func MonthlyAttendanceTrend(tallies []ServiceTally, r DateRange) []MonthlyAttendance {
	type acc struct {
		date                                  CalendarDate
		services, total, comm, members, guest int
	}
	months := make(map[string]*acc)
	keys := make([]string, 0)
	for _, t := range tallies {
		k := t.Service.Date.MonthKey()
		a, ok := months[k]
		if !ok {
			a = &acc{date: t.Service.Date}
			months[k] = a
			keys = append(keys, k)
		}
		a.services++
		a.total += t.Attendance
		a.comm += t.Communion
		a.members += t.Members
		a.guest += t.Guests
	}
	sort.Strings(keys)

	trend := make([]MonthlyAttendance, 0, len(keys))
	for _, k := range keys {
		a := months[k]
		if a.services == 0 {
			continue
		}
		trend = append(trend, MonthlyAttendance{
			Month:            monthLabel(a.date, r.SpansYears(), false),
			MonthKey:         k,
			ServiceCount:     a.services,
			TotalAttendance:  a.total,
			Attendance:       average(a.total, a.services),
			Communion:        average(a.comm, a.services),
			MemberAttendance: average(a.members, a.services),
			GuestAttendance:  average(a.guest, a.services),
		})
	}
	return trend
}

// Bucket is a named count for two-series charts.
type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// GenderBreakdown sums male and female attendees over every service.
func GenderBreakdown(tallies []ServiceTally) []Bucket {
	var male, female int
	for _, t := range tallies {
		male += t.Male
		female += t.Female
	}
	return []Bucket{{Name: "Male", Value: male}, {Name: "Female", Value: female}}
}

// ServiceTypeStats is attendance for one service type.
type ServiceTypeStats struct {
	Type              ServiceType `json:"type"`
	ServiceCount      int         `json:"serviceCount"`
	TotalAttendance   int         `json:"totalAttendance"`
	AverageAttendance float64     `json:"averageAttendance"`
}

// ServiceTypeBreakdown reports every service type, including ones with no
// services in range.
func ServiceTypeBreakdown(tallies []ServiceTally) []ServiceTypeStats {
	stats := make([]ServiceTypeStats, len(ServiceTypes))
	pos := make(map[ServiceType]int, len(ServiceTypes))
	for i, st := range ServiceTypes {
		stats[i].Type = st
		pos[st] = i
	}
	for _, t := range tallies {
		i, ok := pos[t.Service.Type]
		if !ok {
			continue
		}
		stats[i].ServiceCount++
		stats[i].TotalAttendance += t.Attendance
	}
	for i := range stats {
		stats[i].AverageAttendance = average(stats[i].TotalAttendance, stats[i].ServiceCount)
	}
	return stats
}

// AttendanceSummary holds the headline attendance figures.
type AttendanceSummary struct {
	TotalServices     int     `json:"totalServices"`
	TotalAttendance   int     `json:"totalAttendance"`
	TotalCommunion    int     `json:"totalCommunion"`
	AverageAttendance float64 `json:"averageAttendance"`
}

func SummarizeAttendance(tallies []ServiceTally) AttendanceSummary {
	var s AttendanceSummary
	for _, t := range tallies {
		s.TotalServices++
		s.TotalAttendance += t.Attendance
		s.TotalCommunion += t.Communion
	}
	s.AverageAttendance = average(s.TotalAttendance, s.TotalServices)
	return s
}

func average(total, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

// monthLabel renders "January" or "Jan", with the year appended when the
// report range crosses a year boundary.
func monthLabel(d CalendarDate, withYear, short bool) string {
	name := d.Month.String()
	if short {
		name = name[:3]
	}
	if withYear {
		return fmt.Sprintf("%s %d", name, d.Year)
	}
	return name
}
