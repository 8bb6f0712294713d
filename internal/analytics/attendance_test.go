package analytics

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attendanceFixture struct {
	ds      AttendanceDataset
	members []Person
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	f := &attendanceFixture{
		ds: AttendanceDataset{
			Range:   DateRange{Start: MustDate("2024-01-01"), End: MustDate("2024-03-31")},
			Members: map[uuid.UUID]Person{},
		},
	}
	return f
}

func (f *attendanceFixture) person(sex Sex, p Participation) Person {
	m := Person{ID: uuid.New(), FirstName: "P", LastName: string(sex), Sex: sex, Participation: p}
	f.ds.Members[m.ID] = m
	f.members = append(f.members, m)
	return m
}

func (f *attendanceFixture) service(date string, typ ServiceType) Service {
	s := Service{ID: uuid.New(), Date: MustDate(date), Type: typ, Time: "10:00"}
	f.ds.Services = append(f.ds.Services, s)
	return s
}

func (f *attendanceFixture) mark(p Person, s Service, communion bool) {
	f.ds.Records = append(f.ds.Records, AttendanceRecord{
		MemberID: p.ID, ServiceID: s.ID, Attended: true, TookCommunion: communion,
	})
}

func TestValidate_RejectsCommunionWithoutAttendance(t *testing.T) {
	f := newAttendanceFixture(t)
	p := f.person(Male, ParticipationActive)
	s := f.service("2024-01-07", DivineService)
	f.ds.Records = append(f.ds.Records, AttendanceRecord{MemberID: p.ID, ServiceID: s.ID, TookCommunion: true})

	assert.ErrorIs(t, f.ds.Validate(), ErrInvalidRecord)
}

func TestValidate_RejectsDuplicateMark(t *testing.T) {
	f := newAttendanceFixture(t)
	p := f.person(Female, ParticipationActive)
	s := f.service("2024-01-07", DivineService)
	f.mark(p, s, false)
	f.mark(p, s, true)

	assert.ErrorIs(t, f.ds.Validate(), ErrInvalidRecord)
}

func TestTallyServices(t *testing.T) {
	f := newAttendanceFixture(t)
	active := f.person(Male, ParticipationActive)
	inactive := f.person(Female, ParticipationInactive)
	visitor := f.person(Female, ParticipationVisitor)
	s1 := f.service("2024-01-14", DivineService)
	s0 := f.service("2024-01-07", DivineService)
	outside := f.service("2023-12-31", DivineService)

	f.mark(active, s1, true)
	f.mark(inactive, s1, false)
	f.mark(visitor, s1, false)
	f.mark(active, outside, false)
	// Not attended rows never count.
	f.ds.Records = append(f.ds.Records, AttendanceRecord{MemberID: active.ID, ServiceID: s0.ID})
	// Unknown attendee counts as a guest with no sex.
	f.ds.Records = append(f.ds.Records, AttendanceRecord{MemberID: uuid.New(), ServiceID: s0.ID, Attended: true})

	tallies := TallyServices(f.ds)
	require.Len(t, tallies, 2)

	assert.Equal(t, s0.ID, tallies[0].Service.ID, "sorted by date")
	assert.Equal(t, 1, tallies[0].Attendance)
	assert.Equal(t, 1, tallies[0].Guests)
	assert.Equal(t, 0, tallies[0].Male+tallies[0].Female)

	assert.Equal(t, ServiceTally{
		Service: s1, Attendance: 3, Communion: 1, Members: 1, Guests: 2, Male: 1, Female: 2,
	}, tallies[1])
}

func TestMonthlyAttendanceTrend(t *testing.T) {
	f := newAttendanceFixture(t)
	a := f.person(Male, ParticipationActive)
	b := f.person(Female, ParticipationActive)
	jan1 := f.service("2024-01-07", DivineService)
	jan2 := f.service("2024-01-10", MidweekLent)
	mar := f.service("2024-03-03", DivineService)
	f.mark(a, jan1, true)
	f.mark(b, jan1, true)
	f.mark(a, jan2, false)
	f.mark(b, mar, false)

	trend := MonthlyAttendanceTrend(TallyServices(f.ds), f.ds.Range)
	require.Len(t, trend, 2, "February has no services and is omitted")

	assert.Equal(t, "January", trend[0].Month)
	assert.Equal(t, "2024-01", trend[0].MonthKey)
	assert.Equal(t, 2, trend[0].ServiceCount)
	assert.Equal(t, 3, trend[0].TotalAttendance)
	assert.InDelta(t, 1.5, trend[0].Attendance, 1e-9)
	assert.InDelta(t, 1.0, trend[0].Communion, 1e-9)

	assert.Equal(t, "March", trend[1].Month)
	assert.InDelta(t, 1.0, trend[1].Attendance, 1e-9)
}

func TestMonthlyAttendanceTrend_LabelsYearAcrossBoundary(t *testing.T) {
	f := newAttendanceFixture(t)
	f.ds.Range = DateRange{Start: MustDate("2023-12-01"), End: MustDate("2024-01-31")}
	p := f.person(Male, ParticipationActive)
	f.mark(p, f.service("2023-12-24", Festival), false)
	f.mark(p, f.service("2024-01-07", DivineService), false)

	trend := MonthlyAttendanceTrend(TallyServices(f.ds), f.ds.Range)
	require.Len(t, trend, 2)
	assert.Equal(t, "December 2023", trend[0].Month)
	assert.Equal(t, "January 2024", trend[1].Month)
}

func TestServiceTypeBreakdown_ReportsEveryType(t *testing.T) {
	f := newAttendanceFixture(t)
	p := f.person(Male, ParticipationActive)
	f.mark(p, f.service("2024-01-07", DivineService), false)
	f.mark(p, f.service("2024-01-14", DivineService), false)

	stats := ServiceTypeBreakdown(TallyServices(f.ds))
	require.Len(t, stats, len(ServiceTypes))
	assert.Equal(t, DivineService, stats[0].Type)
	assert.Equal(t, 2, stats[0].ServiceCount)
	assert.InDelta(t, 1.0, stats[0].AverageAttendance, 1e-9)
	for _, s := range stats[1:] {
		assert.Zero(t, s.ServiceCount)
		assert.Zero(t, s.AverageAttendance)
	}
}

func TestComparisons(t *testing.T) {
	f := newAttendanceFixture(t)
	m := f.person(Male, ParticipationActive)
	g := f.person(Female, ParticipationVisitor)
	ds1 := f.service("2024-01-07", DivineService)
	ds2 := f.service("2024-01-14", DivineService)
	lent := f.service("2024-02-21", MidweekLent)
	f.mark(m, ds1, false)
	f.mark(g, ds1, false)
	f.mark(m, ds2, false)
	f.mark(m, lent, false)

	tallies := TallyServices(f.ds)

	divine := CompareDivineService(tallies)
	assert.Equal(t, ComparisonSide{Label: "Divine Service", TotalAttendance: 3, ServiceCount: 2, AverageAttendance: 1.5}, divine.Primary)
	assert.Equal(t, ComparisonSide{Label: "Other Services", TotalAttendance: 1, ServiceCount: 1, AverageAttendance: 1}, divine.Secondary)

	mg := CompareMembersGuests(tallies)
	assert.Equal(t, "Members", mg.Primary.Label)
	assert.Equal(t, 3, mg.Primary.TotalAttendance)
	assert.Equal(t, 3, mg.Primary.ServiceCount)
	assert.Equal(t, "Guests", mg.Secondary.Label)
	assert.Equal(t, 1, mg.Secondary.TotalAttendance)
	assert.InDelta(t, 1.0/3.0, mg.Secondary.AverageAttendance, 1e-9)

	assert.Equal(t, []Bucket{{"Male", 3}, {"Female", 1}}, GenderBreakdown(tallies))
}

func TestBuildAttendanceReport_Empty(t *testing.T) {
	f := newAttendanceFixture(t)

	rep, err := BuildAttendanceReport(f.ds)
	require.NoError(t, err)
	assert.Empty(t, rep.MonthlyTrend)
	assert.Zero(t, rep.Summary.AverageAttendance)
	assert.Zero(t, rep.DivineVsOther.Primary.AverageAttendance)
	assert.Zero(t, rep.MemberVsGuest.Secondary.AverageAttendance)
	assert.Len(t, rep.ByServiceType, len(ServiceTypes))
}

func TestBuildAttendanceReport_RejectsInvertedRange(t *testing.T) {
	f := newAttendanceFixture(t)
	f.ds.Range = DateRange{Start: MustDate("2024-02-01"), End: MustDate("2024-01-01")}

	_, err := BuildAttendanceReport(f.ds)
	assert.ErrorIs(t, err, ErrInvalidRange)
}
