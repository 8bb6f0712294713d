package analytics

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func gift(member uuid.UUID, date string, a Amounts) GivingRecord {
	return GivingRecord{ID: uuid.New(), MemberID: member, DateGiven: MustDate(date), Amounts: a}
}

func TestMonthlyGivingTrend_SingleMonth(t *testing.T) {
	m := uuid.New()
	ds := GivingDataset{
		Range: DateRange{Start: MustDate("2024-01-01"), End: MustDate("2024-01-31")},
		Records: []GivingRecord{
			gift(m, "2024-01-07", LegacyAmount(dec("50"))),
			gift(m, "2024-01-14", LegacyAmount(dec("100"))),
			gift(m, "2024-01-21", LegacyAmount(dec("25.50"))),
		},
	}

	trend := MonthlyGivingTrend(ds)
	require.Len(t, trend, 1)
	assert.Equal(t, "Jan", trend[0].Month)
	assert.Equal(t, "2024-01", trend[0].MonthKey)
	assert.Equal(t, 3, trend[0].RecordCount)
	assert.True(t, dec("175.50").Equal(trend[0].TotalAmount), trend[0].TotalAmount.String())
	assert.True(t, dec("175.50").Equal(trend[0].ByServiceType[OtherService]))
	assert.Len(t, trend[0].ByServiceType, len(ServiceTypes)+1)
}

func TestMonthlyGivingTrend_ShortLabelWithYear(t *testing.T) {
	m := uuid.New()
	ds := GivingDataset{
		Range: DateRange{Start: MustDate("2023-12-01"), End: MustDate("2024-01-31")},
		Records: []GivingRecord{
			gift(m, "2024-01-07", LegacyAmount(dec("10"))),
			gift(m, "2023-12-24", LegacyAmount(dec("20"))),
		},
	}

	trend := MonthlyGivingTrend(ds)
	require.Len(t, trend, 2)
	assert.Equal(t, "Dec 2023", trend[0].Month)
	assert.Equal(t, "Jan 2024", trend[1].Month)
}

func TestAttribution(t *testing.T) {
	m := uuid.New()
	sunday := Service{ID: uuid.New(), Date: MustDate("2024-03-03"), Type: DivineService}
	wednesday := Service{ID: uuid.New(), Date: MustDate("2024-03-06"), Type: MidweekLent}
	festival := Service{ID: uuid.New(), Date: MustDate("2024-03-06"), Type: Festival}
	ix := newServiceIndex([]Service{festival, wednesday, sunday})

	explicit := gift(m, "2024-03-20", LegacyAmount(dec("5")))
	explicit.ServiceID = &festival.ID

	tests := []struct {
		name string
		rec  GivingRecord
		want ServiceType
	}{
		{"explicit service wins", explicit, Festival},
		{"same day", gift(m, "2024-03-03", Amounts{}), DivineService},
		{"nearest within window", gift(m, "2024-03-05", Amounts{}), MidweekLent},
		{"equidistant prefers earlier", gift(m, "2024-03-04", Amounts{}), DivineService},
		{"type priority on same date", gift(m, "2024-03-07", Amounts{}), MidweekLent},
		{"window is inclusive", gift(m, "2024-02-29", Amounts{}), DivineService},
		{"outside window", gift(m, "2024-02-27", Amounts{}), OtherService},
		{"no services after", gift(m, "2024-03-10", Amounts{}), OtherService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ix.attribute(tt.rec))
		})
	}
}

func TestCategoryBreakdown(t *testing.T) {
	m := uuid.New()
	records := []GivingRecord{
		gift(m, "2024-01-07", Amounts{Current: dec("100"), Mission: dec("20")}),
		gift(m, "2024-01-14", Amounts{Current: dec("50"), School: dec("5.25")}),
	}

	got := CategoryBreakdown(records)
	require.Len(t, got, 3)
	assert.Equal(t, "Current", got[0].Name)
	assert.True(t, dec("150").Equal(got[0].Value))
	assert.Equal(t, "Mission", got[1].Name)
	assert.Equal(t, "School", got[2].Name)

	sum := decimal.Zero
	for _, c := range got {
		sum = sum.Add(c.Value)
	}
	assert.True(t, SummarizeGiving(records).TotalGiving.Equal(sum))
}

func TestAgeGroup(t *testing.T) {
	asOf := MustDate("2024-06-30")
	dob := func(s string) *CalendarDate { d := MustDate(s); return &d }

	assert.Equal(t, AgeUnknown, AgeGroup(nil, asOf))
	assert.Equal(t, AgeUnder18, AgeGroup(dob("2010-01-01"), asOf))
	assert.Equal(t, Age18To35, AgeGroup(dob("2006-06-30"), asOf))
	assert.Equal(t, Age18To35, AgeGroup(dob("1988-07-01"), asOf))
	assert.Equal(t, Age36To55, AgeGroup(dob("1988-06-30"), asOf))
	assert.Equal(t, Age56To75, AgeGroup(dob("1950-01-01"), asOf))
	assert.Equal(t, AgeOver75, AgeGroup(dob("1940-01-01"), asOf))
}

func TestDemographicBreakdowns(t *testing.T) {
	dob := MustDate("1990-01-01")
	hid := uuid.New()
	alone := Person{ID: uuid.New(), DateOfBirth: &dob}
	spouseA := Person{ID: uuid.New(), HouseholdID: &hid}
	spouseB := Person{ID: uuid.New(), HouseholdID: &hid}
	ds := GivingDataset{
		Members: map[uuid.UUID]Person{alone.ID: alone, spouseA.ID: spouseA, spouseB.ID: spouseB},
		Households: map[uuid.UUID]Household{
			hid: {ID: hid, Members: []Person{spouseA, spouseB}},
		},
		Records: []GivingRecord{
			gift(alone.ID, "2024-01-07", LegacyAmount(dec("10"))),
			gift(spouseA.ID, "2024-01-07", LegacyAmount(dec("30"))),
			gift(spouseB.ID, "2024-01-14", LegacyAmount(dec("15"))),
		},
	}

	ages := AgeGroupBreakdown(ds, MustDate("2024-06-30"))
	require.Len(t, ages, 2)
	assert.Equal(t, Age18To35, ages[0].Name)
	assert.Equal(t, AgeUnknown, ages[1].Name)
	assert.Equal(t, 2, ages[1].RecordCount)
	assert.True(t, dec("22.5").Equal(ages[1].AverageAmount))

	households := HouseholdTypeBreakdown(ds)
	require.Len(t, households, 2)
	assert.Equal(t, HouseholdCouple, households[0].Name)
	assert.True(t, dec("45").Equal(households[0].TotalAmount))
	assert.Equal(t, HouseholdNone, households[1].Name)
}

func TestSummarizeGiving(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	s := SummarizeGiving([]GivingRecord{
		gift(a, "2024-01-07", LegacyAmount(dec("10"))),
		gift(a, "2024-01-14", LegacyAmount(dec("10"))),
		gift(b, "2024-01-14", LegacyAmount(dec("5"))),
	})
	assert.Equal(t, 3, s.RecordCount)
	assert.Equal(t, 2, s.UniqueGivers)
	assert.True(t, dec("8.33").Equal(s.AverageGift), s.AverageGift.String())

	empty := SummarizeGiving(nil)
	assert.True(t, empty.AverageGift.IsZero())
	assert.True(t, empty.TotalGiving.IsZero())
}

func TestBuildGivingReport_RejectsNegative(t *testing.T) {
	ds := GivingDataset{
		Records: []GivingRecord{gift(uuid.New(), "2024-01-07", Amounts{Mission: dec("-1")})},
	}
	_, err := BuildGivingReport(ds, MustDate("2024-06-30"))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
