package analytics

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AttributionWindow is how far, in days, a gift may sit from the service it
// is credited to when it carries no explicit service id.
const AttributionWindow = 3

// Validate checks giving rows once, at the ingestion boundary.
func (ds GivingDataset) Validate() error {
	for _, rec := range ds.Records {
		if rec.MemberID == uuid.Nil {
			return fmt.Errorf("%w: giving record %s has no member", ErrInvalidRecord, rec.ID)
		}
		if rec.Amounts.HasNegative() {
			return fmt.Errorf("%w: giving record %s has a negative amount", ErrInvalidRecord, rec.ID)
		}
	}
	return nil
}

type serviceIndex struct {
	byID   map[uuid.UUID]Service
	sorted []Service
}

func newServiceIndex(services []Service) serviceIndex {
	ix := serviceIndex{byID: make(map[uuid.UUID]Service, len(services))}
	for _, s := range services {
		ix.byID[s.ID] = s
	}
	ix.sorted = append(ix.sorted, services...)
	priority := make(map[ServiceType]int, len(ServiceTypes))
	for i, t := range ServiceTypes {
		priority[t] = i
	}
	sort.SliceStable(ix.sorted, func(i, j int) bool {
		a, b := ix.sorted[i], ix.sorted[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		return priority[a.Type] < priority[b.Type]
	})
	return ix
}

// attribute picks the service type a gift is credited to: the explicit
// service, else the nearest service within the window (earlier wins ties),
// else OtherService.
func (ix serviceIndex) attribute(rec GivingRecord) ServiceType {
	if rec.ServiceID != nil {
		if s, ok := ix.byID[*rec.ServiceID]; ok {
			return s.Type
		}
	}
	best := -1
	bestDist := AttributionWindow + 1
	for i, s := range ix.sorted {
		dist := s.Date.DaysUntil(rec.DateGiven)
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return OtherService
	}
	return ix.sorted[best].Type
}

// MonthlyGiving is one point on the giving trend.
type MonthlyGiving struct {
	Month         string                          `json:"month"`
	MonthKey      string                          `json:"monthKey"`
	TotalAmount   decimal.Decimal                 `json:"totalAmount"`
	RecordCount   int                             `json:"recordCount"`
	ByServiceType map[ServiceType]decimal.Decimal `json:"byServiceType"`
}

func emptyByServiceType() map[ServiceType]decimal.Decimal {
	m := make(map[ServiceType]decimal.Decimal, len(ServiceTypes)+1)
	for _, t := range ServiceTypes {
		m[t] = decimal.Zero
	}
	m[OtherService] = decimal.Zero
	return m
}

// MonthlyGivingTrend groups gifts by calendar month of DateGiven.
func MonthlyGivingTrend(ds GivingDataset) []MonthlyGiving {
	ix := newServiceIndex(ds.Services)
	months := make(map[string]*MonthlyGiving)
	keys := make([]string, 0)
	for _, rec := range ds.Records {
		k := rec.DateGiven.MonthKey()
		m, ok := months[k]
		if !ok {
			m = &MonthlyGiving{
				Month:         monthLabel(rec.DateGiven, ds.Range.SpansYears(), true),
				MonthKey:      k,
				TotalAmount:   decimal.Zero,
				ByServiceType: emptyByServiceType(),
			}
			months[k] = m
			keys = append(keys, k)
		}
		total := rec.Amounts.Total()
		m.TotalAmount = m.TotalAmount.Add(total)
		m.RecordCount++
		st := ix.attribute(rec)
		m.ByServiceType[st] = m.ByServiceType[st].Add(total)
	}
	sort.Strings(keys)
	trend := make([]MonthlyGiving, 0, len(keys))
	for _, k := range keys {
		trend = append(trend, *months[k])
	}
	return trend
}

// CategoryBreakdown sums each fund over every record. Funds that sum to zero
// are left out.
func CategoryBreakdown(records []GivingRecord) []Category {
	var sum Amounts
	for _, rec := range records {
		sum = sum.Add(rec.Amounts)
	}
	out := make([]Category, 0, 6)
	for _, c := range sum.Categories() {
		if c.Value.IsZero() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// GivingBucket is a demographic slice of giving.
type GivingBucket struct {
	Name          string          `json:"name"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	RecordCount   int             `json:"recordCount"`
	AverageAmount decimal.Decimal `json:"averageAmount"`
}

const (
	AgeUnder18 = "Under 18"
	Age18To35  = "18-35"
	Age36To55  = "36-55"
	Age56To75  = "56-75"
	AgeOver75  = "Over 75"
	AgeUnknown = "Unknown"

	HouseholdSingle = "Single"
	HouseholdCouple = "Couple"
	HouseholdFamily = "Family"
	HouseholdNone   = "No Household"
)

var (
	ageOrder       = []string{AgeUnder18, Age18To35, Age36To55, Age56To75, AgeOver75, AgeUnknown}
	householdOrder = []string{HouseholdSingle, HouseholdCouple, HouseholdFamily, HouseholdNone}
)

// AgeGroup buckets a date of birth by age on asOf.
func AgeGroup(dob *CalendarDate, asOf CalendarDate) string {
	if dob == nil || dob.IsZero() {
		return AgeUnknown
	}
	age := dob.YearsSince(asOf)
	switch {
	case age < 18:
		return AgeUnder18
	case age <= 35:
		return Age18To35
	case age <= 55:
		return Age36To55
	case age <= 75:
		return Age56To75
	default:
		return AgeOver75
	}
}

// HouseholdType classifies a household by its size.
func HouseholdType(size int) string {
	switch {
	case size <= 0:
		return HouseholdNone
	case size == 1:
		return HouseholdSingle
	case size == 2:
		return HouseholdCouple
	default:
		return HouseholdFamily
	}
}

func bucketize(records []GivingRecord, order []string, classify func(GivingRecord) string) []GivingBucket {
	acc := make(map[string]*GivingBucket, len(order))
	for _, rec := range records {
		name := classify(rec)
		b, ok := acc[name]
		if !ok {
			b = &GivingBucket{Name: name, TotalAmount: decimal.Zero}
			acc[name] = b
		}
		b.TotalAmount = b.TotalAmount.Add(rec.Amounts.Total())
		b.RecordCount++
	}
	out := make([]GivingBucket, 0, len(acc))
	for _, name := range order {
		b, ok := acc[name]
		if !ok {
			continue
		}
		b.AverageAmount = averageAmount(b.TotalAmount, b.RecordCount)
		out = append(out, *b)
	}
	return out
}

// AgeGroupBreakdown groups giving by the giver's age on asOf.
func AgeGroupBreakdown(ds GivingDataset, asOf CalendarDate) []GivingBucket {
	return bucketize(ds.Records, ageOrder, func(rec GivingRecord) string {
		p, ok := ds.Members[rec.MemberID]
		if !ok {
			return AgeUnknown
		}
		return AgeGroup(p.DateOfBirth, asOf)
	})
}

// HouseholdTypeBreakdown groups giving by the size of the giver's household.
func HouseholdTypeBreakdown(ds GivingDataset) []GivingBucket {
	return bucketize(ds.Records, householdOrder, func(rec GivingRecord) string {
		p, ok := ds.Members[rec.MemberID]
		if !ok || p.HouseholdID == nil {
			return HouseholdNone
		}
		h, ok := ds.Households[*p.HouseholdID]
		if !ok {
			return HouseholdNone
		}
		return HouseholdType(len(h.Members))
	})
}

// GivingSummary holds the headline giving figures.
type GivingSummary struct {
	TotalGiving  decimal.Decimal `json:"totalGiving"`
	RecordCount  int             `json:"recordCount"`
	AverageGift  decimal.Decimal `json:"averageGift"`
	UniqueGivers int             `json:"uniqueGivers"`
}

func SummarizeGiving(records []GivingRecord) GivingSummary {
	s := GivingSummary{TotalGiving: decimal.Zero}
	givers := make(map[uuid.UUID]struct{})
	for _, rec := range records {
		s.TotalGiving = s.TotalGiving.Add(rec.Amounts.Total())
		s.RecordCount++
		givers[rec.MemberID] = struct{}{}
	}
	s.UniqueGivers = len(givers)
	s.AverageGift = averageAmount(s.TotalGiving, s.RecordCount)
	return s
}

func averageAmount(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count))).Round(2)
}
