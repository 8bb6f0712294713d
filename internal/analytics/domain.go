package analytics

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceType classifies a worship service.
type ServiceType string

const (
	DivineService ServiceType = "divine_service"
	MidweekLent   ServiceType = "midweek_lent"
	MidweekAdvent ServiceType = "midweek_advent"
	Festival      ServiceType = "festival"

	// OtherService is the giving bucket for gifts not attributable to a service.
	OtherService ServiceType = "other"
)

// ServiceTypes lists the recorded service types in display order.
var ServiceTypes = []ServiceType{DivineService, MidweekLent, MidweekAdvent, Festival}

func (t ServiceType) Valid() bool {
	switch t {
	case DivineService, MidweekLent, MidweekAdvent, Festival:
		return true
	}
	return false
}

// Sex as recorded on the member directory.
type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

// Participation is a member's standing in the congregation.
type Participation string

const (
	ParticipationActive      Participation = "active"
	ParticipationInactive    Participation = "inactive"
	ParticipationVisitor     Participation = "visitor"
	ParticipationTransferred Participation = "transferred"
	ParticipationDeceased    Participation = "deceased"
)

func (p Participation) Valid() bool {
	switch p {
	case ParticipationActive, ParticipationInactive, ParticipationVisitor, ParticipationTransferred, ParticipationDeceased:
		return true
	}
	return false
}

// Service is a dated worship event.
type Service struct {
	ID   uuid.UUID    `json:"id"`
	Date CalendarDate `json:"date"`
	Type ServiceType  `json:"type"`
	Time string       `json:"time,omitempty"`
}

// AttendanceRecord is one member's mark on one service's sheet.
type AttendanceRecord struct {
	MemberID      uuid.UUID `json:"memberId"`
	ServiceID     uuid.UUID `json:"serviceId"`
	Attended      bool      `json:"attended"`
	TookCommunion bool      `json:"tookCommunion"`
}

// Person is the slice of a member record the aggregator needs.
type Person struct {
	ID             uuid.UUID     `json:"id"`
	FirstName      string        `json:"firstName"`
	LastName       string        `json:"lastName"`
	Sex            Sex           `json:"sex,omitempty"`
	DateOfBirth    *CalendarDate `json:"dateOfBirth,omitempty"`
	HouseholdID    *uuid.UUID    `json:"householdId,omitempty"`
	EnvelopeNumber string        `json:"envelopeNumber,omitempty"`
	Participation  Participation `json:"participation"`
}

func (p Person) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// IsActiveMember is the member side of the member/guest split.
func (p Person) IsActiveMember() bool {
	return p.Participation == ParticipationActive
}

// Amounts is the canonical categorized giving schema. Absent categories are zero.
type Amounts struct {
	Current       decimal.Decimal `json:"current"`
	Mission       decimal.Decimal `json:"mission"`
	Memorials     decimal.Decimal `json:"memorials"`
	Debt          decimal.Decimal `json:"debt"`
	School        decimal.Decimal `json:"school"`
	Miscellaneous decimal.Decimal `json:"miscellaneous"`
}

// LegacyAmount adapts the flat single-amount schema into the general fund.
func LegacyAmount(amount decimal.Decimal) Amounts {
	return Amounts{Current: amount}
}

func (a Amounts) Total() decimal.Decimal {
	return a.Current.Add(a.Mission).Add(a.Memorials).Add(a.Debt).Add(a.School).Add(a.Miscellaneous)
}

func (a Amounts) Add(o Amounts) Amounts {
	return Amounts{
		Current:       a.Current.Add(o.Current),
		Mission:       a.Mission.Add(o.Mission),
		Memorials:     a.Memorials.Add(o.Memorials),
		Debt:          a.Debt.Add(o.Debt),
		School:        a.School.Add(o.School),
		Miscellaneous: a.Miscellaneous.Add(o.Miscellaneous),
	}
}

// HasNegative reports whether any category is below zero.
func (a Amounts) HasNegative() bool {
	for _, c := range a.Categories() {
		if c.Value.IsNegative() {
			return true
		}
	}
	return false
}

// Category is a named giving fund amount.
type Category struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

// Categories returns the six funds in display order.
func (a Amounts) Categories() []Category {
	return []Category{
		{Name: "Current", Value: a.Current},
		{Name: "Mission", Value: a.Mission},
		{Name: "Memorials", Value: a.Memorials},
		{Name: "Debt", Value: a.Debt},
		{Name: "School", Value: a.School},
		{Name: "Miscellaneous", Value: a.Miscellaneous},
	}
}

// GivingRecord is one recorded gift.
type GivingRecord struct {
	ID        uuid.UUID    `json:"id"`
	MemberID  uuid.UUID    `json:"memberId"`
	DateGiven CalendarDate `json:"dateGiven"`
	ServiceID *uuid.UUID   `json:"serviceId,omitempty"`
	Amounts   Amounts      `json:"amounts"`
	Notes     string       `json:"notes,omitempty"`
}

// Household groups members under an optional explicit name.
type Household struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name,omitempty"`
	Members []Person  `json:"members"`
}

// AttendanceDataset is the church-scoped, date-bounded input for attendance
// reports. Members holds every directory entry referenced by Records.
type AttendanceDataset struct {
	Range    DateRange
	Services []Service
	Records  []AttendanceRecord
	Members  map[uuid.UUID]Person
}

// GivingDataset is the church-scoped, date-bounded input for giving reports.
type GivingDataset struct {
	Range      DateRange
	Records    []GivingRecord
	Services   []Service
	Members    map[uuid.UUID]Person
	Households map[uuid.UUID]Household
}
