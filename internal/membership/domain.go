// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"

	"shepherd/internal/analytics"
	"shepherd/internal/imports"
)

// Member is one entry in a church's member directory. Its JSON form is a
// superset of analytics.Person so directory clients can decode it directly.
type Member struct {
	ID             uuid.UUID               `json:"id"`
	ChurchID       uuid.UUID               `json:"churchId"`
	FirstName      string                  `json:"firstName"`
	LastName       string                  `json:"lastName"`
	Sex            analytics.Sex           `json:"sex,omitempty"`
	DateOfBirth    *analytics.CalendarDate `json:"dateOfBirth,omitempty"`
	HouseholdID    *uuid.UUID              `json:"householdId,omitempty"`
	EnvelopeNumber string                  `json:"envelopeNumber,omitempty"`
	Participation  analytics.Participation `json:"participation"`
	Email          string                  `json:"email,omitempty"`
	Version        int                     `json:"version"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

// Person is the slice of the member the analytics reducers use.
func (m Member) Person() analytics.Person {
	return analytics.Person{
		ID:             m.ID,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		Sex:            m.Sex,
		DateOfBirth:    m.DateOfBirth,
		HouseholdID:    m.HouseholdID,
		EnvelopeNumber: m.EnvelopeNumber,
		Participation:  m.Participation,
	}
}

// MemberInput is the writable part of a member. It is both the add and the
// full-replace update payload.
type MemberInput struct {
	FirstName      string                  `json:"firstName" validate:"required,max=100"`
	LastName       string                  `json:"lastName" validate:"required,max=100"`
	Sex            analytics.Sex           `json:"sex,omitempty" validate:"omitempty,oneof=male female"`
	DateOfBirth    *analytics.CalendarDate `json:"dateOfBirth,omitempty"`
	HouseholdID    *uuid.UUID              `json:"householdId,omitempty"`
	EnvelopeNumber string                  `json:"envelopeNumber,omitempty" validate:"max=20"`
	Participation  analytics.Participation `json:"participation,omitempty" validate:"omitempty,oneof=active inactive visitor transferred deceased"`
	Email          string                  `json:"email,omitempty" validate:"omitempty,email"`
}

// MemberFilter narrows ListMembers. Zero fields do not filter.
type MemberFilter struct {
	EnvelopeNumber string
	HouseholdID    *uuid.UUID
	Participation  analytics.Participation
}

// Household groups members. DisplayName is Name when set, otherwise it is
// synthesised from the members' names.
type Household struct {
	ID          uuid.UUID `json:"id"`
	ChurchID    uuid.UUID `json:"churchId"`
	Name        string    `json:"name,omitempty"`
	DisplayName string    `json:"displayName"`
	Members     []Member  `json:"members"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HouseholdInput creates a household, optionally moving members into it.
type HouseholdInput struct {
	Name      string      `json:"name,omitempty" validate:"max=200"`
	MemberIDs []uuid.UUID `json:"memberIds,omitempty" validate:"max=50"`
}

// ImportResult reports a bulk member import. Rows listed in Errors were
// skipped; everything else was written.
type ImportResult struct {
	Imported          int                `json:"imported"`
	HouseholdsCreated int                `json:"householdsCreated"`
	Errors            []imports.RowError `json:"errors"`
}

// MemberAddedEvent is appended when a member joins the directory.
type MemberAddedEvent struct {
	ID uuid.UUID `json:"id"`
	MemberInput
}

// MemberUpdatedEvent carries the full replacement record.
type MemberUpdatedEvent struct {
	ID uuid.UUID `json:"id"`
	MemberInput
}

// MemberRemovedEvent is appended when a member is deleted.
type MemberRemovedEvent struct {
	ID uuid.UUID `json:"id"`
}

// MemberHouseholdChangedEvent is appended when a member moves household. A
// nil HouseholdID means the member left their household.
type MemberHouseholdChangedEvent struct {
	ID          uuid.UUID  `json:"id"`
	HouseholdID *uuid.UUID `json:"householdId"`
}

// HouseholdCreatedEvent is appended when a household is created.
type HouseholdCreatedEvent struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name,omitempty"`
	MemberIDs []uuid.UUID `json:"memberIds,omitempty"`
}

const (
	aggregateMember    = "member"
	aggregateHousehold = "household"
)
