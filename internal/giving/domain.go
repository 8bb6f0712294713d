// internal/giving/domain.go
package giving

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shepherd/internal/analytics"
	"shepherd/internal/imports"
)

// GiftInput records one gift. Exactly one of Amounts (categorized) and Amount
// (legacy flat amount, credited to the general fund) must be set.
type GiftInput struct {
	MemberID  uuid.UUID          `json:"memberId" validate:"required"`
	DateGiven string             `json:"dateGiven" validate:"required,datetime=2006-01-02"`
	ServiceID *uuid.UUID         `json:"serviceId,omitempty"`
	Amounts   *analytics.Amounts `json:"amounts,omitempty"`
	Amount    *decimal.Decimal   `json:"amount,omitempty"`
	Notes     string             `json:"notes,omitempty" validate:"max=500"`
}

// GiftFilter narrows ListGifts to a date range and optionally one member.
type GiftFilter struct {
	Range    analytics.DateRange
	MemberID *uuid.UUID
}

// ImportResult reports a bulk giving import.
type ImportResult struct {
	Imported int                `json:"imported"`
	Total    decimal.Decimal    `json:"total"`
	Errors   []imports.RowError `json:"errors"`
}

// GiftRecordedEvent is appended when a gift is recorded.
type GiftRecordedEvent struct {
	analytics.GivingRecord
}

// GiftDeletedEvent is appended when a gift is deleted.
type GiftDeletedEvent struct {
	ID uuid.UUID `json:"id"`
}

const aggregateGift = "gift"
