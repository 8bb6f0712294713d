// internal/attendance/domain.go
package attendance

import (
	"github.com/google/uuid"

	"shepherd/internal/analytics"
)

// ServiceInput schedules a worship service.
type ServiceInput struct {
	Date string                `json:"date" validate:"required,datetime=2006-01-02"`
	Type analytics.ServiceType `json:"type" validate:"required,oneof=divine_service midweek_lent midweek_advent festival"`
	Time string                `json:"time,omitempty" validate:"omitempty,max=20"`
}

// Entry is one member's line on an attendance sheet. Communion implies
// attendance.
type Entry struct {
	MemberID      uuid.UUID `json:"memberId" validate:"required"`
	Attended      bool      `json:"attended"`
	TookCommunion bool      `json:"tookCommunion"`
}

// Sheet is the attendance record of one service. Version is the service's
// event stream version and must be sent back on submit.
type Sheet struct {
	Service analytics.Service `json:"service"`
	Entries []Entry           `json:"entries"`
	Version int               `json:"version"`
}

// Summary counts a sheet the way the attendance report does.
func (s Sheet) Summary() (attended, communed int) {
	for _, e := range s.Entries {
		if e.Attended {
			attended++
		}
		if e.TookCommunion {
			communed++
		}
	}
	return attended, communed
}

// ServiceCreatedEvent is appended when a service is scheduled.
type ServiceCreatedEvent struct {
	ID   uuid.UUID              `json:"id"`
	Date analytics.CalendarDate `json:"date"`
	Type analytics.ServiceType  `json:"type"`
	Time string                 `json:"time,omitempty"`
}

// SheetSubmittedEvent replaces a service's attendance sheet. Removed lists
// members whose marks were dropped.
type SheetSubmittedEvent struct {
	ServiceID uuid.UUID   `json:"serviceId"`
	Entries   []Entry     `json:"entries"`
	Removed   []uuid.UUID `json:"removed,omitempty"`
}

const aggregateService = "service"
