// Package reporting serves the attendance and giving dashboards and the giving
// export. It loads church-scoped row sets through a Repository, reduces them
// with package analytics and caches the JSON payloads.
package reporting

import (
	"context"

	"github.com/google/uuid"

	"shepherd/internal/analytics"
)

// Repository loads the row sets a report needs, already filtered by church
// and inclusive date range.
type Repository interface {
	AttendanceDataset(ctx context.Context, churchID uuid.UUID, r analytics.DateRange) (analytics.AttendanceDataset, error)

	// GivingDataset restricts records to members of householdID when it is
	// non-nil, and returns ErrHouseholdNotFound when the household is not the
	// church's.
	GivingDataset(ctx context.Context, churchID uuid.UUID, r analytics.DateRange, householdID *uuid.UUID) (analytics.GivingDataset, error)
}
