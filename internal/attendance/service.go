// internal/attendance/service.go
package attendance

import (
	"context"

	"github.com/google/uuid"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
)

// Service defines the interface for worship services and their attendance
// sheets.
type Service interface {
	CreateService(ctx context.Context, scope auth.Scope, in ServiceInput) (*analytics.Service, error)
	ListServices(ctx context.Context, scope auth.Scope, r analytics.DateRange) ([]analytics.Service, error)
	GetSheet(ctx context.Context, scope auth.Scope, serviceID uuid.UUID) (*Sheet, error)
	SubmitSheet(ctx context.Context, scope auth.Scope, serviceID uuid.UUID, expectedVersion int, entries []Entry) (*Sheet, error)
}

// Invalidator drops cached reports after the church's records change.
type Invalidator interface {
	Invalidate(ctx context.Context, churchID uuid.UUID) error
}
