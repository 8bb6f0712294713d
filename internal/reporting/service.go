package reporting

import (
	"context"

	"github.com/google/uuid"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/export"
)

// Service builds dashboard reports for the caller's church.
type Service interface {
	AttendanceReport(ctx context.Context, scope auth.Scope, r analytics.DateRange) (*analytics.AttendanceReport, error)
	GivingReport(ctx context.Context, scope auth.Scope, r analytics.DateRange, householdID *uuid.UUID) (*analytics.GivingReport, error)
	GivingExport(ctx context.Context, scope auth.Scope, r analytics.DateRange, householdID *uuid.UUID) ([]export.GivingRow, error)
}
