package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/export"
	"shepherd/internal/pkg/logger"
)

// slowReport is the build time above which a report is logged.
const slowReport = 2 * time.Second

// givingRoles may see per-member financial data.
var givingRoles = []auth.Role{auth.RoleAdmin, auth.RoleStaff}

type service struct {
	repo      Repository
	cache     Cache
	directory export.EnvelopeDirectory
	tracer    trace.Tracer
	generated metric.Int64Counter
	now       func() time.Time
}

// NewService wires the reporting service. A nil cache disables caching;
// directory resolves envelope numbers for the export.
func NewService(repo Repository, cache Cache, directory export.EnvelopeDirectory) Service {
	if cache == nil {
		cache = nopCache{}
	}
	counter, err := otel.Meter("shepherd/reporting").Int64Counter("reports.generated",
		metric.WithDescription("Reports served, by kind and cache outcome"))
	if err != nil {
		logger.Warn("create report counter", "err", err)
	}
	return &service{
		repo:      repo,
		cache:     cache,
		directory: directory,
		tracer:    otel.Tracer("shepherd/reporting"),
		generated: counter,
		now:       time.Now,
	}
}

func (s *service) AttendanceReport(ctx context.Context, scope auth.Scope, r analytics.DateRange) (*analytics.AttendanceReport, error) {
	return cached(ctx, s, scope, "attendance", r, nil, func(ctx context.Context) (*analytics.AttendanceReport, error) {
		ds, err := s.repo.AttendanceDataset(ctx, scope.ChurchID, r)
		if err != nil {
			return nil, fmt.Errorf("load attendance: %w", err)
		}
		return analytics.BuildAttendanceReport(ds)
	})
}

func (s *service) GivingReport(ctx context.Context, scope auth.Scope, r analytics.DateRange, householdID *uuid.UUID) (*analytics.GivingReport, error) {
	if !scope.Allows(givingRoles...) {
		return nil, auth.ErrForbidden
	}
	return cached(ctx, s, scope, "giving", r, householdID, func(ctx context.Context) (*analytics.GivingReport, error) {
		ds, err := s.repo.GivingDataset(ctx, scope.ChurchID, r, householdID)
		if err != nil {
			return nil, fmt.Errorf("load giving: %w", err)
		}
		return analytics.BuildGivingReport(ds, analytics.DateOf(s.now()))
	})
}

// GivingExport is never cached: head-of-household names come from the live
// member directory.
func (s *service) GivingExport(ctx context.Context, scope auth.Scope, r analytics.DateRange, householdID *uuid.UUID) ([]export.GivingRow, error) {
	if !scope.Allows(givingRoles...) {
		return nil, auth.ErrForbidden
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "reporting.giving_export", trace.WithAttributes(
		attribute.String("church.id", scope.ChurchID.String()),
		attribute.String("range", r.String()),
	))
	defer span.End()

	ds, err := s.repo.GivingDataset(ctx, scope.ChurchID, r, householdID)
	if err != nil {
		return nil, fmt.Errorf("load giving: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("giving rows: %w", err)
	}
	rows, err := export.BuildGivingRows(ctx, s.directory, scope.ChurchID, ds)
	if err != nil {
		return nil, fmt.Errorf("resolve households: %w", err)
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	s.count(ctx, "giving_export", false)
	return rows, nil
}

// cached serves a report from the cache or builds and stores it. Cache
// failures are logged and the report is rebuilt.
func cached[T any](ctx context.Context, s *service, scope auth.Scope, kind string, r analytics.DateRange, householdID *uuid.UUID, build func(context.Context) (*T, error)) (*T, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "reporting."+kind, trace.WithAttributes(
		attribute.String("church.id", scope.ChurchID.String()),
		attribute.String("range", r.String()),
	))
	defer span.End()

	key := CacheKey(scope.ChurchID, kind, r, householdID)
	var hit T
	ok, err := s.cache.Get(ctx, key, &hit)
	if err != nil {
		logger.Warn("report cache read", "key", key, "err", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if ok {
		s.count(ctx, kind, true)
		return &hit, nil
	}

	start := s.now()
	report, err := build(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if took := s.now().Sub(start); took > slowReport {
		logger.Warn("slow report", "kind", kind, "church", scope.ChurchID, "range", r.String(), "took", took.String())
	}
	if err := s.cache.Set(ctx, key, report); err != nil {
		logger.Warn("report cache write", "key", key, "err", err)
	}
	s.count(ctx, kind, false)
	return report, nil
}

func (s *service) count(ctx context.Context, kind string, hit bool) {
	if s.generated == nil {
		return
	}
	s.generated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("report", kind),
		attribute.Bool("cache.hit", hit),
	))
}
