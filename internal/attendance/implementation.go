// internal/attendance/implementation.go
package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/pkg/eventstore"
	"shepherd/internal/pkg/httputil"
	"shepherd/internal/pkg/logger"
	"shepherd/internal/pkg/pgutil"
)

var writeRoles = []auth.Role{auth.RoleAdmin, auth.RoleStaff}

// service implements the Service interface.
type service struct {
	events      *eventstore.Store
	db          *sql.DB
	invalidator Invalidator
	now         func() time.Time
}

// NewService creates a new attendance service instance. inv may be nil when
// reports are not cached.
func NewService(es *eventstore.Store, db *sql.DB, inv Invalidator) Service {
	return &service{
		events:      es,
		db:          db,
		invalidator: inv,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) CreateService(ctx context.Context, scope auth.Scope, in ServiceInput) (*analytics.Service, error) {
	if !scope.Allows(writeRoles...) {
		return nil, auth.ErrForbidden
	}
	in.Time = strings.TrimSpace(in.Time)
	if err := httputil.Validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidService, err)
	}
	date, err := analytics.ParseCalendarDate(in.Date)
	if err != nil {
		return nil, err
	}

	svc := analytics.Service{ID: uuid.New(), Date: date, Type: in.Type, Time: in.Time}
	err = pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		ev, err := eventstore.NewEvent("ServiceCreated", ServiceCreatedEvent{ID: svc.ID, Date: date, Type: svc.Type, Time: svc.Time})
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, stream(scope, svc.ID), 0, ev); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO services (id, church_id, service_date, service_type, service_time, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		`, svc.ID, scope.ChurchID, svc.Date, svc.Type, svc.Time, s.now())
		if pgutil.IsUniqueViolation(err) {
			return ErrServiceExists
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return &svc, nil
}

func (s *service) ListServices(ctx context.Context, scope auth.Scope, r analytics.DateRange) ([]analytics.Service, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_date, service_type, COALESCE(service_time, '')
		FROM services
		WHERE church_id = $1 AND service_date BETWEEN $2 AND $3
		ORDER BY service_date, service_type
	`, scope.ChurchID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := []analytics.Service{}
	for rows.Next() {
		var svc analytics.Service
		if err := rows.Scan(&svc.ID, &svc.Date, &svc.Type, &svc.Time); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *service) GetSheet(ctx context.Context, scope auth.Scope, serviceID uuid.UUID) (*Sheet, error) {
	svc, err := getService(ctx, s.db, scope.ChurchID, serviceID)
	if err != nil {
		return nil, err
	}
	sheet := &Sheet{Service: svc, Entries: []Entry{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.member_id, a.attended, a.took_communion
		FROM attendance a
		JOIN members m ON m.id = a.member_id
		WHERE a.church_id = $1 AND a.service_id = $2
		ORDER BY m.last_name, m.first_name, m.id
	`, scope.ChurchID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("query sheet: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.MemberID, &e.Attended, &e.TookCommunion); err != nil {
			return nil, fmt.Errorf("scan sheet entry: %w", err)
		}
		sheet.Entries = append(sheet.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if sheet.Version, err = s.events.Version(ctx, serviceID); err != nil {
		return nil, err
	}
	return sheet, nil
}

// SubmitSheet replaces the service's sheet with entries: listed members are
// upserted and everyone else's mark is deleted, in one transaction.
func (s *service) SubmitSheet(ctx context.Context, scope auth.Scope, serviceID uuid.UUID, expectedVersion int, entries []Entry) (*Sheet, error) {
	if !scope.Allows(writeRoles...) {
		return nil, auth.ErrForbidden
	}
	ids, err := checkEntries(entries)
	if err != nil {
		return nil, err
	}

	err = pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getService(ctx, tx, scope.ChurchID, serviceID); err != nil {
			return err
		}
		if len(ids) > 0 {
			var known int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM members WHERE church_id = $1 AND id = ANY($2::uuid[])
			`, scope.ChurchID, pgutil.UUIDArray(ids)).Scan(&known)
			if err != nil {
				return fmt.Errorf("check members: %w", err)
			}
			if known != len(ids) {
				return ErrUnknownMember
			}
		}

		removed, err := removedMembers(ctx, tx, serviceID, ids)
		if err != nil {
			return err
		}
		ev, err := eventstore.NewEvent("SheetSubmitted", SheetSubmittedEvent{ServiceID: serviceID, Entries: entries, Removed: removed})
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, stream(scope, serviceID), expectedVersion, ev); err != nil {
			return err
		}

		if len(removed) > 0 {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM attendance WHERE service_id = $1 AND member_id = ANY($2::uuid[])
			`, serviceID, pgutil.UUIDArray(removed)); err != nil {
				return fmt.Errorf("delete removed marks: %w", err)
			}
		}
		if len(entries) == 0 {
			return nil
		}

		attended := make(pq.BoolArray, len(entries))
		communed := make(pq.BoolArray, len(entries))
		for i, e := range entries {
			attended[i], communed[i] = e.Attended, e.TookCommunion
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attendance (member_id, service_id, church_id, attended, took_communion, updated_at)
			SELECT m, $2, $3, a, c, $6
			FROM unnest($1::uuid[], $4::bool[], $5::bool[]) AS t(m, a, c)
			ON CONFLICT (member_id, service_id) DO UPDATE
			SET attended = EXCLUDED.attended, took_communion = EXCLUDED.took_communion, updated_at = EXCLUDED.updated_at
		`, pgutil.UUIDArray(ids), serviceID, scope.ChurchID, attended, communed, s.now())
		if err != nil {
			return fmt.Errorf("upsert marks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit sheet: %w", err)
	}

	s.invalidate(ctx, scope.ChurchID)
	return s.GetSheet(ctx, scope, serviceID)
}

func (s *service) invalidate(ctx context.Context, churchID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, churchID); err != nil {
		logger.Warn("report cache invalidation failed", "church_id", churchID, "err", err)
	}
}

// checkEntries rejects communion without attendance and repeated members,
// and returns the member IDs in sheet order.
func checkEntries(entries []Entry) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(entries))
	seen := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		if e.MemberID == uuid.Nil {
			return nil, fmt.Errorf("%w: missing member ID", ErrInvalidService)
		}
		if e.TookCommunion && !e.Attended {
			return nil, ErrCommunionWithoutAttendance
		}
		if _, dup := seen[e.MemberID]; dup {
			return nil, ErrDuplicateEntry
		}
		seen[e.MemberID] = struct{}{}
		ids = append(ids, e.MemberID)
	}
	return ids, nil
}

func removedMembers(ctx context.Context, tx *sql.Tx, serviceID uuid.UUID, keep []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT member_id FROM attendance WHERE service_id = $1 AND member_id <> ALL($2::uuid[])
	`, serviceID, pgutil.UUIDArray(keep))
	if err != nil {
		return nil, fmt.Errorf("query removed marks: %w", err)
	}
	defer rows.Close()

	var removed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		removed = append(removed, id)
	}
	return removed, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getService(ctx context.Context, q queryRower, churchID, id uuid.UUID) (analytics.Service, error) {
	var svc analytics.Service
	err := q.QueryRowContext(ctx, `
		SELECT id, service_date, service_type, COALESCE(service_time, '')
		FROM services
		WHERE church_id = $1 AND id = $2
	`, churchID, id).Scan(&svc.ID, &svc.Date, &svc.Type, &svc.Time)
	if errors.Is(err, sql.ErrNoRows) {
		return svc, ErrServiceNotFound
	}
	if err != nil {
		return svc, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

func stream(scope auth.Scope, id uuid.UUID) eventstore.Stream {
	s := eventstore.Stream{ChurchID: scope.ChurchID, AggregateID: id, AggregateType: aggregateService}
	if scope.UserID != uuid.Nil {
		actor := scope.UserID
		s.ActorID = &actor
	}
	return s
}
