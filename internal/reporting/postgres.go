package reporting

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shepherd/internal/analytics"
)

const personColumns = `id, first_name, last_name, sex, date_of_birth, household_id, envelope_number, participation`

// PostgresRepository reads report row sets from the shared read model.
type PostgresRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, tracer: otel.Tracer("shepherd/reporting/postgres")}
}

func (r *PostgresRepository) AttendanceDataset(ctx context.Context, churchID uuid.UUID, rng analytics.DateRange) (analytics.AttendanceDataset, error) {
	ctx, span := r.tracer.Start(ctx, "reporting.attendance_dataset", trace.WithAttributes(
		attribute.String("church.id", churchID.String()),
		attribute.String("range", rng.String()),
	))
	defer span.End()

	ds := analytics.AttendanceDataset{Range: rng}
	var err error
	if ds.Services, err = r.services(ctx, churchID, rng.Start, rng.End); err != nil {
		return ds, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT a.member_id, a.service_id, a.attended, a.took_communion
		FROM attendance a
		JOIN services s ON s.id = a.service_id
		WHERE s.church_id = $1 AND s.service_date BETWEEN $2 AND $3
		ORDER BY s.service_date, a.service_id
	`, churchID, rng.Start, rng.End)
	if err != nil {
		return ds, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec analytics.AttendanceRecord
		if err := rows.Scan(&rec.MemberID, &rec.ServiceID, &rec.Attended, &rec.TookCommunion); err != nil {
			return ds, fmt.Errorf("scan attendance: %w", err)
		}
		ds.Records = append(ds.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return ds, fmt.Errorf("iterate attendance: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(ds.Records))
	for _, rec := range ds.Records {
		ids = append(ids, rec.MemberID)
	}
	people, err := r.peopleByID(ctx, churchID, ids)
	if err != nil {
		return ds, err
	}
	ds.Members = indexPeople(people)

	span.SetAttributes(
		attribute.Int("services", len(ds.Services)),
		attribute.Int("records", len(ds.Records)),
	)
	return ds, nil
}

func (r *PostgresRepository) GivingDataset(ctx context.Context, churchID uuid.UUID, rng analytics.DateRange, householdID *uuid.UUID) (analytics.GivingDataset, error) {
	ctx, span := r.tracer.Start(ctx, "reporting.giving_dataset", trace.WithAttributes(
		attribute.String("church.id", churchID.String()),
		attribute.String("range", rng.String()),
	))
	defer span.End()

	ds := analytics.GivingDataset{Range: rng}

	query := `
		SELECT id, member_id, date_given, service_id,
		       current, mission, memorials, debt, school, miscellaneous, COALESCE(notes, '')
		FROM giving
		WHERE church_id = $1 AND date_given BETWEEN $2 AND $3`
	args := []any{churchID, rng.Start, rng.End}
	if householdID != nil {
		var exists bool
		err := r.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM households WHERE id = $1 AND church_id = $2)
		`, *householdID, churchID).Scan(&exists)
		if err != nil {
			return ds, fmt.Errorf("check household: %w", err)
		}
		if !exists {
			return ds, ErrHouseholdNotFound
		}
		query += ` AND member_id IN (SELECT id FROM members WHERE household_id = $4)`
		args = append(args, *householdID)
	}
	query += ` ORDER BY date_given, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ds, fmt.Errorf("query giving: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rec     analytics.GivingRecord
			service uuid.NullUUID
			a       = &rec.Amounts
		)
		if err := rows.Scan(&rec.ID, &rec.MemberID, &rec.DateGiven, &service,
			&a.Current, &a.Mission, &a.Memorials, &a.Debt, &a.School, &a.Miscellaneous, &rec.Notes); err != nil {
			return ds, fmt.Errorf("scan giving: %w", err)
		}
		if service.Valid {
			id := service.UUID
			rec.ServiceID = &id
		}
		ds.Records = append(ds.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return ds, fmt.Errorf("iterate giving: %w", err)
	}

	// Gifts near either edge of the range can be credited to services just
	// outside it.
	window := analytics.AttributionWindow
	if ds.Services, err = r.services(ctx, churchID, rng.Start.AddDays(-window), rng.End.AddDays(window)); err != nil {
		return ds, err
	}

	ids := make([]uuid.UUID, 0, len(ds.Records))
	for _, rec := range ds.Records {
		ids = append(ids, rec.MemberID)
	}
	givers, err := r.peopleByID(ctx, churchID, ids)
	if err != nil {
		return ds, err
	}
	ds.Members = indexPeople(givers)

	var householdIDs []uuid.UUID
	for _, p := range givers {
		if p.HouseholdID != nil {
			householdIDs = append(householdIDs, *p.HouseholdID)
		}
	}
	if ds.Households, err = r.households(ctx, churchID, householdIDs); err != nil {
		return ds, err
	}

	span.SetAttributes(attribute.Int("records", len(ds.Records)))
	return ds, nil
}

func (r *PostgresRepository) services(ctx context.Context, churchID uuid.UUID, from, to analytics.CalendarDate) ([]analytics.Service, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, service_date, service_type, COALESCE(service_time, '')
		FROM services
		WHERE church_id = $1 AND service_date BETWEEN $2 AND $3
		ORDER BY service_date, service_type
	`, churchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var out []analytics.Service
	for rows.Next() {
		var s analytics.Service
		if err := rows.Scan(&s.ID, &s.Date, &s.Type, &s.Time); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) peopleByID(ctx context.Context, churchID uuid.UUID, ids []uuid.UUID) ([]analytics.Person, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.people(ctx, `church_id = $1 AND id = ANY($2::uuid[])`, churchID, pq.Array(distinct(ids)))
}

func (r *PostgresRepository) households(ctx context.Context, churchID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]analytics.Household, error) {
	out := make(map[uuid.UUID]analytics.Household)
	if len(ids) == 0 {
		return out, nil
	}
	arg := pq.Array(distinct(ids))

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(name, '')
		FROM households
		WHERE church_id = $1 AND id = ANY($2::uuid[])
	`, churchID, arg)
	if err != nil {
		return nil, fmt.Errorf("query households: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h analytics.Household
		if err := rows.Scan(&h.ID, &h.Name); err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		out[h.ID] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate households: %w", err)
	}

	members, err := r.people(ctx, `church_id = $1 AND household_id = ANY($2::uuid[])`, churchID, arg)
	if err != nil {
		return nil, err
	}
	for _, p := range members {
		h, ok := out[*p.HouseholdID]
		if !ok {
			continue
		}
		h.Members = append(h.Members, p)
		out[h.ID] = h
	}
	return out, nil
}

func (r *PostgresRepository) people(ctx context.Context, where string, args ...any) ([]analytics.Person, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM members WHERE `+where+` ORDER BY last_name, first_name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []analytics.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}

func scanPerson(rows *sql.Rows) (analytics.Person, error) {
	var (
		p         analytics.Person
		sex       sql.NullString
		dob       analytics.CalendarDate
		household uuid.NullUUID
		envelope  sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &sex, &dob, &household, &envelope, &p.Participation); err != nil {
		return p, fmt.Errorf("scan member: %w", err)
	}
	p.Sex = analytics.Sex(sex.String)
	p.EnvelopeNumber = envelope.String
	if !dob.IsZero() {
		p.DateOfBirth = &dob
	}
	if household.Valid {
		id := household.UUID
		p.HouseholdID = &id
	}
	return p, nil
}

func indexPeople(people []analytics.Person) map[uuid.UUID]analytics.Person {
	out := make(map[uuid.UUID]analytics.Person, len(people))
	for _, p := range people {
		out[p.ID] = p
	}
	return out
}

func distinct(ids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id.String())
	}
	return out
}
