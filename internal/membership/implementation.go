// internal/membership/implementation.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/imports"
	"shepherd/internal/pkg/eventstore"
	"shepherd/internal/pkg/httputil"
	"shepherd/internal/pkg/logger"
	"shepherd/internal/pkg/pgutil"
)

const memberColumns = `id, church_id, first_name, last_name, sex, date_of_birth, household_id, envelope_number, participation, email, version, created_at, updated_at`

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

var writeRoles = []auth.Role{auth.RoleAdmin, auth.RoleStaff}

// service implements the Service interface.
type service struct {
	events        *eventstore.Store
	db            *sql.DB
	importLimiter *rate.Limiter
	tracer        trace.Tracer
	now           func() time.Time
}

// NewService creates a new membership service instance. importsPerMinute
// bounds bulk imports across all churches served by this process.
func NewService(es *eventstore.Store, db *sql.DB, importsPerMinute int) Service {
	if importsPerMinute <= 0 {
		importsPerMinute = 5
	}
	return &service{
		events:        es,
		db:            db,
		importLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(importsPerMinute)), importsPerMinute),
		tracer:        otel.Tracer("shepherd/membership"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) AddMember(ctx context.Context, scope auth.Scope, in MemberInput) (*Member, error) {
	if !scope.Allows(writeRoles...) {
		return nil, auth.ErrForbidden
	}
	in = normalize(in)
	if err := httputil.Validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMember, err)
	}

	var m Member
	err := pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if in.HouseholdID != nil {
			if err := householdExists(ctx, tx, scope.ChurchID, *in.HouseholdID); err != nil {
				return err
			}
		}
		var err error
		m, err = s.insertMember(ctx, tx, scope, uuid.New(), in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return &m, nil
}

func (s *service) insertMember(ctx context.Context, tx *sql.Tx, scope auth.Scope, id uuid.UUID, in MemberInput) (Member, error) {
	ev, err := eventstore.NewEvent("MemberAdded", MemberAddedEvent{ID: id, MemberInput: in})
	if err != nil {
		return Member{}, err
	}
	if err := s.events.AppendTx(ctx, tx, stream(scope, id, aggregateMember), 0, ev); err != nil {
		return Member{}, err
	}

	now := s.now()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO members (id, church_id, first_name, last_name, sex, date_of_birth, household_id,
			envelope_number, participation, email, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''), 1, $11, $11)
		RETURNING `+memberColumns,
		id, scope.ChurchID, in.FirstName, in.LastName, in.Sex, in.DateOfBirth, in.HouseholdID,
		in.EnvelopeNumber, in.Participation, in.Email, now)
	return scanMember(row)
}

func (s *service) GetMember(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE church_id = $1 AND id = $2`, scope.ChurchID, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

// UpdateMember replaces the member's writable fields. expectedVersion is the
// version the caller read; a mismatch returns ErrStaleVersion.
func (s *service) UpdateMember(ctx context.Context, scope auth.Scope, id uuid.UUID, expectedVersion int, in MemberInput) (*Member, error) {
	if !scope.Allows(writeRoles...) {
		return nil, auth.ErrForbidden
	}
	in = normalize(in)
	if err := httputil.Validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMember, err)
	}

	var m Member
	err := pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		version, err := lockMember(ctx, tx, scope.ChurchID, id)
		if err != nil {
			return err
		}
		if version != expectedVersion {
			return ErrStaleVersion
		}
		if in.HouseholdID != nil {
			if err := householdExists(ctx, tx, scope.ChurchID, *in.HouseholdID); err != nil {
				return err
			}
		}

		ev, err := eventstore.NewEvent("MemberUpdated", MemberUpdatedEvent{ID: id, MemberInput: in})
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, stream(scope, id, aggregateMember), version, ev); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE members
			SET first_name = $3, last_name = $4, sex = NULLIF($5, ''), date_of_birth = $6, household_id = $7,
				envelope_number = NULLIF($8, ''), participation = $9, email = NULLIF($10, ''),
				version = version + 1, updated_at = $11
			WHERE church_id = $1 AND id = $2
			RETURNING `+memberColumns,
			scope.ChurchID, id, in.FirstName, in.LastName, in.Sex, in.DateOfBirth, in.HouseholdID,
			in.EnvelopeNumber, in.Participation, in.Email, s.now())
		m, err = scanMember(row)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return &m, nil
}

// RemoveMember deletes a member and their attendance marks. Members with
// recorded gifts are kept so giving history stays intact.
func (s *service) RemoveMember(ctx context.Context, scope auth.Scope, id uuid.UUID) error {
	if !scope.Allows(writeRoles...) {
		return auth.ErrForbidden
	}
	err := pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		version, err := lockMember(ctx, tx, scope.ChurchID, id)
		if err != nil {
			return err
		}
		ev, err := eventstore.NewEvent("MemberRemoved", MemberRemovedEvent{ID: id})
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, stream(scope, id, aggregateMember), version, ev); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE church_id = $1 AND id = $2`, scope.ChurchID, id); err != nil {
			if pgutil.IsForeignKeyViolation(err) {
				return ErrMemberHasRecords
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *service) ListMembers(ctx context.Context, scope auth.Scope, filter MemberFilter) ([]Member, error) {
	if filter.Participation != "" && !filter.Participation.Valid() {
		return nil, fmt.Errorf("%w: unknown participation %q", ErrInvalidMember, filter.Participation)
	}

	query := `SELECT ` + memberColumns + ` FROM members WHERE church_id = $1`
	args := []any{scope.ChurchID}
	if filter.EnvelopeNumber != "" {
		args = append(args, strings.TrimSpace(filter.EnvelopeNumber))
		query += fmt.Sprintf(" AND envelope_number = $%d", len(args))
	}
	if filter.HouseholdID != nil {
		args = append(args, *filter.HouseholdID)
		query += fmt.Sprintf(" AND household_id = $%d", len(args))
	}
	if filter.Participation != "" {
		args = append(args, filter.Participation)
		query += fmt.Sprintf(" AND participation = $%d", len(args))
	}
	query += " ORDER BY last_name, first_name, id"

	members, err := queryMembers(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *service) CreateHousehold(ctx context.Context, scope auth.Scope, in HouseholdInput) (*Household, error) {
	if !scope.Allows(writeRoles...) {
		return nil, auth.ErrForbidden
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := httputil.Validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHousehold, err)
	}

	id := uuid.New()
	err := pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.insertHousehold(ctx, tx, scope, id, in); err != nil {
			return err
		}
		for _, memberID := range in.MemberIDs {
			if _, err := s.moveMember(ctx, tx, scope, memberID, &id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create household: %w", err)
	}
	return s.GetHousehold(ctx, scope, id)
}

func (s *service) insertHousehold(ctx context.Context, tx *sql.Tx, scope auth.Scope, id uuid.UUID, in HouseholdInput) error {
	ev, err := eventstore.NewEvent("HouseholdCreated", HouseholdCreatedEvent{ID: id, Name: in.Name, MemberIDs: in.MemberIDs})
	if err != nil {
		return err
	}
	if err := s.events.AppendTx(ctx, tx, stream(scope, id, aggregateHousehold), 0, ev); err != nil {
		return err
	}
	now := s.now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO households (id, church_id, name, version, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), 1, $4, $4)
	`, id, scope.ChurchID, in.Name, now)
	if err != nil {
		return fmt.Errorf("insert household: %w", err)
	}
	return nil
}

// GetHousehold returns the household with its members ordered by name. The
// display name follows the same rule the giving report uses.
func (s *service) GetHousehold(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Household, error) {
	h := Household{ChurchID: scope.ChurchID}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name, ''), version, created_at
		FROM households
		WHERE church_id = $1 AND id = $2
	`, scope.ChurchID, id).Scan(&h.ID, &h.Name, &h.Version, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHouseholdNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}

	h.Members, err = queryMembers(ctx, s.db,
		`SELECT `+memberColumns+` FROM members WHERE church_id = $1 AND household_id = $2 ORDER BY last_name, first_name, id`,
		scope.ChurchID, id)
	if err != nil {
		return nil, fmt.Errorf("get household members: %w", err)
	}
	if h.Members == nil {
		h.Members = []Member{}
	}

	people := make([]analytics.Person, len(h.Members))
	for i, m := range h.Members {
		people[i] = m.Person()
	}
	h.DisplayName = analytics.Household{Name: h.Name, Members: people}.DisplayName()
	return &h, nil
}

// AssignHousehold moves a member into householdID, or out of any household
// when householdID is nil.
func (s *service) AssignHousehold(ctx context.Context, scope auth.Scope, memberID uuid.UUID, householdID *uuid.UUID) (*Member, error) {
	if !scope.Allows(writeRoles...) {
		return nil, auth.ErrForbidden
	}
	var m Member
	err := pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		m, err = s.moveMember(ctx, tx, scope, memberID, householdID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("assign household: %w", err)
	}
	return &m, nil
}

func (s *service) moveMember(ctx context.Context, tx *sql.Tx, scope auth.Scope, memberID uuid.UUID, householdID *uuid.UUID) (Member, error) {
	version, err := lockMember(ctx, tx, scope.ChurchID, memberID)
	if err != nil {
		return Member{}, err
	}
	if householdID != nil {
		if err := householdExists(ctx, tx, scope.ChurchID, *householdID); err != nil {
			return Member{}, err
		}
	}

	ev, err := eventstore.NewEvent("MemberHouseholdChanged", MemberHouseholdChangedEvent{ID: memberID, HouseholdID: householdID})
	if err != nil {
		return Member{}, err
	}
	if err := s.events.AppendTx(ctx, tx, stream(scope, memberID, aggregateMember), version, ev); err != nil {
		return Member{}, err
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE members
		SET household_id = $3, version = version + 1, updated_at = $4
		WHERE church_id = $1 AND id = $2
		RETURNING `+memberColumns,
		scope.ChurchID, memberID, householdID, s.now())
	return scanMember(row)
}

// ImportMembers adds every valid row of a member spreadsheet in a single
// transaction. Rows naming a household join the church's household of that
// name, which is created on first use.
func (s *service) ImportMembers(ctx context.Context, scope auth.Scope, src io.Reader) (*ImportResult, error) {
	if !scope.Allows(writeRoles...) {
		return nil, auth.ErrForbidden
	}
	if !s.importLimiter.Allow() {
		return nil, ErrImportRateLimited
	}

	ctx, span := s.tracer.Start(ctx, "membership.import", trace.WithAttributes(
		attribute.String("church.id", scope.ChurchID.String()),
	))
	defer span.End()

	rows, rowErrs, err := imports.ParseMembers(src)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Errors: rowErrs}
	if result.Errors == nil {
		result.Errors = []imports.RowError{}
	}

	err = pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		households := make(map[string]uuid.UUID)
		for _, row := range rows {
			in := MemberInput{
				FirstName:      row.FirstName,
				LastName:       row.LastName,
				Sex:            row.Sex,
				DateOfBirth:    row.DateOfBirth,
				EnvelopeNumber: row.EnvelopeNumber,
				Participation:  row.Participation,
				Email:          row.Email,
			}
			if row.Household != "" {
				key := strings.ToLower(row.Household)
				id, ok := households[key]
				if !ok {
					var created bool
					id, created, err = s.householdByName(ctx, tx, scope, row.Household)
					if err != nil {
						return fmt.Errorf("line %d: %w", row.Line, err)
					}
					if created {
						result.HouseholdsCreated++
					}
					households[key] = id
				}
				in.HouseholdID = &id
			}
			if _, err := s.insertMember(ctx, tx, scope, uuid.New(), in); err != nil {
				return fmt.Errorf("line %d: %w", row.Line, err)
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import members: %w", err)
	}

	span.SetAttributes(
		attribute.Int("members.imported", result.Imported),
		attribute.Int("rows.rejected", len(result.Errors)),
	)
	logger.Info("members imported",
		"church_id", scope.ChurchID,
		"imported", result.Imported,
		"households_created", result.HouseholdsCreated,
		"rejected", len(result.Errors),
	)
	return result, nil
}

func (s *service) householdByName(ctx context.Context, tx *sql.Tx, scope auth.Scope, name string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM households
		WHERE church_id = $1 AND lower(name) = lower($2)
		ORDER BY created_at
		LIMIT 1
	`, scope.ChurchID, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("find household %q: %w", name, err)
	}
	id = uuid.New()
	if err := s.insertHousehold(ctx, tx, scope, id, HouseholdInput{Name: name}); err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// Activity pages through the church's change log, newest first.
func (s *service) Activity(ctx context.Context, scope auth.Scope, beforeID int64, limit int) ([]eventstore.Event, error) {
	if !scope.Allows(writeRoles...) {
		return nil, auth.ErrForbidden
	}
	switch {
	case limit <= 0:
		limit = defaultActivityLimit
	case limit > maxActivityLimit:
		limit = maxActivityLimit
	}
	events, err := s.events.Feed(ctx, scope.ChurchID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}
	if events == nil {
		events = []eventstore.Event{}
	}
	return events, nil
}

func stream(scope auth.Scope, id uuid.UUID, aggregate string) eventstore.Stream {
	s := eventstore.Stream{ChurchID: scope.ChurchID, AggregateID: id, AggregateType: aggregate}
	if scope.UserID != uuid.Nil {
		actor := scope.UserID
		s.ActorID = &actor
	}
	return s
}

func normalize(in MemberInput) MemberInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.EnvelopeNumber = strings.TrimSpace(in.EnvelopeNumber)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Participation == "" {
		in.Participation = analytics.ParticipationActive
	}
	return in
}

func lockMember(ctx context.Context, tx *sql.Tx, churchID, id uuid.UUID) (int, error) {
	var version int
	err := tx.QueryRowContext(ctx, `
		SELECT version FROM members WHERE church_id = $1 AND id = $2 FOR UPDATE
	`, churchID, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrMemberNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock member: %w", err)
	}
	return version, nil
}

func householdExists(ctx context.Context, tx *sql.Tx, churchID, id uuid.UUID) error {
	var ok bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM households WHERE church_id = $1 AND id = $2)
	`, churchID, id).Scan(&ok)
	if err != nil {
		return fmt.Errorf("check household: %w", err)
	}
	if !ok {
		return ErrHouseholdNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(sc scanner) (Member, error) {
	var (
		m         Member
		sex       sql.NullString
		dob       analytics.CalendarDate
		household uuid.NullUUID
		envelope  sql.NullString
		email     sql.NullString
	)
	err := sc.Scan(&m.ID, &m.ChurchID, &m.FirstName, &m.LastName, &sex, &dob, &household,
		&envelope, &m.Participation, &email, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Member{}, err
	}
	m.Sex = analytics.Sex(sex.String)
	m.EnvelopeNumber = envelope.String
	m.Email = email.String
	if !dob.IsZero() {
		m.DateOfBirth = &dob
	}
	if household.Valid {
		id := household.UUID
		m.HouseholdID = &id
	}
	return m, nil
}

func queryMembers(ctx context.Context, db *sql.DB, query string, args ...any) ([]Member, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
