// internal/giving/implementation.go
package giving

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/imports"
	"shepherd/internal/pkg/eventstore"
	"shepherd/internal/pkg/httputil"
	"shepherd/internal/pkg/logger"
	"shepherd/internal/pkg/pgutil"
)

const giftColumns = `id, member_id, date_given, service_id, current, mission, memorials, debt, school, miscellaneous, COALESCE(notes, '')`

var givingRoles = []auth.Role{auth.RoleAdmin, auth.RoleStaff}

// service implements the Service interface.
type service struct {
	events        *eventstore.Store
	db            *sql.DB
	invalidator   Invalidator
	importLimiter *rate.Limiter
	now           func() time.Time
}

// NewService creates a new giving service instance. inv may be nil when
// reports are not cached.
func NewService(es *eventstore.Store, db *sql.DB, inv Invalidator, importsPerMinute int) Service {
	if importsPerMinute <= 0 {
		importsPerMinute = 5
	}
	return &service{
		events:        es,
		db:            db,
		invalidator:   inv,
		importLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(importsPerMinute)), importsPerMinute),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) RecordGift(ctx context.Context, scope auth.Scope, in GiftInput) (*analytics.GivingRecord, error) {
	if !scope.Allows(givingRoles...) {
		return nil, auth.ErrForbidden
	}
	rec, err := toRecord(in)
	if err != nil {
		return nil, err
	}

	err = pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM members WHERE church_id = $1 AND id = $2)`, scope.ChurchID, rec.MemberID, ErrUnknownMember); err != nil {
			return err
		}
		if rec.ServiceID != nil {
			if err := exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM services WHERE church_id = $1 AND id = $2)`, scope.ChurchID, *rec.ServiceID, ErrUnknownService); err != nil {
				return err
			}
		}
		return s.insertGift(ctx, tx, scope, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("record gift: %w", err)
	}
	s.invalidate(ctx, scope.ChurchID)
	return &rec, nil
}

// toRecord validates in and resolves its amounts to the categorized form.
func toRecord(in GiftInput) (analytics.GivingRecord, error) {
	in.Notes = strings.TrimSpace(in.Notes)
	if err := httputil.Validate.Struct(in); err != nil {
		return analytics.GivingRecord{}, fmt.Errorf("%w: %v", ErrInvalidGift, err)
	}
	date, err := analytics.ParseCalendarDate(in.DateGiven)
	if err != nil {
		return analytics.GivingRecord{}, err
	}

	var amounts analytics.Amounts
	switch {
	case in.Amounts != nil && in.Amount != nil:
		return analytics.GivingRecord{}, ErrAmountAmbiguous
	case in.Amounts != nil:
		amounts = *in.Amounts
	case in.Amount != nil:
		amounts = analytics.LegacyAmount(*in.Amount)
	}
	if err := checkAmounts(amounts); err != nil {
		return analytics.GivingRecord{}, err
	}

	return analytics.GivingRecord{
		ID:        uuid.New(),
		MemberID:  in.MemberID,
		DateGiven: date,
		ServiceID: in.ServiceID,
		Amounts:   amounts,
		Notes:     in.Notes,
	}, nil
}

func checkAmounts(a analytics.Amounts) error {
	if a.HasNegative() {
		return ErrNegativeAmount
	}
	for _, c := range a.Categories() {
		if !c.Value.Equal(c.Value.Round(2)) {
			return ErrFractionalCents
		}
	}
	if !a.Total().IsPositive() {
		return ErrNoAmount
	}
	return nil
}

func (s *service) insertGift(ctx context.Context, tx *sql.Tx, scope auth.Scope, rec analytics.GivingRecord) error {
	ev, err := eventstore.NewEvent("GiftRecorded", GiftRecordedEvent{GivingRecord: rec})
	if err != nil {
		return err
	}
	if err := s.events.AppendTx(ctx, tx, stream(scope, rec.ID), 0, ev); err != nil {
		return err
	}
	a := rec.Amounts
	_, err = tx.ExecContext(ctx, `
		INSERT INTO giving (id, church_id, member_id, date_given, service_id,
			current, mission, memorials, debt, school, miscellaneous, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13)
	`, rec.ID, scope.ChurchID, rec.MemberID, rec.DateGiven, rec.ServiceID,
		a.Current, a.Mission, a.Memorials, a.Debt, a.School, a.Miscellaneous, rec.Notes, s.now())
	if err != nil {
		return fmt.Errorf("insert gift: %w", err)
	}
	return nil
}

func (s *service) ListGifts(ctx context.Context, scope auth.Scope, filter GiftFilter) ([]analytics.GivingRecord, error) {
	if !scope.Allows(givingRoles...) {
		return nil, auth.ErrForbidden
	}
	if err := filter.Range.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + giftColumns + ` FROM giving WHERE church_id = $1 AND date_given BETWEEN $2 AND $3`
	args := []any{scope.ChurchID, filter.Range.Start, filter.Range.End}
	if filter.MemberID != nil {
		query += ` AND member_id = $4`
		args = append(args, *filter.MemberID)
	}
	query += ` ORDER BY date_given, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list gifts: %w", err)
	}
	defer rows.Close()

	gifts := []analytics.GivingRecord{}
	for rows.Next() {
		var (
			g       analytics.GivingRecord
			service uuid.NullUUID
		)
		if err := rows.Scan(&g.ID, &g.MemberID, &g.DateGiven, &service,
			&g.Amounts.Current, &g.Amounts.Mission, &g.Amounts.Memorials,
			&g.Amounts.Debt, &g.Amounts.School, &g.Amounts.Miscellaneous, &g.Notes); err != nil {
			return nil, fmt.Errorf("scan gift: %w", err)
		}
		if service.Valid {
			id := service.UUID
			g.ServiceID = &id
		}
		gifts = append(gifts, g)
	}
	return gifts, rows.Err()
}

func (s *service) DeleteGift(ctx context.Context, scope auth.Scope, id uuid.UUID) error {
	if !scope.Allows(givingRoles...) {
		return auth.ErrForbidden
	}
	err := pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM giving WHERE church_id = $1 AND id = $2`, scope.ChurchID, id)
		if err != nil {
			return fmt.Errorf("delete gift: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrGiftNotFound
		}
		ev, err := eventstore.NewEvent("GiftDeleted", GiftDeletedEvent{ID: id})
		if err != nil {
			return err
		}
		// Gifts are never edited, so the stream holds only the recording.
		return s.events.AppendTx(ctx, tx, stream(scope, id), 1, ev)
	})
	if err != nil {
		return fmt.Errorf("delete gift: %w", err)
	}
	s.invalidate(ctx, scope.ChurchID)
	return nil
}

// ImportGiving records every valid row of a giving spreadsheet. Each row's
// envelope is credited to the head of the household holding it; rows with an
// unknown envelope are reported and skipped.
func (s *service) ImportGiving(ctx context.Context, scope auth.Scope, src io.Reader) (*ImportResult, error) {
	if !scope.Allows(givingRoles...) {
		return nil, auth.ErrForbidden
	}
	if !s.importLimiter.Allow() {
		return nil, ErrImportRateLimited
	}

	rows, rowErrs, err := imports.ParseGiving(src)
	if err != nil {
		return nil, err
	}
	heads, err := s.envelopeHeads(ctx, scope.ChurchID, rows)
	if err != nil {
		return nil, fmt.Errorf("import giving: %w", err)
	}

	result := &ImportResult{Total: decimal.Zero, Errors: rowErrs}
	var records []analytics.GivingRecord
	for _, row := range rows {
		head, ok := heads[row.EnvelopeNumber]
		if !ok {
			result.Errors = append(result.Errors, imports.RowError{
				Line:    row.Line,
				Field:   "envelopeNumber",
				Message: fmt.Sprintf("no member has envelope %s", row.EnvelopeNumber),
			})
			continue
		}
		if err := checkAmounts(row.Amounts); err != nil {
			result.Errors = append(result.Errors, imports.RowError{Line: row.Line, Field: "amount", Message: err.Error()})
			continue
		}
		records = append(records, analytics.GivingRecord{
			ID:        uuid.New(),
			MemberID:  head.ID,
			DateGiven: row.DateGiven,
			Amounts:   row.Amounts,
			Notes:     row.Notes,
		})
	}
	if result.Errors == nil {
		result.Errors = []imports.RowError{}
	}
	slices.SortStableFunc(result.Errors, func(a, b imports.RowError) int { return cmp.Compare(a.Line, b.Line) })

	err = pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, rec := range records {
			if err := s.insertGift(ctx, tx, scope, rec); err != nil {
				return err
			}
			result.Imported++
			result.Total = result.Total.Add(rec.Amounts.Total())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import giving: %w", err)
	}

	if result.Imported > 0 {
		s.invalidate(ctx, scope.ChurchID)
	}
	logger.Info("giving imported",
		"church_id", scope.ChurchID,
		"imported", result.Imported,
		"total", result.Total.StringFixed(2),
		"rejected", len(result.Errors),
	)
	return result, nil
}

// envelopeHeads maps each envelope number in rows to the member credited
// with its gifts.
func (s *service) envelopeHeads(ctx context.Context, churchID uuid.UUID, rows []imports.GivingRow) (map[string]analytics.Person, error) {
	envelopes := make(pq.StringArray, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if !seen[row.EnvelopeNumber] {
			seen[row.EnvelopeNumber] = true
			envelopes = append(envelopes, row.EnvelopeNumber)
		}
	}
	heads := make(map[string]analytics.Person, len(envelopes))
	if len(envelopes) == 0 {
		return heads, nil
	}

	res, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, sex, date_of_birth, envelope_number
		FROM members
		WHERE church_id = $1 AND envelope_number = ANY($2::text[])
		ORDER BY last_name, first_name, id
	`, churchID, envelopes)
	if err != nil {
		return nil, fmt.Errorf("query envelopes: %w", err)
	}
	defer res.Close()

	holders := make(map[string][]analytics.Person)
	for res.Next() {
		var (
			p   analytics.Person
			sex sql.NullString
			dob analytics.CalendarDate
		)
		if err := res.Scan(&p.ID, &p.FirstName, &p.LastName, &sex, &dob, &p.EnvelopeNumber); err != nil {
			return nil, fmt.Errorf("scan envelope holder: %w", err)
		}
		p.Sex = analytics.Sex(sex.String)
		if !dob.IsZero() {
			p.DateOfBirth = &dob
		}
		holders[p.EnvelopeNumber] = append(holders[p.EnvelopeNumber], p)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	for envelope, people := range holders {
		if head, ok := analytics.ResolveHead(people); ok {
			heads[envelope] = head
		}
	}
	return heads, nil
}

func (s *service) invalidate(ctx context.Context, churchID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, churchID); err != nil {
		logger.Warn("report cache invalidation failed", "church_id", churchID, "err", err)
	}
}

func exists(ctx context.Context, tx *sql.Tx, query string, churchID, id uuid.UUID, missing error) error {
	var ok bool
	if err := tx.QueryRowContext(ctx, query, churchID, id).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return missing
	}
	return nil
}

func stream(scope auth.Scope, id uuid.UUID) eventstore.Stream {
	s := eventstore.Stream{ChurchID: scope.ChurchID, AggregateID: id, AggregateType: aggregateGift}
	if scope.UserID != uuid.Nil {
		actor := scope.UserID
		s.ActorID = &actor
	}
	return s
}
