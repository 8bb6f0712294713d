package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/pkg/apperr"
	"shepherd/internal/pkg/eventstore"
)

var (
	fixedNow    = time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	serviceCols = []string{"id", "service_date", "service_type", "service_time"}
)

type recordingInvalidator struct {
	churches []uuid.UUID
	err      error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, churchID uuid.UUID) error {
	r.churches = append(r.churches, churchID)
	return r.err
}

func newTestService(t *testing.T) (*service, sqlmock.Sqlmock, *recordingInvalidator) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	inv := &recordingInvalidator{}
	return &service{
		events:      eventstore.New(db),
		db:          db,
		invalidator: inv,
		now:         func() time.Time { return fixedNow },
	}, mock, inv
}

func staff() auth.Scope {
	return auth.Scope{ChurchID: uuid.New(), UserID: uuid.New(), Role: auth.RoleStaff}
}

func expectAppend(mock sqlmock.Sqlmock, version int) {
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(version))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
}

func TestCreateService(t *testing.T) {
	s, mock, _ := newTestService(t)
	scope := staff()

	mock.ExpectBegin()
	expectAppend(mock, 0)
	mock.ExpectExec(`INSERT INTO services`).
		WithArgs(sqlmock.AnyArg(), scope.ChurchID, "2024-03-03", "divine_service", "10:30", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc, err := s.CreateService(context.Background(), scope, ServiceInput{Date: "2024-03-03", Type: analytics.DivineService, Time: " 10:30 "})
	require.NoError(t, err)
	assert.Equal(t, analytics.MustDate("2024-03-03"), svc.Date)
	assert.Equal(t, "10:30", svc.Time)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateService_Rejects(t *testing.T) {
	s, mock, _ := newTestService(t)

	_, err := s.CreateService(context.Background(), staff(), ServiceInput{Date: "2024-02-30", Type: analytics.DivineService})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = s.CreateService(context.Background(), staff(), ServiceInput{Date: "2024-03-03", Type: "vespers"})
	assert.ErrorIs(t, err, ErrInvalidService)

	_, err = s.CreateService(context.Background(), auth.Scope{Role: auth.RoleViewer}, ServiceInput{Date: "2024-03-03", Type: analytics.Festival})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	mock.ExpectBegin()
	expectAppend(mock, 0)
	mock.ExpectExec(`INSERT INTO services`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()
	_, err = s.CreateService(context.Background(), staff(), ServiceInput{Date: "2024-03-03", Type: analytics.Festival})
	assert.ErrorIs(t, err, ErrServiceExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListServices(t *testing.T) {
	s, mock, _ := newTestService(t)
	scope := staff()
	rng := analytics.DateRange{Start: analytics.MustDate("2024-01-01"), End: analytics.MustDate("2024-01-31")}

	mock.ExpectQuery(`FROM services WHERE church_id = \$1 AND service_date BETWEEN \$2 AND \$3`).
		WithArgs(scope.ChurchID, "2024-01-01", "2024-01-31").
		WillReturnRows(sqlmock.NewRows(serviceCols).
			AddRow(uuid.NewString(), time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), "divine_service", "").
			AddRow(uuid.NewString(), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "festival", "19:00"))

	services, err := s.ListServices(context.Background(), scope, rng)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, analytics.Festival, services[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = s.ListServices(context.Background(), scope, analytics.DateRange{Start: rng.End, End: rng.Start})
	assert.ErrorIs(t, err, analytics.ErrInvalidRange)
}

func TestSubmitSheet(t *testing.T) {
	s, mock, inv := newTestService(t)
	scope := staff()
	serviceID, ruth, john, dropped := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	serviceRow := sqlmock.NewRows(serviceCols).AddRow(serviceID.String(), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), "divine_service", "10:30")

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM services WHERE church_id = \$1 AND id = \$2`).WillReturnRows(serviceRow)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM members WHERE church_id = \$1 AND id = ANY\(\$2::uuid\[\]\)`).
		WithArgs(scope.ChurchID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT member_id FROM attendance WHERE service_id = \$1 AND member_id <> ALL\(\$2::uuid\[\]\)`).
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow(dropped.String()))
	expectAppend(mock, 3)
	mock.ExpectExec(`DELETE FROM attendance WHERE service_id = \$1 AND member_id = ANY`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO attendance .* FROM unnest\(\$1::uuid\[\], \$4::bool\[\], \$5::bool\[\]\) .* ON CONFLICT \(member_id, service_id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), serviceID, scope.ChurchID, sqlmock.AnyArg(), sqlmock.AnyArg(), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	mock.ExpectQuery(`FROM services WHERE church_id = \$1 AND id = \$2`).
		WillReturnRows(sqlmock.NewRows(serviceCols).AddRow(serviceID.String(), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), "divine_service", "10:30"))
	mock.ExpectQuery(`SELECT a.member_id, a.attended, a.took_communion FROM attendance a`).
		WillReturnRows(sqlmock.NewRows([]string{"member_id", "attended", "took_communion"}).
			AddRow(john.String(), true, false).
			AddRow(ruth.String(), true, true))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4))

	sheet, err := s.SubmitSheet(context.Background(), scope, serviceID, 3, []Entry{
		{MemberID: ruth, Attended: true, TookCommunion: true},
		{MemberID: john, Attended: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 4, sheet.Version)
	attended, communed := sheet.Summary()
	assert.Equal(t, 2, attended)
	assert.Equal(t, 1, communed)
	assert.Equal(t, []uuid.UUID{scope.ChurchID}, inv.churches)
}

func TestSubmitSheet_Rejects(t *testing.T) {
	s, mock, inv := newTestService(t)
	member := uuid.New()

	_, err := s.SubmitSheet(context.Background(), staff(), uuid.New(), 1, []Entry{{MemberID: member, TookCommunion: true}})
	assert.ErrorIs(t, err, ErrCommunionWithoutAttendance)

	_, err = s.SubmitSheet(context.Background(), staff(), uuid.New(), 1, []Entry{
		{MemberID: member, Attended: true},
		{MemberID: member},
	})
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	_, err = s.SubmitSheet(context.Background(), auth.Scope{Role: auth.RoleViewer}, uuid.New(), 1, nil)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM services WHERE church_id = \$1 AND id = \$2`).WillReturnRows(sqlmock.NewRows(serviceCols))
	mock.ExpectRollback()
	_, err = s.SubmitSheet(context.Background(), staff(), uuid.New(), 1, []Entry{{MemberID: member, Attended: true}})
	assert.ErrorIs(t, err, ErrServiceNotFound)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM services`).
		WillReturnRows(sqlmock.NewRows(serviceCols).AddRow(uuid.NewString(), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), "festival", ""))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM members`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()
	_, err = s.SubmitSheet(context.Background(), staff(), uuid.New(), 1, []Entry{{MemberID: member, Attended: true}})
	assert.ErrorIs(t, err, ErrUnknownMember)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, inv.churches)
}

func TestSubmitSheet_StaleVersion(t *testing.T) {
	s, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM services`).
		WillReturnRows(sqlmock.NewRows(serviceCols).AddRow(uuid.NewString(), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), "festival", ""))
	mock.ExpectQuery(`SELECT member_id FROM attendance`).
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(5))
	mock.ExpectRollback()

	_, err := s.SubmitSheet(context.Background(), staff(), uuid.New(), 4, nil)
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateFailureIsLogged(t *testing.T) {
	s, _, inv := newTestService(t)
	inv.err = errors.New("redis down")
	church := uuid.New()

	s.invalidate(context.Background(), church)
	assert.Equal(t, []uuid.UUID{church}, inv.churches)

	s.invalidator = nil
	s.invalidate(context.Background(), church)
}
