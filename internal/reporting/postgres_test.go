package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shepherd/internal/analytics"
)

var personCols = []string{"id", "first_name", "last_name", "sex", "date_of_birth", "household_id", "envelope_number", "participation"}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestAttendanceDataset(t *testing.T) {
	repo, mock := newMockRepo(t)
	church := uuid.New()
	svc, member, guest := uuid.New(), uuid.New(), uuid.New()
	rng := analytics.DateRange{Start: analytics.MustDate("2024-01-01"), End: analytics.MustDate("2024-01-31")}

	mock.ExpectQuery(`SELECT id, service_date, service_type, COALESCE\(service_time, ''\) FROM services`).
		WithArgs(church, "2024-01-01", "2024-01-31").
		WillReturnRows(sqlmock.NewRows([]string{"id", "service_date", "service_type", "service_time"}).
			AddRow(svc.String(), time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), "divine_service", "10:00"))
	mock.ExpectQuery(`SELECT a.member_id, a.service_id, a.attended, a.took_communion FROM attendance a JOIN services s`).
		WithArgs(church, "2024-01-01", "2024-01-31").
		WillReturnRows(sqlmock.NewRows([]string{"member_id", "service_id", "attended", "took_communion"}).
			AddRow(member.String(), svc.String(), true, true).
			AddRow(guest.String(), svc.String(), true, false))
	mock.ExpectQuery(`SELECT id, first_name, last_name, sex, date_of_birth, household_id, envelope_number, participation FROM members WHERE church_id = \$1 AND id = ANY\(\$2::uuid\[\]\)`).
		WithArgs(church, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(personCols).
			AddRow(member.String(), "Ruth", "Meyer", "female", time.Date(1950, 3, 2, 0, 0, 0, 0, time.UTC), nil, "14", "active"))

	ds, err := repo.AttendanceDataset(context.Background(), church, rng)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, ds.Services, 1)
	assert.Equal(t, analytics.MustDate("2024-01-07"), ds.Services[0].Date)
	assert.Equal(t, analytics.DivineService, ds.Services[0].Type)
	require.Len(t, ds.Records, 2)
	assert.True(t, ds.Records[0].TookCommunion)

	require.Len(t, ds.Members, 1)
	ruth := ds.Members[member]
	assert.Equal(t, analytics.Female, ruth.Sex)
	assert.Equal(t, "14", ruth.EnvelopeNumber)
	require.NotNil(t, ruth.DateOfBirth)
	assert.Equal(t, analytics.MustDate("1950-03-02"), *ruth.DateOfBirth)
	assert.Nil(t, ruth.HouseholdID)
	_, known := ds.Members[guest]
	assert.False(t, known, "unresolved attendees stay out of the directory and count as guests")
}

func TestAttendanceDataset_NoRecordsSkipsMemberLookup(t *testing.T) {
	repo, mock := newMockRepo(t)
	church := uuid.New()
	rng := analytics.DateRange{Start: analytics.MustDate("2024-01-01"), End: analytics.MustDate("2024-01-31")}

	mock.ExpectQuery(`FROM services`).WillReturnRows(sqlmock.NewRows([]string{"id", "service_date", "service_type", "service_time"}))
	mock.ExpectQuery(`FROM attendance a`).WillReturnRows(sqlmock.NewRows([]string{"member_id", "service_id", "attended", "took_communion"}))

	ds, err := repo.AttendanceDataset(context.Background(), church, rng)
	require.NoError(t, err)
	assert.Empty(t, ds.Records)
	assert.Empty(t, ds.Members)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGivingDataset(t *testing.T) {
	repo, mock := newMockRepo(t)
	church, household, giver, svc, gift := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	spouse := uuid.New()
	rng := analytics.DateRange{Start: analytics.MustDate("2024-01-01"), End: analytics.MustDate("2024-01-31")}

	mock.ExpectQuery(`SELECT id, member_id, date_given, service_id, current, mission, memorials, debt, school, miscellaneous, COALESCE\(notes, ''\) FROM giving WHERE church_id = \$1 AND date_given BETWEEN \$2 AND \$3 ORDER BY date_given, id`).
		WithArgs(church, "2024-01-01", "2024-01-31").
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_id", "date_given", "service_id", "current", "mission", "memorials", "debt", "school", "miscellaneous", "notes"}).
			AddRow(gift.String(), giver.String(), time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), svc.String(), "50.00", "10.00", "0", "0", "0", "0", "envelope"))
	mock.ExpectQuery(`FROM services`).
		WithArgs(church, "2023-12-29", "2024-02-03").
		WillReturnRows(sqlmock.NewRows([]string{"id", "service_date", "service_type", "service_time"}).
			AddRow(svc.String(), time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), "festival", ""))
	mock.ExpectQuery(`FROM members WHERE church_id = \$1 AND id = ANY`).
		WithArgs(church, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(personCols).
			AddRow(giver.String(), "Tom", "Jones", "male", nil, household.String(), "12", "active"))
	mock.ExpectQuery(`SELECT id, COALESCE\(name, ''\) FROM households`).
		WithArgs(church, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(household.String(), ""))
	mock.ExpectQuery(`FROM members WHERE church_id = \$1 AND household_id = ANY`).
		WithArgs(church, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(personCols).
			AddRow(giver.String(), "Tom", "Jones", "male", nil, household.String(), "12", "active").
			AddRow(spouse.String(), "Mary", "Jones", "female", nil, household.String(), "12", "active"))

	ds, err := repo.GivingDataset(context.Background(), church, rng, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, ds.Records, 1)
	rec := ds.Records[0]
	require.NotNil(t, rec.ServiceID)
	assert.Equal(t, svc, *rec.ServiceID)
	assert.True(t, decimal.RequireFromString("60").Equal(rec.Amounts.Total()))
	assert.Equal(t, "envelope", rec.Notes)

	require.Contains(t, ds.Households, household)
	assert.Len(t, ds.Households[household].Members, 2)
	assert.Equal(t, "Tom & Mary Jones", ds.Households[household].DisplayName())
}

func TestGivingDataset_HouseholdFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	church, household := uuid.New(), uuid.New()
	rng := analytics.DateRange{Start: analytics.MustDate("2024-01-01"), End: analytics.MustDate("2024-01-31")}

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(household, church).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM giving WHERE church_id = \$1 AND date_given BETWEEN \$2 AND \$3 AND member_id IN \(SELECT id FROM members WHERE household_id = \$4\)`).
		WithArgs(church, "2024-01-01", "2024-01-31", household).
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_id", "date_given", "service_id", "current", "mission", "memorials", "debt", "school", "miscellaneous", "notes"}))
	mock.ExpectQuery(`FROM services`).WillReturnRows(sqlmock.NewRows([]string{"id", "service_date", "service_type", "service_time"}))

	ds, err := repo.GivingDataset(context.Background(), church, rng, &household)
	require.NoError(t, err)
	assert.Empty(t, ds.Records)
	assert.Empty(t, ds.Households)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGivingDataset_ForeignHousehold(t *testing.T) {
	repo, mock := newMockRepo(t)
	church, household := uuid.New(), uuid.New()
	rng := analytics.DateRange{Start: analytics.MustDate("2024-01-01"), End: analytics.MustDate("2024-01-31")}

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(household, church).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.GivingDataset(context.Background(), church, rng, &household)
	assert.ErrorIs(t, err, ErrHouseholdNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
