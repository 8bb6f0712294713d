package accounts

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shepherd/internal/auth"
	"shepherd/internal/notify"
	"shepherd/internal/pkg/apperr"
	"shepherd/internal/pkg/eventstore"
)

var (
	fixedNow       = time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	invitationCols = []string{"id", "church_id", "email", "role", "invited_by", "expires_at", "accepted_at", "revoked_at", "created_at"}
)

type fakeMailer struct {
	sent []notify.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) (string, error) {
	m.sent = append(m.sent, msg)
	return "msg-1", m.err
}

func newTestService(t *testing.T) (*service, sqlmock.Sqlmock, *fakeMailer) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	issuer, err := auth.NewIssuer("test-secret", "shepherd", time.Hour)
	require.NoError(t, err)
	mailer := &fakeMailer{}
	s := NewService(eventstore.New(db), db, issuer, mailer, Options{
		AcceptURL: "https://shepherd.example/accept",
		InviteTTL: 72 * time.Hour,
	}).(*service)
	s.now = func() time.Time { return fixedNow }
	return s, mock, mailer
}

func admin() auth.Scope {
	return auth.Scope{ChurchID: uuid.New(), UserID: uuid.New(), Role: auth.RoleAdmin}
}

func expectAppend(mock sqlmock.Sqlmock, version int) {
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(version))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
}

func TestInvite(t *testing.T) {
	s, mock, mailer := newTestService(t)
	scope := admin()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE lower\(email\) = \$1\)`).
		WithArgs("ruth@example.org").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectAppend(mock, 0)
	mock.ExpectExec(`INSERT INTO invitations`).
		WithArgs(sqlmock.AnyArg(), scope.ChurchID, "ruth@example.org", "staff", sqlmock.AnyArg(), sqlmock.AnyArg(),
			scope.UserID, fixedNow.Add(72*time.Hour), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inv, err := s.Invite(context.Background(), scope, InviteInput{Email: " Ruth@Example.org ", Role: auth.RoleStaff})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, StatusPending, inv.Status)
	assert.True(t, inv.Delivered)
	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "ruth@example.org", msg.To)

	start := strings.Index(msg.Text, "https://")
	require.GreaterOrEqual(t, start, 0)
	link, err := url.Parse(strings.Fields(msg.Text[start:])[0])
	require.NoError(t, err)
	assert.Equal(t, inv.ID.String(), link.Query().Get("invitation"))
	assert.NotEmpty(t, link.Query().Get("token"))
}

func TestInvite_DeliveryFailureKeepsInvitation(t *testing.T) {
	s, mock, mailer := newTestService(t)
	mailer.err = errors.New("ses throttled")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectAppend(mock, 0)
	mock.ExpectExec(`INSERT INTO invitations`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inv, err := s.Invite(context.Background(), admin(), InviteInput{Email: "ruth@example.org", Role: auth.RoleViewer})
	require.NoError(t, err)
	assert.False(t, inv.Delivered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvite_Rejects(t *testing.T) {
	s, mock, mailer := newTestService(t)
	scope := admin()

	_, err := s.Invite(context.Background(), auth.Scope{ChurchID: scope.ChurchID, Role: auth.RoleStaff}, InviteInput{Email: "a@b.org", Role: auth.RoleViewer})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = s.Invite(context.Background(), scope, InviteInput{Email: "a@b.org", Role: "owner"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()
	_, err = s.Invite(context.Background(), scope, InviteInput{Email: "a@b.org", Role: auth.RoleViewer})
	assert.ErrorIs(t, err, ErrEmailTaken)

	s.invites = newKeyedLimiter(1)
	s.invites.Allow(scope.ChurchID.String())
	_, err = s.Invite(context.Background(), scope, InviteInput{Email: "a@b.org", Role: auth.RoleViewer})
	assert.ErrorIs(t, err, ErrTooManyInvites)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, mailer.sent)
}

func invitationRow(id, church uuid.UUID, expires time.Time, hash, salt string) *sqlmock.Rows {
	return sqlmock.NewRows(append(invitationCols, "token_hash", "token_salt")).
		AddRow(id.String(), church.String(), "ruth@example.org", "staff", uuid.NewString(),
			expires, nil, nil, fixedNow.Add(-time.Hour), hash, salt)
}

func TestAcceptInvitation(t *testing.T) {
	s, mock, _ := newTestService(t)
	id, church := uuid.New(), uuid.New()
	hash, salt, err := hashSecret("the-token")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(invitationRow(id, church, fixedNow.Add(time.Hour), hash, salt))
	expectAppend(mock, 1)
	expectAppend(mock, 0)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), church, "ruth@example.org", "Ruth Meyer", "staff", sqlmock.AnyArg(), sqlmock.AnyArg(), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE invitations SET accepted_at = \$2 WHERE id = \$1`).
		WithArgs(id, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	session, err := s.AcceptInvitation(context.Background(), AcceptInput{
		InvitationID: id, Token: "the-token", Name: " Ruth Meyer ", Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	scope, err := s.issuer.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, church, scope.ChurchID)
	assert.Equal(t, auth.RoleStaff, scope.Role)
	assert.Equal(t, session.User.ID, scope.UserID)
}

func TestAcceptInvitation_Rejects(t *testing.T) {
	s, mock, _ := newTestService(t)
	id := uuid.New()
	hash, salt, err := hashSecret("the-token")
	require.NoError(t, err)
	in := AcceptInput{InvitationID: id, Token: "the-token", Name: "Ruth", Password: "correct horse battery"}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations`).WillReturnRows(invitationRow(id, uuid.New(), fixedNow.Add(time.Hour), hash, salt))
	mock.ExpectRollback()
	wrong := in
	wrong.Token = "guessed"
	_, err = s.AcceptInvitation(context.Background(), wrong)
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations`).WillReturnRows(invitationRow(id, uuid.New(), fixedNow.Add(-time.Minute), hash, salt))
	mock.ExpectRollback()
	_, err = s.AcceptInvitation(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvitationClosed)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations`).WillReturnRows(sqlmock.NewRows(append(invitationCols, "token_hash", "token_salt")))
	mock.ExpectRollback()
	_, err = s.AcceptInvitation(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	short := in
	short.Password = "short"
	_, err = s.AcceptInvitation(context.Background(), short)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	s, mock, _ := newTestService(t)
	userID, church := uuid.New(), uuid.New()
	hash, salt, err := hashSecret("correct horse battery")
	require.NoError(t, err)
	userRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "church_id", "email", "name", "role", "created_at", "password_hash", "salt"}).
			AddRow(userID.String(), church.String(), "ruth@example.org", "Ruth Meyer", "admin", fixedNow, hash, salt)
	}

	mock.ExpectQuery(`FROM users WHERE lower\(email\) = \$1`).WithArgs("ruth@example.org").WillReturnRows(userRow())
	session, err := s.Login(context.Background(), LoginInput{Email: "Ruth@example.org", Password: "correct horse battery"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, session.User.Role)
	assert.NotEmpty(t, session.Token)

	mock.ExpectQuery(`FROM users`).WillReturnRows(userRow())
	_, err = s.Login(context.Background(), LoginInput{Email: "ruth@example.org", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mock.ExpectQuery(`FROM users`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = s.Login(context.Background(), LoginInput{Email: "nobody@example.org", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_RateLimitedPerEmail(t *testing.T) {
	s, mock, _ := newTestService(t)
	s.logins = newKeyedLimiter(1)
	s.logins.Allow("ruth@example.org")

	_, err := s.Login(context.Background(), LoginInput{Email: "ruth@example.org", Password: "x"})
	assert.ErrorIs(t, err, ErrTooManyLogins)

	mock.ExpectQuery(`FROM users`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = s.Login(context.Background(), LoginInput{Email: "john@example.org", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeInvitation(t *testing.T) {
	s, mock, _ := newTestService(t)
	scope := admin()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations WHERE church_id = \$1 AND id = \$2 FOR UPDATE`).
		WithArgs(scope.ChurchID, id).
		WillReturnRows(sqlmock.NewRows(invitationCols).
			AddRow(id.String(), scope.ChurchID.String(), "ruth@example.org", "staff", scope.UserID.String(), fixedNow.Add(time.Hour), nil, nil, fixedNow))
	expectAppend(mock, 1)
	mock.ExpectExec(`UPDATE invitations SET revoked_at`).WithArgs(id, fixedNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, s.RevokeInvitation(context.Background(), scope, id))

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations`).
		WillReturnRows(sqlmock.NewRows(invitationCols).
			AddRow(id.String(), scope.ChurchID.String(), "ruth@example.org", "staff", scope.UserID.String(), fixedNow.Add(time.Hour), fixedNow, nil, fixedNow))
	mock.ExpectRollback()
	assert.ErrorIs(t, s.RevokeInvitation(context.Background(), scope, id), ErrInvitationClosed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListInvitations_Status(t *testing.T) {
	s, mock, _ := newTestService(t)
	scope := admin()

	mock.ExpectQuery(`FROM invitations WHERE church_id = \$1 ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows(invitationCols).
			AddRow(uuid.NewString(), scope.ChurchID.String(), "a@example.org", "staff", scope.UserID.String(), fixedNow.Add(time.Hour), nil, nil, fixedNow).
			AddRow(uuid.NewString(), scope.ChurchID.String(), "b@example.org", "viewer", scope.UserID.String(), fixedNow.Add(-time.Hour), nil, nil, fixedNow).
			AddRow(uuid.NewString(), scope.ChurchID.String(), "c@example.org", "viewer", scope.UserID.String(), fixedNow.Add(time.Hour), nil, fixedNow, fixedNow))

	invitations, err := s.ListInvitations(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, invitations, 3)
	assert.Equal(t, StatusPending, invitations[0].Status)
	assert.Equal(t, StatusExpired, invitations[1].Status)
	assert.Equal(t, StatusRevoked, invitations[2].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSecretHashing(t *testing.T) {
	hash, salt, err := hashSecret("s3cret")
	require.NoError(t, err)

	ok, err := verifySecret("s3cret", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifySecret("S3cret", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = verifySecret("s3cret", "%%%", hash)
	assert.Error(t, err)

	a, err := newToken()
	require.NoError(t, err)
	b, err := newToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}
