// internal/accounts/implementation.go
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"shepherd/internal/auth"
	"shepherd/internal/notify"
	"shepherd/internal/pkg/eventstore"
	"shepherd/internal/pkg/httputil"
	"shepherd/internal/pkg/logger"
	"shepherd/internal/pkg/pgutil"
)

const invitationColumns = `id, church_id, email, role, invited_by, expires_at, accepted_at, revoked_at, created_at`

// Options configures the accounts service.
type Options struct {
	// AcceptURL is the page that completes an invitation; the invitation ID
	// and token are appended as query parameters.
	AcceptURL        string
	InviteTTL        time.Duration
	InvitesPerMinute int
	LoginsPerMinute  int
}

// service implements the Service interface.
type service struct {
	events *eventstore.Store
	db     *sql.DB
	issuer *auth.Issuer
	mailer notify.Mailer
	opts   Options
	// invites is keyed by church, logins by email.
	invites *keyedLimiter
	logins  *keyedLimiter
	now     func() time.Time
}

// NewService creates a new accounts service instance.
func NewService(es *eventstore.Store, db *sql.DB, issuer *auth.Issuer, mailer notify.Mailer, opts Options) Service {
	if opts.InviteTTL <= 0 {
		opts.InviteTTL = 72 * time.Hour
	}
	return &service{
		events:  es,
		db:      db,
		issuer:  issuer,
		mailer:  mailer,
		opts:    opts,
		invites: newKeyedLimiter(opts.InvitesPerMinute),
		logins:  newKeyedLimiter(opts.LoginsPerMinute),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Invite records an invitation and emails its token. A failed delivery is
// logged and reported through Invitation.Delivered; the invitation stands.
func (s *service) Invite(ctx context.Context, scope auth.Scope, in InviteInput) (*Invitation, error) {
	if !scope.Allows(auth.RoleAdmin) {
		return nil, auth.ErrForbidden
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := httputil.Validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !s.invites.Allow(scope.ChurchID.String()) {
		return nil, ErrTooManyInvites
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("invite: %w", err)
	}
	hash, salt, err := hashSecret(token)
	if err != nil {
		return nil, fmt.Errorf("invite: %w", err)
	}

	now := s.now()
	inv := Invitation{
		ID:        uuid.New(),
		ChurchID:  scope.ChurchID,
		Email:     in.Email,
		Role:      in.Role,
		InvitedBy: scope.UserID,
		ExpiresAt: now.Add(s.opts.InviteTTL),
		CreatedAt: now,
		Status:    StatusPending,
	}
	err = pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var taken bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1)`, inv.Email).Scan(&taken); err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return ErrEmailTaken
		}

		ev, err := eventstore.NewEvent("UserInvited", UserInvitedEvent{ID: inv.ID, Email: inv.Email, Role: inv.Role, ExpiresAt: inv.ExpiresAt})
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, stream(scope.ChurchID, scope.UserID, inv.ID, aggregateInvitation), 0, ev); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invitations (id, church_id, email, role, token_hash, token_salt, invited_by, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, inv.ID, inv.ChurchID, inv.Email, inv.Role, hash, salt, inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("invite: %w", err)
	}

	if _, err := s.mailer.Send(ctx, s.invitationEmail(inv, token)); err != nil {
		logger.Warn("invitation email failed", "invitation_id", inv.ID, "email", inv.Email, "err", err)
	} else {
		inv.Delivered = true
	}
	return &inv, nil
}

func (s *service) invitationEmail(inv Invitation, token string) notify.Message {
	link := s.opts.AcceptURL
	if u, err := url.Parse(s.opts.AcceptURL); err == nil {
		q := u.Query()
		q.Set("invitation", inv.ID.String())
		q.Set("token", token)
		u.RawQuery = q.Encode()
		link = u.String()
	}
	return notify.Message{
		To:      inv.Email,
		Subject: "You have been invited to Shepherd",
		Text: fmt.Sprintf("You have been invited to join your church's Shepherd account as %s.\n\n"+
			"Set your password here:\n%s\n\nThis link expires on %s.\n",
			inv.Role, link, inv.ExpiresAt.Format("January 2, 2006")),
		Tags: map[string]string{"kind": "invitation"},
	}
}

func (s *service) ListInvitations(ctx context.Context, scope auth.Scope) ([]Invitation, error) {
	if !scope.Allows(auth.RoleAdmin) {
		return nil, auth.ErrForbidden
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE church_id = $1
		ORDER BY created_at DESC
	`, scope.ChurchID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	now := s.now()
	invitations := []Invitation{}
	for rows.Next() {
		inv, _, _, err := scanInvitation(rows, false)
		if err != nil {
			return nil, err
		}
		inv.Status = inv.status(now)
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (s *service) RevokeInvitation(ctx context.Context, scope auth.Scope, id uuid.UUID) error {
	if !scope.Allows(auth.RoleAdmin) {
		return auth.ErrForbidden
	}
	err := pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		inv, _, _, err := scanInvitation(tx.QueryRowContext(ctx, `
			SELECT `+invitationColumns+` FROM invitations WHERE church_id = $1 AND id = $2 FOR UPDATE
		`, scope.ChurchID, id), false)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvitationNotFound
		}
		if err != nil {
			return err
		}
		if inv.AcceptedAt != nil || inv.RevokedAt != nil {
			return ErrInvitationClosed
		}

		ev, err := eventstore.NewEvent("InvitationRevoked", InvitationRevokedEvent{ID: id})
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, stream(scope.ChurchID, scope.UserID, id, aggregateInvitation), 1, ev); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE invitations SET revoked_at = $2 WHERE id = $1`, id, s.now())
		return err
	})
	if err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	return nil
}

func (s *service) ListUsers(ctx context.Context, scope auth.Scope) ([]User, error) {
	if !scope.Allows(auth.RoleAdmin) {
		return nil, auth.ErrForbidden
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, church_id, email, name, role, created_at
		FROM users
		WHERE church_id = $1
		ORDER BY name, email
	`, scope.ChurchID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.ChurchID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// AcceptInvitation turns an open invitation into a user and signs them in.
// A wrong token reads as an unknown invitation.
func (s *service) AcceptInvitation(ctx context.Context, in AcceptInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := httputil.Validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var user User
	err := pgutil.InTx(ctx, s.db, func(tx *sql.Tx) error {
		inv, hash, salt, err := scanInvitation(tx.QueryRowContext(ctx, `
			SELECT `+invitationColumns+`, token_hash, token_salt FROM invitations WHERE id = $1 FOR UPDATE
		`, in.InvitationID), true)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvitationNotFound
		}
		if err != nil {
			return err
		}
		ok, err := verifySecret(in.Token, salt, hash)
		if err != nil {
			return fmt.Errorf("verify token: %w", err)
		}
		if !ok {
			return ErrInvitationNotFound
		}
		if inv.status(s.now()) != StatusPending {
			return ErrInvitationClosed
		}

		pwHash, pwSalt, err := hashSecret(in.Password)
		if err != nil {
			return err
		}
		user = User{ID: uuid.New(), ChurchID: inv.ChurchID, Email: inv.Email, Name: in.Name, Role: inv.Role, CreatedAt: s.now()}

		accepted, err := eventstore.NewEvent("InvitationAccepted", InvitationAcceptedEvent{ID: inv.ID, UserID: user.ID})
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, stream(inv.ChurchID, user.ID, inv.ID, aggregateInvitation), 1, accepted); err != nil {
			return err
		}
		created, err := eventstore.NewEvent("UserCreated", UserCreatedEvent{
			ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role, InvitationID: inv.ID,
		})
		if err != nil {
			return err
		}
		if err := s.events.AppendTx(ctx, tx, stream(inv.ChurchID, user.ID, user.ID, aggregateUser), 0, created); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, church_id, email, name, role, password_hash, salt, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, user.ID, user.ChurchID, user.Email, user.Name, user.Role, pwHash, pwSalt, user.CreatedAt)
		if pgutil.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE invitations SET accepted_at = $2 WHERE id = $1`, inv.ID, user.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	return s.session(user)
}

// Login checks a password and issues a session token. Unknown emails and
// wrong passwords fail the same way.
func (s *service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := httputil.Validate.Struct(in); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !s.logins.Allow(in.Email) {
		return nil, ErrTooManyLogins
	}

	var (
		u          User
		hash, salt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, church_id, email, name, role, created_at, password_hash, salt
		FROM users
		WHERE lower(email) = $1
	`, in.Email).Scan(&u.ID, &u.ChurchID, &u.Email, &u.Name, &u.Role, &u.CreatedAt, &hash, &salt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	ok, err := verifySecret(in.Password, salt, hash)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		logger.Warn("login failed", "email", in.Email)
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

func (s *service) session(u User) (*Session, error) {
	token, exp, err := s.issuer.Issue(auth.Scope{ChurchID: u.ChurchID, UserID: u.ID, Role: u.Role}, u.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanInvitation reads invitationColumns, followed by the token hash and
// salt when withToken is set.
func scanInvitation(sc scanner, withToken bool) (Invitation, string, string, error) {
	var (
		inv               Invitation
		accepted, revoked sql.NullTime
		hash, salt        string
	)
	dest := []any{&inv.ID, &inv.ChurchID, &inv.Email, &inv.Role, &inv.InvitedBy,
		&inv.ExpiresAt, &accepted, &revoked, &inv.CreatedAt}
	if withToken {
		dest = append(dest, &hash, &salt)
	}
	if err := sc.Scan(dest...); err != nil {
		return Invitation{}, "", "", err
	}
	if accepted.Valid {
		inv.AcceptedAt = &accepted.Time
	}
	if revoked.Valid {
		inv.RevokedAt = &revoked.Time
	}
	return inv, hash, salt, nil
}

func stream(churchID, actorID, id uuid.UUID, aggregate string) eventstore.Stream {
	s := eventstore.Stream{ChurchID: churchID, AggregateID: id, AggregateType: aggregate}
	if actorID != uuid.Nil {
		actor := actorID
		s.ActorID = &actor
	}
	return s
}
