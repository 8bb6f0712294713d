// internal/accounts/domain.go
package accounts

import (
	"time"

	"github.com/google/uuid"

	"shepherd/internal/auth"
)

// User is a staff login for one church.
type User struct {
	ID        uuid.UUID `json:"id"`
	ChurchID  uuid.UUID `json:"churchId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invitation status values.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRevoked  = "revoked"
	StatusExpired  = "expired"
)

// Invitation lets someone create a user with a preset role. The token itself
// is only ever in the email; the database keeps its argon2 hash.
type Invitation struct {
	ID         uuid.UUID  `json:"id"`
	ChurchID   uuid.UUID  `json:"churchId"`
	Email      string     `json:"email"`
	Role       auth.Role  `json:"role"`
	InvitedBy  uuid.UUID  `json:"invitedBy"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	Status     string     `json:"status"`
	Delivered  bool       `json:"delivered"`
}

func (inv Invitation) status(now time.Time) string {
	switch {
	case inv.AcceptedAt != nil:
		return StatusAccepted
	case inv.RevokedAt != nil:
		return StatusRevoked
	case !now.Before(inv.ExpiresAt):
		return StatusExpired
	default:
		return StatusPending
	}
}

type InviteInput struct {
	Email string    `json:"email" validate:"required,email,max=254"`
	Role  auth.Role `json:"role" validate:"required,oneof=admin staff viewer"`
}

type AcceptInput struct {
	InvitationID uuid.UUID `json:"invitationId" validate:"required"`
	Token        string    `json:"token" validate:"required"`
	Name         string    `json:"name" validate:"required,max=200"`
	Password     string    `json:"password" validate:"required,min=10,max=200"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is a signed token and the user it was issued to.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// UserInvitedEvent is appended when an invitation is sent.
type UserInvitedEvent struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// InvitationAcceptedEvent is appended when an invitation becomes a user.
type InvitationAcceptedEvent struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"userId"`
}

// InvitationRevokedEvent is appended when an admin withdraws an invitation.
type InvitationRevokedEvent struct {
	ID uuid.UUID `json:"id"`
}

// UserCreatedEvent is appended when a user is created from an invitation.
type UserCreatedEvent struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         auth.Role `json:"role"`
	InvitationID uuid.UUID `json:"invitationId"`
}

const (
	aggregateInvitation = "invitation"
	aggregateUser       = "user"
)
