// internal/accounts/service.go
package accounts

import (
	"context"

	"github.com/google/uuid"

	"shepherd/internal/auth"
)

// Service defines the interface for users, invitations and sessions.
// Invitation management needs the admin role; Accept and Login are public.
type Service interface {
	Invite(ctx context.Context, scope auth.Scope, in InviteInput) (*Invitation, error)
	ListInvitations(ctx context.Context, scope auth.Scope) ([]Invitation, error)
	RevokeInvitation(ctx context.Context, scope auth.Scope, id uuid.UUID) error
	ListUsers(ctx context.Context, scope auth.Scope) ([]User, error)

	AcceptInvitation(ctx context.Context, in AcceptInput) (*Session, error)
	Login(ctx context.Context, in LoginInput) (*Session, error)
}
