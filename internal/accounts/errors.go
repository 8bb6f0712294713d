package accounts

import "shepherd/internal/pkg/apperr"

var (
	ErrInvalidInput       = apperr.New(apperr.ErrInvalid, "invalid input")
	ErrInvitationNotFound = apperr.New(apperr.ErrNotFound, "invitation not found")
	ErrInvitationClosed   = apperr.New(apperr.ErrConflict, "invitation is no longer open")
	ErrEmailTaken         = apperr.New(apperr.ErrConflict, "a user with this email already exists")
	ErrInvalidCredentials = apperr.New(apperr.ErrUnauthenticated, "invalid email or password")
	ErrTooManyInvites     = apperr.New(apperr.ErrRateLimited, "too many invitations, try again in a minute")
	ErrTooManyLogins      = apperr.New(apperr.ErrRateLimited, "too many login attempts, try again in a minute")
)
