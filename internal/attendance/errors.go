package attendance

import "shepherd/internal/pkg/apperr"

var (
	ErrServiceNotFound            = apperr.New(apperr.ErrNotFound, "service not found")
	ErrInvalidService             = apperr.New(apperr.ErrInvalid, "invalid service")
	ErrCommunionWithoutAttendance = apperr.New(apperr.ErrInvalid, "a member cannot take communion without attending")
	ErrDuplicateEntry             = apperr.New(apperr.ErrInvalid, "a member appears more than once on the sheet")
	ErrUnknownMember              = apperr.New(apperr.ErrInvalid, "the sheet lists members outside this church")
	ErrServiceExists              = apperr.New(apperr.ErrConflict, "a service of this type is already scheduled for that date")
)
