package membership

import "shepherd/internal/pkg/apperr"

var (
	ErrInvalidMember     = apperr.New(apperr.ErrInvalid, "invalid member")
	ErrInvalidHousehold  = apperr.New(apperr.ErrInvalid, "invalid household")
	ErrMemberNotFound    = apperr.New(apperr.ErrNotFound, "member not found")
	ErrHouseholdNotFound = apperr.New(apperr.ErrNotFound, "household not found")
	ErrMemberHasRecords  = apperr.New(apperr.ErrConflict, "member has giving records and cannot be removed")
	ErrStaleVersion      = apperr.New(apperr.ErrConflict, "member was changed by someone else, reload and retry")
	ErrImportRateLimited = apperr.New(apperr.ErrRateLimited, "too many imports, try again in a minute")
)
