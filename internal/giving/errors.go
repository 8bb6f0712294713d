package giving

import "shepherd/internal/pkg/apperr"

var (
	ErrGiftNotFound      = apperr.New(apperr.ErrNotFound, "gift not found")
	ErrInvalidGift       = apperr.New(apperr.ErrInvalid, "invalid gift")
	ErrAmountAmbiguous   = apperr.New(apperr.ErrInvalid, "send either amounts or amount, not both")
	ErrNoAmount          = apperr.New(apperr.ErrInvalid, "a gift needs a positive amount")
	ErrNegativeAmount    = apperr.New(apperr.ErrInvalid, "gift amounts cannot be negative")
	ErrFractionalCents   = apperr.New(apperr.ErrInvalid, "gift amounts have at most two decimal places")
	ErrUnknownMember     = apperr.New(apperr.ErrInvalid, "member not found in this church")
	ErrUnknownService    = apperr.New(apperr.ErrInvalid, "service not found in this church")
	ErrImportRateLimited = apperr.New(apperr.ErrRateLimited, "too many imports, try again in a minute")
)
