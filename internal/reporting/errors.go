package reporting

import "shepherd/internal/pkg/apperr"

var (
	ErrHouseholdNotFound = apperr.New(apperr.ErrNotFound, "household not found")
	ErrUnknownFormat     = apperr.New(apperr.ErrInvalid, "format must be one of csv, json, xlsx")
)
