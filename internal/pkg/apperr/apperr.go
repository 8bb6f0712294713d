// Package apperr defines the error kinds shared across services. Packages
// declare their own sentinels with New so the HTTP layer can map them to a
// status code with errors.Is, without importing every service package.
package apperr

import "errors"

var (
	ErrInvalid         = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// New returns a sentinel whose message is msg and which matches kind under
// errors.Is.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Message returns the text of the outermost error in err's chain that was
// created with New. Wrapping prefixes added with fmt.Errorf are dropped so
// clients see the sentinel's own message.
func Message(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg
	}
	return err.Error()
}
