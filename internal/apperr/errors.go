// Package apperr defines the error kinds shared across the reading client
// and the profile backend. Callers match them with errors.Is.
package apperr

import "errors"

var (
	// ErrConnectivity reports a realtime subscribe or send failure.
	ErrConnectivity = errors.New("connectivity error")

	// ErrSubmission reports a failed recording upload or an unparseable
	// grading response.
	ErrSubmission = errors.New("submission error")

	// ErrUnauthorized reports a profile read or write without a valid
	// authenticated session. It is never swallowed.
	ErrUnauthorized = errors.New("user not logged in")

	// ErrForbidden is an authorization failure for an authenticated user
	// acting on someone else's profile.
	ErrForbidden = wrap(ErrUnauthorized, "not allowed to modify this profile")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
