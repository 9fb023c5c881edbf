package directory

import "errors"

var (
	// ErrNotFound covers both a missing id and a record outside the
	// caller's scope. The two are deliberately indistinguishable so an
	// unauthorized caller cannot probe for existence.
	ErrNotFound = errors.New("directory: not found")

	// ErrConflict covers email uniqueness violations and invalid state
	// transitions such as restoring a record that is not deleted.
	ErrConflict = errors.New("directory: conflict")

	// ErrForbidden covers policy violations on visible targets, most
	// notably role-escalation attempts.
	ErrForbidden = errors.New("directory: forbidden")

	// ErrInvalidInput covers malformed values that slipped past the
	// transport layer's shape validation.
	ErrInvalidInput = errors.New("directory: invalid input")
)
