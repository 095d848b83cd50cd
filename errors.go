package filmila

import "errors"

// Sentinel errors shared across adapter packages. Wrap with fmt.Errorf("...: %w", ...)
// so callers can match with errors.Is.
var (
	// ErrNotFound is returned when a row lookup matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write loses a uniqueness or version race.
	ErrConflict = errors.New("conflict")

	// ErrInvalidCredentials is returned by sign-in with a bad email/password pair.
	// It is a user-facing condition, not a system failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidInput marks client-side validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingConfig is returned when required configuration is absent at startup.
	ErrMissingConfig = errors.New("missing configuration")
)
