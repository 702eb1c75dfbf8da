package mfa

import "errors"

var (
	// ErrAlreadyEnabled means setup was attempted while a confirmed
	// credential exists.
	ErrAlreadyEnabled = errors.New("mfa: already enabled")

	// ErrNotInitialized means confirmation was attempted before setup.
	ErrNotInitialized = errors.New("mfa: setup not initiated")

	// ErrNotEnabled means an operation requires a confirmed credential.
	ErrNotEnabled = errors.New("mfa: not enabled")

	// ErrNotConfigured means no credential row exists for the user.
	ErrNotConfigured = errors.New("mfa: not configured")

	// ErrInvalidCode is the generic rejection for a wrong or malformed code.
	// Callers must not distinguish wrong-code from malformed-code to the user.
	ErrInvalidCode = errors.New("mfa: invalid code")

	// ErrLocked means too many consecutive failures put the credential in a
	// lockout window.
	ErrLocked = errors.New("mfa: temporarily locked")
)
