package appointments

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no appointment matches the id within the
	// practice scope.
	ErrNotFound = errors.New("appointment not found")

	// ErrInvalidStatus is returned when the target status is missing or not
	// a member of the status enumeration.
	ErrInvalidStatus = errors.New("invalid appointment status")

	// ErrConcurrentModification is returned when the conditional status
	// update matched no row because another request changed the appointment
	// first. Callers should re-read and retry.
	ErrConcurrentModification = errors.New("appointment was modified concurrently")
)

// InvalidTransitionError reports an illegal state change. Current, attempted,
// and allowed statuses are part of the contract so callers can render a
// helpful message.
type InvalidTransitionError struct {
	Current   Status
	Attempted Status
	Allowed   []Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition appointment from %q to %q (allowed: %v)",
		e.Current, e.Attempted, e.Allowed)
}
