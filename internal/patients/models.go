// Package patients holds the patient roster and its status endpoint.
package patients

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the roster state of a patient record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

// Valid reports whether s is a member of the status enumeration.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// ParseStatus converts a request value into a Status, returning
// ErrInvalidStatus for anything outside the enumeration.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Patient is a roster entry, scoped to a practice.
type Patient struct {
	ID         uuid.UUID `json:"id"`
	PracticeID string    `json:"practice_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var (
	// ErrNotFound means no patient matched the id within the practice scope.
	ErrNotFound = errors.New("patients: patient not found")

	// ErrInvalidStatus means the requested status is not a member of the set.
	ErrInvalidStatus = errors.New("patients: invalid status")
)
