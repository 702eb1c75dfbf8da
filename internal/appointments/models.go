// Package appointments implements the appointment status lifecycle: the
// transition rules, the tenant-scoped store, and the reminder side effects.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCheckedIn Status = "checked_in"
	StatusInSession Status = "in_session"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
	StatusCancelled Status = "cancelled"
)

// transitions lists the legal forward moves from each status. Terminal
// states map to an empty set. Cancellation is intentionally absent from the
// rows: any appointment, in any state, can be cancelled.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn: {StatusInSession, StatusNoShow},
	StatusInSession: {StatusCompleted},
	StatusCompleted: {},
	StatusNoShow:    {},
	StatusCancelled: {},
}

// Valid reports whether s is a member of the status enumeration.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedTransitions returns the legal next statuses from s, never nil.
func AllowedTransitions(s Status) []Status {
	allowed := transitions[s]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// CanTransition reports whether moving from→to is legal. Cancellation
// bypasses the table.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Appointment represents a scheduled visit, scoped to a practice.
type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	PracticeID      string     `json:"practice_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	Provider        string     `json:"provider"`
	Service         string     `json:"service"`
	Status          Status     `json:"status"`
	StartsAt        time.Time  `json:"starts_at"`
	CancelledReason *string    `json:"cancelled_reason,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ReminderStatus tracks the delivery state of an appointment reminder.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderCancelled ReminderStatus = "cancelled"
	ReminderFailed    ReminderStatus = "failed"
)

// Reminder represents a scheduled pre-visit notification. Provider and
// StartsAt are denormalized from the appointment row when reminders are
// listed for delivery.
type Reminder struct {
	ID            uuid.UUID      `json:"id"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	PracticeID    string         `json:"practice_id"`
	PatientName   string         `json:"patient_name"`
	PatientEmail  string         `json:"patient_email"`
	SendAt        time.Time      `json:"send_at"`
	Status        ReminderStatus `json:"status"`
	Provider      string         `json:"provider,omitempty"`
	StartsAt      time.Time      `json:"starts_at,omitempty"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
