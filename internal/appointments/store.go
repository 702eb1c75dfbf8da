package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for appointments and their reminders. Every
// appointment lookup is scoped by practice id as well as row id.
type Store struct {
	db DB
}

// NewStore creates a new appointments store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// GetByID fetches an appointment scoped to the practice.
func (s *Store) GetByID(ctx context.Context, practiceID string, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, practice_id, patient_id, provider, service, status,
		       starts_at, cancelled_reason, cancelled_at, created_at, updated_at
		FROM appointments
		WHERE id = $1 AND practice_id = $2`, id, practiceID)

	var a Appointment
	if err := row.Scan(
		&a.ID, &a.PracticeID, &a.PatientID, &a.Provider, &a.Service, &a.Status,
		&a.StartsAt, &a.CancelledReason, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return &a, nil
}

// UpdateStatus applies a status change conditioned on the expected current
// status. A zero-row result after a successful read means another request
// changed the appointment first.
func (s *Store) UpdateStatus(ctx context.Context, practiceID string, id uuid.UUID, expected, target Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = $2
		WHERE id = $3 AND practice_id = $4 AND status = $5`,
		string(target), time.Now().UTC(), id, practiceID, string(expected))
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// Cancel marks an appointment cancelled, recording the reason and timestamp.
// Like UpdateStatus it is conditioned on the expected current status.
func (s *Store) Cancel(ctx context.Context, practiceID string, id uuid.UUID, expected Status, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1, cancelled_reason = $2, cancelled_at = $3, updated_at = $3
		WHERE id = $4 AND practice_id = $5 AND status = $6`,
		string(StatusCancelled), reason, at, id, practiceID, string(expected))
	if err != nil {
		return fmt.Errorf("appointments: cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CancelPendingReminders moves every pending reminder for the appointment to
// cancelled and returns how many rows changed. Reminders already sent,
// failed, or cancelled are untouched.
func (s *Store) CancelPendingReminders(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = $1, updated_at = $2
		WHERE appointment_id = $3 AND status = $4`,
		string(ReminderCancelled), time.Now().UTC(), appointmentID, string(ReminderPending))
	if err != nil {
		return 0, fmt.Errorf("appointments: cancel reminders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDueReminders returns pending reminders whose send_at is on or before
// asOf, oldest first.
func (s *Store) ListDueReminders(ctx context.Context, asOf time.Time, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.appointment_id, r.practice_id, r.patient_name, r.patient_email,
		       r.send_at, r.status, r.sent_at, r.created_at, r.updated_at,
		       a.provider, a.starts_at
		FROM appointment_reminders r
		JOIN appointments a ON a.id = r.appointment_id
		WHERE r.status = 'pending' AND r.send_at <= $1
		ORDER BY r.send_at ASC
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: list due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// MarkReminderSent transitions a reminder from pending to sent.
func (s *Store) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = $1, sent_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(ReminderSent), now, id, string(ReminderPending))
	if err != nil {
		return fmt.Errorf("appointments: mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// MarkReminderFailed transitions a reminder from pending to failed.
func (s *Store) MarkReminderFailed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(ReminderFailed), time.Now().UTC(), id, string(ReminderPending))
	if err != nil {
		return fmt.Errorf("appointments: mark reminder failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// PracticeName returns the display name for a practice, for use in outbound
// messages. Satisfies PracticeDirectory.
func (s *Store) PracticeName(ctx context.Context, practiceID string) (string, error) {
	var name string
	err := s.db.QueryRow(ctx, `SELECT name FROM practices WHERE id = $1`, practiceID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("appointments: practice lookup: %w", err)
	}
	return name, nil
}

func scanReminders(rows pgx.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(
			&r.ID, &r.AppointmentID, &r.PracticeID, &r.PatientName, &r.PatientEmail,
			&r.SendAt, &r.Status, &r.SentAt, &r.CreatedAt, &r.UpdatedAt,
			&r.Provider, &r.StartsAt,
		); err != nil {
			return nil, fmt.Errorf("appointments: scan reminder: %w", err)
		}
		out = append(out, r)
	}
	if out == nil {
		out = []Reminder{}
	}
	return out, rows.Err()
}
