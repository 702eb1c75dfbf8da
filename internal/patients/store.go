package patients

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

// Store provides practice-scoped persistence for patient records.
type Store struct {
	db DB
}

// NewStore creates a new patients store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// GetByID fetches a patient scoped to the practice.
func (s *Store) GetByID(ctx context.Context, practiceID string, id uuid.UUID) (*Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, practice_id, first_name, last_name, email, phone, status, created_at, updated_at
		FROM patients
		WHERE id = $1 AND practice_id = $2`, id, practiceID)

	var p Patient
	if err := row.Scan(
		&p.ID, &p.PracticeID, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return &p, nil
}

// UpdateStatus persists a status change for the patient.
func (s *Store) UpdateStatus(ctx context.Context, practiceID string, id uuid.UUID, target Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE patients
		SET status = $1, updated_at = $2
		WHERE id = $3 AND practice_id = $4`,
		string(target), time.Now().UTC(), id, practiceID)
	if err != nil {
		return fmt.Errorf("patients: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
