package mfa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists MFA credentials in the user_mfa table and keeps the users
// table's mfa_enabled/mfa_pending flags in step.
type Store struct {
	db *sql.DB
}

// NewStore creates a new MFA credential store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetCredential fetches the credential row for a user.
func (s *Store) GetCredential(ctx context.Context, userID uuid.UUID) (*Credential, error) {
	query := `
		SELECT user_id, secret, is_enabled, enabled_at, backup_codes,
			   failed_attempts, locked_until, created_at, updated_at
		FROM user_mfa
		WHERE user_id = $1
	`

	var c Credential
	var enabledAt, lockedUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&c.UserID, &c.Secret, &c.IsEnabled, &enabledAt, pq.Array(&c.BackupCodes),
		&c.FailedAttempts, &lockedUntil, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("mfa: select credential: %w", err)
	}
	if enabledAt.Valid {
		c.EnabledAt = &enabledAt.Time
	}
	if lockedUntil.Valid {
		c.LockedUntil = &lockedUntil.Time
	}
	return &c, nil
}

// SavePending writes a disabled credential holding a fresh secret. Restarting
// setup before confirmation replaces the previous secret.
func (s *Store) SavePending(ctx context.Context, userID uuid.UUID, secret string) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO user_mfa (user_id, secret, is_enabled, backup_codes, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, FALSE, '{}', 0, $3, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = EXCLUDED.secret, is_enabled = FALSE, enabled_at = NULL,
			backup_codes = '{}', failed_attempts = 0, locked_until = NULL,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, secret, now); err != nil {
		return fmt.Errorf("mfa: save pending credential: %w", err)
	}
	if err := s.setUserFlags(ctx, userID, false, true); err != nil {
		return err
	}
	return nil
}

// Enable confirms the credential, stores the backup code hashes, and flips
// the user flags.
func (s *Store) Enable(ctx context.Context, userID uuid.UUID, backupHashes []string) error {
	now := time.Now().UTC()
	query := `
		UPDATE user_mfa
		SET is_enabled = TRUE, enabled_at = $1, backup_codes = $2,
			failed_attempts = 0, locked_until = NULL, updated_at = $1
		WHERE user_id = $3
	`
	res, err := s.db.ExecContext(ctx, query, now, pq.Array(backupHashes), userID)
	if err != nil {
		return fmt.Errorf("mfa: enable credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotConfigured
	}
	return s.setUserFlags(ctx, userID, true, false)
}

// Delete removes the credential row and clears the user flags.
func (s *Store) Delete(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_mfa WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("mfa: delete credential: %w", err)
	}
	return s.setUserFlags(ctx, userID, false, false)
}

// ReplaceBackupCodes swaps the stored hash set in one statement.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID uuid.UUID, backupHashes []string) error {
	query := `
		UPDATE user_mfa
		SET backup_codes = $1, updated_at = $2
		WHERE user_id = $3
	`
	res, err := s.db.ExecContext(ctx, query, pq.Array(backupHashes), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("mfa: replace backup codes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotConfigured
	}
	return nil
}

// RecordFailure bumps the consecutive-failure counter and, when lockedUntil
// is set, opens a lockout window.
func (s *Store) RecordFailure(ctx context.Context, userID uuid.UUID, attempts int, lockedUntil *time.Time) error {
	var locked sql.NullTime
	if lockedUntil != nil {
		locked = sql.NullTime{Time: *lockedUntil, Valid: true}
	}
	query := `
		UPDATE user_mfa
		SET failed_attempts = $1, locked_until = $2, updated_at = $3
		WHERE user_id = $4
	`
	if _, err := s.db.ExecContext(ctx, query, attempts, locked, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("mfa: record failure: %w", err)
	}
	return nil
}

// ResetFailures clears the failure counter and any lockout window.
func (s *Store) ResetFailures(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE user_mfa
		SET failed_attempts = 0, locked_until = NULL, updated_at = $1
		WHERE user_id = $2
	`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("mfa: reset failures: %w", err)
	}
	return nil
}

func (s *Store) setUserFlags(ctx context.Context, userID uuid.UUID, enabled, pending bool) error {
	query := `
		UPDATE users
		SET mfa_enabled = $1, mfa_pending = $2, updated_at = $3
		WHERE id = $4
	`
	if _, err := s.db.ExecContext(ctx, query, enabled, pending, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("mfa: update user flags: %w", err)
	}
	return nil
}
