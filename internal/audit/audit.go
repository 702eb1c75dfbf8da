// Package audit provides the append-only security audit trail.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action identifies the security-sensitive operation being recorded.
type Action string

const (
	// ActionSetupInitiated is logged when a user starts MFA enrollment.
	ActionSetupInitiated Action = "setup_initiated"
	// ActionSetupCompleted is logged for the enrollment confirmation attempt.
	ActionSetupCompleted Action = "setup_completed"
	// ActionDisableFailed is logged when a disable request presents a bad code.
	ActionDisableFailed Action = "disable_failed"
	// ActionMFADisabled is logged when MFA is removed from an account.
	ActionMFADisabled Action = "mfa_disabled"
	// ActionBackupRegenerated is logged when backup codes are rotated.
	ActionBackupRegenerated Action = "backup_regenerated"
	// ActionLoginVerified is logged for a successful login-time MFA check.
	ActionLoginVerified Action = "login_verified"
	// ActionLoginFailed is logged for a failed login-time MFA check.
	ActionLoginFailed Action = "login_failed"
	// ActionLoginLocked is logged when repeated failures lock the credential.
	ActionLoginLocked Action = "login_locked"
)

// Entry represents an immutable audit record. Entries are never updated or
// deleted by this service.
type Entry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Action        Action    `json:"action"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Service handles audit logging.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Log records an audit entry.
func (s *Service) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO mfa_audit_log (
			id, user_id, action, success, failure_reason,
			ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.Success,
		nullString(entry.FailureReason),
		nullString(entry.IPAddress),
		nullString(entry.UserAgent),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log entry: %w", err)
	}

	return nil
}

// Filter specifies criteria for querying audit entries.
type Filter struct {
	UserID    string
	Action    Action
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit entries with filters, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, user_id, action, success, failure_reason,
			   ip_address, user_agent, created_at
		FROM mfa_audit_log
		WHERE user_id = $1
	`
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, filter.Action)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reason, ip, agent sql.NullString
		err := rows.Scan(
			&e.ID, &e.UserID, &e.Action, &e.Success, &reason,
			&ip, &agent, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		e.FailureReason = reason.String
		e.IPAddress = ip.String
		e.UserAgent = agent.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
