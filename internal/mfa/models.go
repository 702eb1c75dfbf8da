// Package mfa implements the TOTP second-factor lifecycle: setup, login-time
// verification, backup codes, and teardown.
package mfa

import (
	"time"

	"github.com/google/uuid"
)

// Credential is the per-user second-factor record. BackupCodes holds SHA-256
// hex hashes, never plaintext.
type Credential struct {
	UserID         uuid.UUID
	Secret         string // base32 TOTP seed
	IsEnabled      bool
	EnabledAt      *time.Time
	BackupCodes    []string
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether the credential is in a lockout window as of now.
func (c *Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// SetupInfo is returned once from setup initiation. The secret and QR code
// are never retrievable again.
type SetupInfo struct {
	Secret     string `json:"secret"`
	QRCode     string `json:"qr_code"` // PNG data URL
	OTPAuthURL string `json:"otpauth_url"`
}

// StatusInfo is the safe-to-show summary of a user's second-factor state.
type StatusInfo struct {
	IsEnabled            bool       `json:"is_enabled"`
	IsPending            bool       `json:"is_pending"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}
