package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clearwell/practice-platform/internal/audit"
	"github.com/clearwell/practice-platform/internal/notify"
	"github.com/clearwell/practice-platform/internal/observability/metrics"
	"github.com/clearwell/practice-platform/internal/session"
	"github.com/clearwell/practice-platform/pkg/logging"
)

var tracer = otel.Tracer("practice/mfa")

const (
	// maxFailedAttempts is the consecutive login-verification failures that
	// trigger a lockout.
	maxFailedAttempts = 5

	// lockoutDuration is how long a locked credential rejects attempts.
	lockoutDuration = 15 * time.Minute
)

// CredentialStore is the persistence surface the service needs.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID uuid.UUID) (*Credential, error)
	SavePending(ctx context.Context, userID uuid.UUID, secret string) error
	Enable(ctx context.Context, userID uuid.UUID, backupHashes []string) error
	Delete(ctx context.Context, userID uuid.UUID) error
	ReplaceBackupCodes(ctx context.Context, userID uuid.UUID, backupHashes []string) error
	RecordFailure(ctx context.Context, userID uuid.UUID, attempts int, lockedUntil *time.Time) error
	ResetFailures(ctx context.Context, userID uuid.UUID) error
}

// AuditLogger records security-sensitive events.
type AuditLogger interface {
	Log(ctx context.Context, entry audit.Entry) error
}

// Service implements the MFA lifecycle.
type Service struct {
	store   CredentialStore
	audits  AuditLogger
	emails  notify.EmailSender
	metrics *metrics.SecurityMetrics
	logger  *logging.Logger

	now func() time.Time
}

// NewService creates an MFA service. audits, emails, and metrics may be nil.
func NewService(store CredentialStore, audits AuditLogger, emails notify.EmailSender, m *metrics.SecurityMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:   store,
		audits:  audits,
		emails:  emails,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// InitiateSetup starts enrollment for a user: generates a fresh secret and
// returns it with a QR code, exactly once. Calling again before confirmation
// replaces the pending secret.
func (s *Service) InitiateSetup(ctx context.Context, userID uuid.UUID, email string) (*SetupInfo, error) {
	ctx, span := tracer.Start(ctx, "mfa.InitiateSetup",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return nil, err
	}
	if cred != nil && cred.IsEnabled {
		return nil, ErrAlreadyEnabled
	}

	key, err := generateKey(email)
	if err != nil {
		return nil, err
	}
	qr, err := qrDataURL(key)
	if err != nil {
		return nil, err
	}

	if err := s.store.SavePending(ctx, userID, key.Secret()); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, audit.ActionSetupInitiated, true, "")
	s.logger.Info("mfa setup initiated", "user_id", userID)

	return &SetupInfo{
		Secret:     key.Secret(),
		QRCode:     qr,
		OTPAuthURL: key.URL(),
	}, nil
}

// ConfirmSetup verifies the first code from the authenticator app and, on
// success, enables the credential and returns the one-time backup code set.
func (s *Service) ConfirmSetup(ctx context.Context, userID uuid.UUID, code string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "mfa.ConfirmSetup",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	if cred.IsEnabled {
		return nil, ErrAlreadyEnabled
	}

	if !verifyTOTP(code, cred.Secret, s.now()) {
		s.audit(ctx, userID, audit.ActionSetupCompleted, false, "invalid code")
		s.metrics.ObserveMFACheck("setup", "failure")
		return nil, ErrInvalidCode
	}

	codes, hashes, err := GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.store.Enable(ctx, userID, hashes); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, audit.ActionSetupCompleted, true, "")
	s.metrics.ObserveMFACheck("setup", "success")
	s.sendChangeAlert(ctx, userID, true)
	s.logger.Info("mfa enabled", "user_id", userID)

	return FormatBackupCodes(codes), nil
}

// Disable removes the second factor after verifying a current code.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID, code string) error {
	ctx, span := tracer.Start(ctx, "mfa.Disable",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		return err
	}
	if !cred.IsEnabled {
		return ErrNotEnabled
	}

	if !verifyTOTP(code, cred.Secret, s.now()) {
		s.audit(ctx, userID, audit.ActionDisableFailed, false, "invalid code")
		s.metrics.ObserveMFACheck("disable", "failure")
		return ErrInvalidCode
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}

	s.audit(ctx, userID, audit.ActionMFADisabled, true, "")
	s.metrics.ObserveMFACheck("disable", "success")
	s.sendChangeAlert(ctx, userID, false)
	s.logger.Info("mfa disabled", "user_id", userID)
	return nil
}

// RegenerateBackupCodes replaces the stored set after verifying a current
// code. Previously issued codes stop working immediately.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID, code string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "mfa.RegenerateBackupCodes",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cred.IsEnabled {
		return nil, ErrNotEnabled
	}

	if !verifyTOTP(code, cred.Secret, s.now()) {
		s.audit(ctx, userID, audit.ActionBackupRegenerated, false, "invalid code")
		s.metrics.ObserveMFACheck("regenerate", "failure")
		return nil, ErrInvalidCode
	}

	codes, hashes, err := GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, audit.ActionBackupRegenerated, true, "")
	s.metrics.ObserveMFACheck("regenerate", "success")
	return FormatBackupCodes(codes), nil
}

// Status reports the safe-to-show summary. A user with no credential row gets
// the zero status, not an error.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*StatusInfo, error) {
	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return &StatusInfo{}, nil
		}
		return nil, err
	}
	return &StatusInfo{
		IsEnabled:            cred.IsEnabled,
		IsPending:            !cred.IsEnabled,
		EnabledAt:            cred.EnabledAt,
		BackupCodesRemaining: len(cred.BackupCodes),
	}, nil
}

// VerifyLogin checks a login step-up code, accepting either a TOTP code or a
// backup code. Five consecutive failures lock the credential for fifteen
// minutes. A consumed backup code is removed from the stored set.
func (s *Service) VerifyLogin(ctx context.Context, userID uuid.UUID, code string) error {
	ctx, span := tracer.Start(ctx, "mfa.VerifyLogin",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		return err
	}
	if !cred.IsEnabled {
		return ErrNotEnabled
	}

	now := s.now()
	if cred.Locked(now) {
		s.audit(ctx, userID, audit.ActionLoginFailed, false, "locked")
		s.metrics.ObserveMFACheck("login", "locked")
		return ErrLocked
	}

	if verifyTOTP(code, cred.Secret, now) {
		return s.loginSucceeded(ctx, userID, nil)
	}
	if ok, remaining := VerifyBackupCode(cred.BackupCodes, code); ok {
		return s.loginSucceeded(ctx, userID, remaining)
	}

	attempts := cred.FailedAttempts + 1
	if attempts >= maxFailedAttempts {
		lockedUntil := now.Add(lockoutDuration)
		if err := s.store.RecordFailure(ctx, userID, attempts, &lockedUntil); err != nil {
			s.logger.Error("mfa: record lockout failed", "user_id", userID, "error", err)
		}
		s.audit(ctx, userID, audit.ActionLoginLocked, false, "too many failures")
		s.metrics.ObserveMFACheck("login", "locked")
		s.logger.Warn("mfa credential locked", "user_id", userID, "attempts", attempts)
		return ErrLocked
	}

	if err := s.store.RecordFailure(ctx, userID, attempts, nil); err != nil {
		s.logger.Error("mfa: record failure failed", "user_id", userID, "error", err)
	}
	s.audit(ctx, userID, audit.ActionLoginFailed, false, "invalid code")
	s.metrics.ObserveMFACheck("login", "failure")
	return ErrInvalidCode
}

// loginSucceeded resets the failure counter and, when a backup code was
// consumed, persists the shrunk hash set.
func (s *Service) loginSucceeded(ctx context.Context, userID uuid.UUID, remainingBackup []string) error {
	if remainingBackup != nil {
		if err := s.store.ReplaceBackupCodes(ctx, userID, remainingBackup); err != nil {
			return fmt.Errorf("mfa: consume backup code: %w", err)
		}
	}
	if err := s.store.ResetFailures(ctx, userID); err != nil {
		s.logger.Error("mfa: reset failures failed", "user_id", userID, "error", err)
	}
	s.audit(ctx, userID, audit.ActionLoginVerified, true, "")
	s.metrics.ObserveMFACheck("login", "success")
	return nil
}

// audit writes an entry, logging rather than failing the operation when the
// trail itself is unavailable.
func (s *Service) audit(ctx context.Context, userID uuid.UUID, action audit.Action, success bool, reason string) {
	if s.audits == nil {
		return
	}
	entry := audit.Entry{
		UserID:        userID.String(),
		Action:        action,
		Success:       success,
		FailureReason: reason,
		IPAddress:     session.ClientIPFromContext(ctx),
		UserAgent:     session.UserAgentFromContext(ctx),
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.logger.Error("mfa: audit write failed", "user_id", userID, "action", action, "error", err)
	}
}

// sendChangeAlert emails the account owner about an MFA change, best effort.
func (s *Service) sendChangeAlert(ctx context.Context, userID uuid.UUID, enabled bool) {
	if s.emails == nil {
		return
	}
	email := session.EmailFromContext(ctx)
	if email == "" {
		return
	}
	msg := notify.MFAChangedEmail(email, enabled)
	if err := s.emails.Send(ctx, msg); err != nil {
		s.logger.Warn("mfa: change alert email failed", "user_id", userID, "error", err)
	}
}
