package mfa

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearwell/practice-platform/internal/audit"
	"github.com/clearwell/practice-platform/internal/notify"
	"github.com/clearwell/practice-platform/internal/session"
)

type fakeCredStore struct {
	cred *Credential

	savedSecret     string
	enabledHashes   []string
	replacedHashes  []string
	deleted         bool
	recordedAttempt int
	recordedLock    *time.Time
	resetCalled     bool
}

func (f *fakeCredStore) GetCredential(_ context.Context, userID uuid.UUID) (*Credential, error) {
	if f.cred == nil || f.cred.UserID != userID {
		return nil, ErrNotConfigured
	}
	cp := *f.cred
	return &cp, nil
}

func (f *fakeCredStore) SavePending(_ context.Context, userID uuid.UUID, secret string) error {
	f.savedSecret = secret
	f.cred = &Credential{UserID: userID, Secret: secret}
	return nil
}

func (f *fakeCredStore) Enable(_ context.Context, _ uuid.UUID, hashes []string) error {
	f.enabledHashes = hashes
	f.cred.IsEnabled = true
	f.cred.BackupCodes = hashes
	return nil
}

func (f *fakeCredStore) Delete(_ context.Context, _ uuid.UUID) error {
	f.deleted = true
	f.cred = nil
	return nil
}

func (f *fakeCredStore) ReplaceBackupCodes(_ context.Context, _ uuid.UUID, hashes []string) error {
	f.replacedHashes = hashes
	f.cred.BackupCodes = hashes
	return nil
}

func (f *fakeCredStore) RecordFailure(_ context.Context, _ uuid.UUID, attempts int, lockedUntil *time.Time) error {
	f.recordedAttempt = attempts
	f.recordedLock = lockedUntil
	f.cred.FailedAttempts = attempts
	f.cred.LockedUntil = lockedUntil
	return nil
}

func (f *fakeCredStore) ResetFailures(_ context.Context, _ uuid.UUID) error {
	f.resetCalled = true
	f.cred.FailedAttempts = 0
	f.cred.LockedUntil = nil
	return nil
}

type fakeAudit struct {
	entries []audit.Entry
}

func (f *fakeAudit) Log(_ context.Context, e audit.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) last(t *testing.T) audit.Entry {
	t.Helper()
	require.NotEmpty(t, f.entries)
	return f.entries[len(f.entries)-1]
}

var testTime = time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

func newTestService(store *fakeCredStore, audits *fakeAudit) *Service {
	svc := NewService(store, audits, nil, nil, nil)
	svc.now = func() time.Time { return testTime }
	return svc
}

func enabledCredential(t *testing.T, userID uuid.UUID) (*Credential, []string) {
	t.Helper()
	key, err := generateKey("pat@example.com")
	require.NoError(t, err)
	codes, hashes, err := GenerateBackupCodes()
	require.NoError(t, err)
	enabledAt := testTime.Add(-24 * time.Hour)
	return &Credential{
		UserID:      userID,
		Secret:      key.Secret(),
		IsEnabled:   true,
		EnabledAt:   &enabledAt,
		BackupCodes: hashes,
	}, codes
}

func codeFor(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)
	return code
}

func TestInitiateSetup(t *testing.T) {
	store := &fakeCredStore{}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)
	userID := uuid.New()

	info, err := svc.InitiateSetup(context.Background(), userID, "pat@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, info.Secret)
	assert.Equal(t, info.Secret, store.savedSecret)
	assert.Contains(t, info.QRCode, "data:image/png;base64,")
	assert.Contains(t, info.OTPAuthURL, "otpauth://totp/")

	entry := audits.last(t)
	assert.Equal(t, audit.ActionSetupInitiated, entry.Action)
	assert.True(t, entry.Success)
}

func TestAuditEntriesCarryClientInfo(t *testing.T) {
	store := &fakeCredStore{}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)
	userID := uuid.New()

	ctx := session.WithClientInfo(context.Background(), "203.0.113.9", "curl/8.5.0")
	_, err := svc.InitiateSetup(ctx, userID, "pat@example.com")
	require.NoError(t, err)

	entry := audits.last(t)
	assert.Equal(t, "203.0.113.9", entry.IPAddress)
	assert.Equal(t, "curl/8.5.0", entry.UserAgent)
}

func TestInitiateSetupAlreadyEnabled(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	svc := newTestService(store, &fakeAudit{})

	_, err := svc.InitiateSetup(context.Background(), userID, "pat@example.com")
	assert.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestInitiateSetupReplacesPendingSecret(t *testing.T) {
	store := &fakeCredStore{}
	svc := newTestService(store, &fakeAudit{})
	userID := uuid.New()

	first, err := svc.InitiateSetup(context.Background(), userID, "pat@example.com")
	require.NoError(t, err)
	second, err := svc.InitiateSetup(context.Background(), userID, "pat@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret)
	assert.Equal(t, second.Secret, store.savedSecret)
}

func TestConfirmSetup(t *testing.T) {
	store := &fakeCredStore{}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)
	userID := uuid.New()

	info, err := svc.InitiateSetup(context.Background(), userID, "pat@example.com")
	require.NoError(t, err)

	codes, err := svc.ConfirmSetup(context.Background(), userID, codeFor(t, info.Secret, testTime))
	require.NoError(t, err)

	require.Len(t, codes, BackupCodeCount)
	for _, c := range codes {
		assert.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}$`, c)
	}
	assert.Len(t, store.enabledHashes, BackupCodeCount)
	assert.True(t, store.cred.IsEnabled)

	entry := audits.last(t)
	assert.Equal(t, audit.ActionSetupCompleted, entry.Action)
	assert.True(t, entry.Success)
}

func TestConfirmSetupNotInitiated(t *testing.T) {
	svc := newTestService(&fakeCredStore{}, &fakeAudit{})

	_, err := svc.ConfirmSetup(context.Background(), uuid.New(), "123456")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestConfirmSetupWrongCode(t *testing.T) {
	store := &fakeCredStore{}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)
	userID := uuid.New()

	_, err := svc.InitiateSetup(context.Background(), userID, "pat@example.com")
	require.NoError(t, err)

	_, err = svc.ConfirmSetup(context.Background(), userID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.False(t, store.cred.IsEnabled)

	entry := audits.last(t)
	assert.Equal(t, audit.ActionSetupCompleted, entry.Action)
	assert.False(t, entry.Success)
	assert.Equal(t, "invalid code", entry.FailureReason)
}

func TestConfirmSetupAlreadyEnabled(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	svc := newTestService(store, &fakeAudit{})

	_, err := svc.ConfirmSetup(context.Background(), userID, codeFor(t, cred.Secret, testTime))
	assert.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestDisable(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)

	err := svc.Disable(context.Background(), userID, codeFor(t, cred.Secret, testTime))
	require.NoError(t, err)
	assert.True(t, store.deleted)

	entry := audits.last(t)
	assert.Equal(t, audit.ActionMFADisabled, entry.Action)
	assert.True(t, entry.Success)
}

func TestDisableWrongCode(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)

	err := svc.Disable(context.Background(), userID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.False(t, store.deleted)

	entry := audits.last(t)
	assert.Equal(t, audit.ActionDisableFailed, entry.Action)
	assert.False(t, entry.Success)
}

func TestDisableNotConfigured(t *testing.T) {
	svc := newTestService(&fakeCredStore{}, &fakeAudit{})
	err := svc.Disable(context.Background(), uuid.New(), "123456")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDisableNotEnabled(t *testing.T) {
	userID := uuid.New()
	store := &fakeCredStore{cred: &Credential{UserID: userID, Secret: "SECRET"}}
	svc := newTestService(store, &fakeAudit{})

	err := svc.Disable(context.Background(), userID, "123456")
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestRegenerateBackupCodes(t *testing.T) {
	userID := uuid.New()
	cred, oldCodes := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)

	codes, err := svc.RegenerateBackupCodes(context.Background(), userID, codeFor(t, cred.Secret, testTime))
	require.NoError(t, err)
	require.Len(t, codes, BackupCodeCount)
	require.Len(t, store.replacedHashes, BackupCodeCount)

	// Old codes stop working against the new set.
	ok, _ := VerifyBackupCode(store.replacedHashes, oldCodes[0])
	assert.False(t, ok)

	entry := audits.last(t)
	assert.Equal(t, audit.ActionBackupRegenerated, entry.Action)
	assert.True(t, entry.Success)
}

func TestRegenerateBackupCodesWrongCode(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	svc := newTestService(store, &fakeAudit{})

	_, err := svc.RegenerateBackupCodes(context.Background(), userID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Nil(t, store.replacedHashes)
}

func TestStatus(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	svc := newTestService(store, &fakeAudit{})

	info, err := svc.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, info.IsEnabled)
	assert.False(t, info.IsPending)
	assert.Equal(t, BackupCodeCount, info.BackupCodesRemaining)
	require.NotNil(t, info.EnabledAt)
}

func TestStatusNotConfigured(t *testing.T) {
	svc := newTestService(&fakeCredStore{}, &fakeAudit{})

	info, err := svc.Status(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, info.IsEnabled)
	assert.False(t, info.IsPending)
	assert.Zero(t, info.BackupCodesRemaining)
}

func TestStatusPending(t *testing.T) {
	userID := uuid.New()
	store := &fakeCredStore{cred: &Credential{UserID: userID, Secret: "SECRET"}}
	svc := newTestService(store, &fakeAudit{})

	info, err := svc.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, info.IsEnabled)
	assert.True(t, info.IsPending)
}

func TestVerifyLoginWithTOTP(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	cred.FailedAttempts = 3
	store := &fakeCredStore{cred: cred}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)

	err := svc.VerifyLogin(context.Background(), userID, codeFor(t, cred.Secret, testTime))
	require.NoError(t, err)
	assert.True(t, store.resetCalled, "success must clear the failure counter")

	entry := audits.last(t)
	assert.Equal(t, audit.ActionLoginVerified, entry.Action)
	assert.True(t, entry.Success)
}

func TestVerifyLoginWithBackupCode(t *testing.T) {
	userID := uuid.New()
	cred, codes := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	svc := newTestService(store, &fakeAudit{})

	err := svc.VerifyLogin(context.Background(), userID, FormatBackupCode(codes[0]))
	require.NoError(t, err)
	require.Len(t, store.replacedHashes, BackupCodeCount-1, "consumed code must be persisted away")

	// The same backup code cannot be used twice.
	err = svc.VerifyLogin(context.Background(), userID, FormatBackupCode(codes[0]))
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyLoginWrongCodeCountsFailure(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	store := &fakeCredStore{cred: cred}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)

	err := svc.VerifyLogin(context.Background(), userID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, 1, store.recordedAttempt)
	assert.Nil(t, store.recordedLock)

	entry := audits.last(t)
	assert.Equal(t, audit.ActionLoginFailed, entry.Action)
}

func TestVerifyLoginLocksAfterFiveFailures(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	cred.FailedAttempts = maxFailedAttempts - 1
	store := &fakeCredStore{cred: cred}
	audits := &fakeAudit{}
	svc := newTestService(store, audits)

	err := svc.VerifyLogin(context.Background(), userID, "000000")
	assert.ErrorIs(t, err, ErrLocked)
	require.NotNil(t, store.recordedLock)
	assert.Equal(t, testTime.Add(lockoutDuration), *store.recordedLock)

	entry := audits.last(t)
	assert.Equal(t, audit.ActionLoginLocked, entry.Action)
}

func TestVerifyLoginRejectedWhileLocked(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	lockedUntil := testTime.Add(5 * time.Minute)
	cred.LockedUntil = &lockedUntil
	store := &fakeCredStore{cred: cred}
	svc := newTestService(store, &fakeAudit{})

	// Even the right code is rejected during the lockout window.
	err := svc.VerifyLogin(context.Background(), userID, codeFor(t, cred.Secret, testTime))
	assert.ErrorIs(t, err, ErrLocked)
}

func TestVerifyLoginLockExpires(t *testing.T) {
	userID := uuid.New()
	cred, _ := enabledCredential(t, userID)
	lockedUntil := testTime.Add(-time.Minute)
	cred.LockedUntil = &lockedUntil
	cred.FailedAttempts = maxFailedAttempts
	store := &fakeCredStore{cred: cred}
	svc := newTestService(store, &fakeAudit{})

	err := svc.VerifyLogin(context.Background(), userID, codeFor(t, cred.Secret, testTime))
	require.NoError(t, err)
	assert.True(t, store.resetCalled)
}

func TestVerifyLoginNotEnabled(t *testing.T) {
	userID := uuid.New()
	store := &fakeCredStore{cred: &Credential{UserID: userID, Secret: "SECRET"}}
	svc := newTestService(store, &fakeAudit{})

	err := svc.VerifyLogin(context.Background(), userID, "123456")
	assert.ErrorIs(t, err, ErrNotEnabled)
}

type recordingSender struct {
	sent []notify.EmailMessage
}

func (s *recordingSender) Send(_ context.Context, msg notify.EmailMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

func TestConfirmSetupSendsChangeAlert(t *testing.T) {
	store := &fakeCredStore{}
	sender := &recordingSender{}
	svc := NewService(store, &fakeAudit{}, sender, nil, nil)
	svc.now = func() time.Time { return testTime }
	userID := uuid.New()

	ctx := session.WithUser(context.Background(), userID, "pat@example.com")
	info, err := svc.InitiateSetup(ctx, userID, "pat@example.com")
	require.NoError(t, err)

	_, err = svc.ConfirmSetup(ctx, userID, codeFor(t, info.Secret, testTime))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "pat@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Subject, "enabled")
}
