package mfa

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetCredential(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"user_id", "secret", "is_enabled", "enabled_at", "backup_codes",
		"failed_attempts", "locked_until", "created_at", "updated_at",
	}).AddRow(userID, "JBSWY3DPEHPK3PXP", true, now, pq.Array([]string{"hash1", "hash2"}),
		0, nil, now, now)

	mock.ExpectQuery("SELECT user_id, secret").
		WithArgs(userID).
		WillReturnRows(rows)

	cred, err := store.GetCredential(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, cred.IsEnabled)
	assert.Equal(t, []string{"hash1", "hash2"}, cred.BackupCodes)
	require.NotNil(t, cred.EnabledAt)
	assert.Nil(t, cred.LockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetCredentialNotConfigured(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()

	mock.ExpectQuery("SELECT user_id, secret").
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)

	_, err = store.GetCredential(context.Background(), userID)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStoreSavePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()

	mock.ExpectExec("INSERT INTO user_mfa").
		WithArgs(userID, "JBSWY3DPEHPK3PXP", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(false, true, sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.SavePending(context.Background(), userID, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreEnable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()
	hashes := []string{"h1", "h2"}

	mock.ExpectExec("UPDATE user_mfa").
		WithArgs(sqlmock.AnyArg(), pq.Array(hashes), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(true, false, sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Enable(context.Background(), userID, hashes)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreEnableMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()

	mock.ExpectExec("UPDATE user_mfa").
		WithArgs(sqlmock.AnyArg(), pq.Array([]string{"h1"}), userID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Enable(context.Background(), userID, []string{"h1"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStoreDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()

	mock.ExpectExec("DELETE FROM user_mfa").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(false, false, sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Delete(context.Background(), userID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReplaceBackupCodes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()
	hashes := []string{"h1", "h2", "h3"}

	mock.ExpectExec("UPDATE user_mfa").
		WithArgs(pq.Array(hashes), sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.ReplaceBackupCodes(context.Background(), userID, hashes)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordFailureWithLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()
	lockedUntil := time.Now().UTC().Add(15 * time.Minute)

	mock.ExpectExec("UPDATE user_mfa").
		WithArgs(5, sqlmock.AnyArg(), sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.RecordFailure(context.Background(), userID, 5, &lockedUntil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreResetFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	userID := uuid.New()

	mock.ExpectExec("UPDATE user_mfa").
		WithArgs(sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.ResetFailures(context.Background(), userID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
