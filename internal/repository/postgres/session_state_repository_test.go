package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitedash/internal/domain"
	"sitedash/internal/onboarding"
)

var stateColumns = []string{"session_id", "token_fingerprint", "snapshot", "expires_at", "updated_at"}

type stmtMocks struct {
	upsert, get, del, deleteExpired *sqlmock.ExpectedPrepare
}

func newMockRepo(t *testing.T) (*SessionStateRepository, sqlmock.Sqlmock, stmtMocks) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var stmts stmtMocks
	stmts.upsert = mock.ExpectPrepare("INSERT INTO session_states")
	stmts.get = mock.ExpectPrepare("SELECT (.+) FROM session_states")
	stmts.del = mock.ExpectPrepare("DELETE FROM session_states WHERE session_id")
	stmts.deleteExpired = mock.ExpectPrepare("DELETE FROM session_states WHERE expires_at")

	repo, err := NewSessionStateRepository(db)
	require.NoError(t, err)
	return repo, mock, stmts
}

func sampleSnapshot() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		Authenticated: true,
		User: &domain.User{
			ID:          "42",
			Name:        "Ana Builder",
			Email:       "ana@acme.test",
			AccountType: domain.AccountTypeCompany,
			Company:     &domain.Company{ID: "7", Name: "Acme Construction"},
		},
		OnboardingStep: onboarding.StepSelectPlan,
	}
}

func TestNewSessionStateRepository_SchemaMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPrepare("INSERT INTO session_states").WillReturnError(&pq.Error{
		Code:    "42P01",
		Message: `relation "session_states" does not exist`,
	})

	repo, err := NewSessionStateRepository(db)
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, ErrSchemaMissing)
}

func TestNewSessionStateRepository_PrepareFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPrepare("INSERT INTO session_states")
	mock.ExpectPrepare("SELECT").WillReturnError(errors.New("connection reset"))

	_, err = NewSessionStateRepository(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to prepare get statement")
}

func TestSessionStateRepository_Save(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)

	expires := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	snapshot := sampleSnapshot()
	encoded, err := json.Marshal(snapshot)
	require.NoError(t, err)

	stmts.upsert.ExpectExec().
		WithArgs("sid-1", "fp-1", encoded, expires, updated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Save(context.Background(), &domain.SessionState{
		SessionID:        "sid-1",
		TokenFingerprint: "fp-1",
		Snapshot:         snapshot,
		ExpiresAt:        expires,
		UpdatedAt:        updated,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_SaveDefaultsUpdatedAt(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)
	now := time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	stmts.upsert.ExpectExec().
		WithArgs("sid-1", "fp-1", sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &domain.SessionState{
		SessionID:        "sid-1",
		TokenFingerprint: "fp-1",
		Snapshot:         sampleSnapshot(),
		ExpiresAt:        now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_SaveError(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)

	stmts.upsert.ExpectExec().WillReturnError(sql.ErrConnDone)

	err := repo.Save(context.Background(), &domain.SessionState{SessionID: "sid-1", ExpiresAt: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "failed to save session state")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_Get(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)
	now := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	snapshot := sampleSnapshot()
	encoded, err := json.Marshal(snapshot)
	require.NoError(t, err)
	expires := now.Add(24 * time.Hour)

	stmts.get.ExpectQuery().
		WithArgs("sid-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow("sid-1", "fp-1", encoded, expires, now))

	state, err := repo.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", state.SessionID)
	assert.Equal(t, "fp-1", state.TokenFingerprint)
	assert.Equal(t, expires, state.ExpiresAt)
	assert.Equal(t, snapshot, state.Snapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_GetNotFound(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)

	stmts.get.ExpectQuery().WithArgs("missing").WillReturnError(sql.ErrNoRows)

	state, err := repo.Get(context.Background(), "missing")
	assert.Nil(t, state)
	assert.ErrorIs(t, err, domain.ErrSessionStateNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_GetExpired(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)
	now := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	stmts.get.ExpectQuery().
		WithArgs("sid-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow("sid-1", "fp-1", []byte(`{}`), now.Add(-time.Second), now))

	state, err := repo.Get(context.Background(), "sid-1")
	assert.Nil(t, state)
	assert.ErrorIs(t, err, domain.ErrSessionStateExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_GetCorruptSnapshot(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)
	now := time.Now()

	stmts.get.ExpectQuery().
		WithArgs("sid-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow("sid-1", "fp-1", []byte(`{"user":`), now.Add(time.Hour), now))

	_, err := repo.Get(context.Background(), "sid-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_Delete(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)

	stmts.del.ExpectExec().WithArgs("sid-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "sid-1"))

	stmts.del.ExpectExec().WithArgs("sid-2").WillReturnError(errors.New("boom"))
	err := repo.Delete(context.Background(), "sid-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete session state")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_DeleteExpired(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)
	now := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	stmts.deleteExpired.ExpectExec().WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStateRepository_DeleteExpiredRowsAffectedError(t *testing.T) {
	repo, mock, stmts := newMockRepo(t)

	stmts.deleteExpired.ExpectExec().WillReturnResult(sqlmock.NewErrorResult(errors.New("no rows info")))

	_, err := repo.DeleteExpired(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get affected rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}
