package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sitedash/internal/domain"
	"sitedash/internal/observability"
)

const (
	upsertStateSQL = `
		INSERT INTO session_states (session_id, token_fingerprint, snapshot, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			token_fingerprint = EXCLUDED.token_fingerprint,
			snapshot = EXCLUDED.snapshot,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`
	getStateSQL = `
		SELECT session_id, token_fingerprint, snapshot, expires_at, updated_at
		FROM session_states
		WHERE session_id = $1`
	deleteStateSQL        = `DELETE FROM session_states WHERE session_id = $1`
	deleteExpiredStateSQL = `DELETE FROM session_states WHERE expires_at <= $1`
)

// SessionStateRepository stores session snapshots in PostgreSQL.
type SessionStateRepository struct {
	db                *sql.DB
	upsertStmt        *sql.Stmt
	getStmt           *sql.Stmt
	deleteStmt        *sql.Stmt
	deleteExpiredStmt *sql.Stmt
	now               func() time.Time
}

// NewSessionStateRepository prepares the repository statements. It returns
// ErrSchemaMissing when Migrate has not been run.
func NewSessionStateRepository(db *sql.DB) (*SessionStateRepository, error) {
	repo := &SessionStateRepository{db: db, now: time.Now}

	var err error
	if repo.upsertStmt, err = prepare(db, "upsert", upsertStateSQL); err != nil {
		return nil, err
	}
	if repo.getStmt, err = prepare(db, "get", getStateSQL); err != nil {
		return nil, err
	}
	if repo.deleteStmt, err = prepare(db, "delete", deleteStateSQL); err != nil {
		return nil, err
	}
	if repo.deleteExpiredStmt, err = prepare(db, "deleteExpired", deleteExpiredStateSQL); err != nil {
		return nil, err
	}
	return repo, nil
}

func prepare(db *sql.DB, name, query string) (*sql.Stmt, error) {
	stmt, err := db.Prepare(query)
	if err != nil {
		if IsUndefinedTable(err, "session_states") {
			return nil, ErrSchemaMissing
		}
		return nil, fmt.Errorf("failed to prepare %s statement: %w", name, err)
	}
	return stmt, nil
}

func (r *SessionStateRepository) Save(ctx context.Context, state *domain.SessionState) error {
	defer observeDuration("save", time.Now())

	snapshot, err := json.Marshal(state.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}

	if _, err := r.upsertStmt.ExecContext(ctx,
		state.SessionID,
		state.TokenFingerprint,
		snapshot,
		state.ExpiresAt,
		updatedAt,
	); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

func (r *SessionStateRepository) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	defer observeDuration("get", time.Now())

	var (
		state    domain.SessionState
		snapshot []byte
	)
	err := r.getStmt.QueryRowContext(ctx, sessionID).Scan(
		&state.SessionID,
		&state.TokenFingerprint,
		&snapshot,
		&state.ExpiresAt,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session state: %w", err)
	}
	if state.Expired(r.now()) {
		return nil, domain.ErrSessionStateExpired
	}
	if err := json.Unmarshal(snapshot, &state.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &state, nil
}

func (r *SessionStateRepository) Delete(ctx context.Context, sessionID string) error {
	defer observeDuration("delete", time.Now())

	if _, err := r.deleteStmt.ExecContext(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

func (r *SessionStateRepository) DeleteExpired(ctx context.Context) (int64, error) {
	defer observeDuration("delete_expired", time.Now())

	result, err := r.deleteExpiredStmt.ExecContext(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired session states: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return count, nil
}

// Close releases the prepared statements.
func (r *SessionStateRepository) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{r.upsertStmt, r.getStmt, r.deleteStmt, r.deleteExpiredStmt} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	return errors.Join(errs...)
}

func observeDuration(op string, start time.Time) {
	observability.StateStoreDuration.WithLabelValues("postgres", op).Observe(time.Since(start).Seconds())
}

var _ domain.SessionStateRepository = (*SessionStateRepository)(nil)
