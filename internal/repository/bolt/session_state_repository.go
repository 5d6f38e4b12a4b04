// Package bolt keeps session state in a bbolt file. The CLI uses it next to
// its stored token so the onboarding step survives between invocations.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"sitedash/internal/domain"
)

var sessionsBucket = []byte("sessions")

type SessionStateRepository struct {
	db  *bolt.DB
	now func() time.Time
}

// NewSessionStateRepository uses db, which may be shared with a
// credentials.BoltStore.
func NewSessionStateRepository(db *bolt.DB) (*SessionStateRepository, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create sessions bucket: %w", err)
	}
	return &SessionStateRepository{db: db, now: time.Now}, nil
}

func (r *SessionStateRepository) Save(_ context.Context, state *domain.SessionState) error {
	stored := *state
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = r.now()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(state.SessionID), data)
	})
}

func (r *SessionStateRepository) Get(_ context.Context, sessionID string) (*domain.SessionState, error) {
	var state domain.SessionState
	var found bool
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}
	if !found {
		return nil, domain.ErrSessionStateNotFound
	}
	if state.Expired(r.now()) {
		return nil, domain.ErrSessionStateExpired
	}
	return &state, nil
}

func (r *SessionStateRepository) Delete(_ context.Context, sessionID string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(sessionID))
	})
}

func (r *SessionStateRepository) DeleteExpired(_ context.Context) (int64, error) {
	now := r.now()
	var n int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var state domain.SessionState
			if err := json.Unmarshal(v, &state); err != nil || state.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

var _ domain.SessionStateRepository = (*SessionStateRepository)(nil)
