// Package memory keeps session state in process memory. It is the default
// state store and loses everything on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"sitedash/internal/domain"
)

type SessionStateRepository struct {
	mu     sync.RWMutex
	states map[string]domain.SessionState
	now    func() time.Time
}

func NewSessionStateRepository() *SessionStateRepository {
	return &SessionStateRepository{
		states: make(map[string]domain.SessionState),
		now:    time.Now,
	}
}

func (r *SessionStateRepository) Save(_ context.Context, state *domain.SessionState) error {
	stored := clone(*state)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.SessionID] = stored
	return nil
}

func (r *SessionStateRepository) Get(_ context.Context, sessionID string) (*domain.SessionState, error) {
	r.mu.RLock()
	state, ok := r.states[sessionID]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSessionStateNotFound
	}
	if state.Expired(r.now()) {
		return nil, domain.ErrSessionStateExpired
	}
	out := clone(state)
	return &out, nil
}

func (r *SessionStateRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, sessionID)
	return nil
}

func (r *SessionStateRepository) DeleteExpired(_ context.Context) (int64, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, state := range r.states {
		if state.Expired(now) {
			delete(r.states, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored states, expired ones included.
func (r *SessionStateRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

func clone(s domain.SessionState) domain.SessionState {
	s.Snapshot.User = s.Snapshot.User.Clone()
	s.Snapshot.Plan = s.Snapshot.Plan.Clone()
	s.Snapshot.SocialData = s.Snapshot.SocialData.Clone()
	return s
}

var _ domain.SessionStateRepository = (*SessionStateRepository)(nil)
