package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sitedash/internal/credentials"
	"sitedash/internal/domain"
	"sitedash/internal/observability"
	"sitedash/internal/security"
)

const (
	defaultIdleTTL     = 30 * time.Minute
	evictionInterval   = time.Minute
	stateSweepInterval = time.Hour
)

type registryEntry struct {
	session    *Session
	lastAccess time.Time

	persistMu    sync.Mutex
	persistedGen uint64
}

func (e *registryEntry) reusable(fp string) bool {
	return !e.session.Bootstrapped() || e.session.Fingerprint() == fp
}

// SessionRegistry maps browser session ids to Sessions. Sessions live in
// memory while in use; committed snapshots are written through to a state
// repository so they survive eviction and restarts.
type SessionRegistry struct {
	repo     domain.SessionStateRepository
	fp       *security.Fingerprinter
	idleTTL  time.Duration
	stateTTL time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type RegistryOption func(*SessionRegistry)

// WithIdleTTL sets how long an unused session stays in memory.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *SessionRegistry) {
		if d > 0 {
			r.idleTTL = d
		}
	}
}

func NewSessionRegistry(repo domain.SessionStateRepository, fp *security.Fingerprinter, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		repo:     repo,
		fp:       fp,
		idleTTL:  defaultIdleTTL,
		stateTTL: credentials.TokenTTL,
		now:      time.Now,
		entries:  make(map[string]*registryEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fingerprinter returns the fingerprinter managers should use so their
// changes can be matched on restore.
func (r *SessionRegistry) Fingerprinter() *security.Fingerprinter { return r.fp }

// Session returns the session for sid that belongs to token. A held session
// whose token fingerprint differs from token is not reused; the registry
// then tries the persisted state and finally starts a fresh session. A held
// session that has not been bootstrapped yet is shared by every request for
// sid, so a sign-out fences a bootstrap still in flight.
func (r *SessionRegistry) Session(ctx context.Context, sid, token string) *Session {
	fp := r.fp.Fingerprint(token)

	if s := r.lookup(sid, fp); s != nil {
		return s
	}

	s := r.restore(ctx, sid, fp)
	if s == nil {
		s = NewSession(sid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sid]; ok && e.reusable(fp) {
		e.lastAccess = r.now()
		return e.session
	}
	r.entries[sid] = &registryEntry{session: s, lastAccess: r.now()}
	observability.SessionsActive.Set(float64(len(r.entries)))
	return s
}

func (r *SessionRegistry) lookup(sid, fp string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sid]
	if !ok || !e.reusable(fp) {
		return nil
	}
	e.lastAccess = r.now()
	return e.session
}

func (r *SessionRegistry) restore(ctx context.Context, sid, fp string) *Session {
	if r.repo == nil || fp == "" {
		return nil
	}
	start := time.Now()
	state, err := r.repo.Get(ctx, sid)
	observability.StateStoreDuration.WithLabelValues("registry", "get").Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, domain.ErrSessionStateNotFound) && !errors.Is(err, domain.ErrSessionStateExpired) {
			observability.FromContext(ctx).Error("failed to load session state", slog.String("error", err.Error()))
		}
		return nil
	}
	if state.Expired(r.now()) || subtle.ConstantTimeCompare([]byte(state.TokenFingerprint), []byte(fp)) != 1 {
		return nil
	}
	return RestoreSession(state)
}

// SessionChanged writes committed snapshots through to the repository.
// Changes from a session the registry no longer holds for that id, or older
// than one already written, are ignored.
func (r *SessionRegistry) SessionChanged(ctx context.Context, change Change) {
	r.mu.Lock()
	e, ok := r.entries[change.SessionID]
	r.mu.Unlock()

	if ok {
		if change.session != nil && e.session != change.session {
			return
		}
		e.persistMu.Lock()
		defer e.persistMu.Unlock()
		if change.Generation <= e.persistedGen {
			return
		}
		e.persistedGen = change.Generation
	}
	r.persist(ctx, change)
}

func (r *SessionRegistry) persist(ctx context.Context, change Change) {
	if r.repo == nil {
		return
	}

	var err error
	start := time.Now()
	if change.Snapshot.Authenticated && change.TokenFingerprint != "" {
		now := r.now()
		err = r.repo.Save(ctx, &domain.SessionState{
			SessionID:        change.SessionID,
			TokenFingerprint: change.TokenFingerprint,
			Snapshot:         change.Snapshot,
			ExpiresAt:        now.Add(r.stateTTL),
			UpdatedAt:        now,
		})
		observability.StateStoreDuration.WithLabelValues("registry", "save").Observe(time.Since(start).Seconds())
	} else {
		err = r.repo.Delete(ctx, change.SessionID)
		observability.StateStoreDuration.WithLabelValues("registry", "delete").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		observability.FromContext(ctx).Error("failed to persist session state",
			slog.String("reason", string(change.Reason)),
			slog.String("error", err.Error()))
	}
}

// Len returns the number of sessions held in memory.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run evicts idle sessions from memory and sweeps expired persisted state
// until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context) {
	evict := time.NewTicker(evictionInterval)
	defer evict.Stop()
	sweep := time.NewTicker(stateSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session registry")
			return
		case <-evict.C:
			if n := r.evictIdle(); n > 0 {
				slog.Debug("evicted idle sessions", slog.Int("count", n))
			}
		case <-sweep.C:
			r.sweepExpired(ctx)
		}
	}
}

func (r *SessionRegistry) evictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	evicted := 0
	for sid, e := range r.entries {
		if e.lastAccess.Before(cutoff) {
			delete(r.entries, sid)
			evicted++
		}
	}
	observability.SessionsActive.Set(float64(len(r.entries)))
	return evicted
}

func (r *SessionRegistry) sweepExpired(ctx context.Context) {
	if r.repo == nil {
		return
	}
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := r.repo.DeleteExpired(sweepCtx)
	if err != nil {
		slog.Error("session state cleanup failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("session state cleanup completed", slog.Int64("states_deleted", count))
}
