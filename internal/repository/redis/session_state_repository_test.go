package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitedash/internal/domain"
	"sitedash/internal/onboarding"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			delete(f.ttl, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func fixedRepo(client Commander, now time.Time, opts ...Option) *SessionStateRepository {
	r := NewSessionStateRepository(client, opts...)
	r.now = func() time.Time { return now }
	return r
}

func TestSessionStateRepository_SaveSetsTTL(t *testing.T) {
	fake := newFakeRedis()
	now := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	repo := fixedRepo(fake, now)

	state := &domain.SessionState{
		SessionID:        "sid-1",
		TokenFingerprint: "fp",
		Snapshot: domain.SessionSnapshot{
			Authenticated:  true,
			User:           &domain.User{ID: "3", Name: "Ana"},
			OnboardingStep: onboarding.StepCreateCompany,
		},
		ExpiresAt: now.Add(90 * time.Minute),
	}
	require.NoError(t, repo.Save(context.Background(), state))

	assert.Equal(t, 90*time.Minute, fake.ttl["sitedash:session:sid-1"])

	got, err := repo.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, state.Snapshot, got.Snapshot)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestSessionStateRepository_SaveExpiredDeletes(t *testing.T) {
	fake := newFakeRedis()
	now := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	repo := fixedRepo(fake, now)
	fake.data["sitedash:session:sid-1"] = `{}`

	err := repo.Save(context.Background(), &domain.SessionState{SessionID: "sid-1", ExpiresAt: now})
	require.NoError(t, err)
	assert.Empty(t, fake.data)
}

func TestSessionStateRepository_SaveRequiresSessionID(t *testing.T) {
	repo := NewSessionStateRepository(newFakeRedis())
	err := repo.Save(context.Background(), &domain.SessionState{ExpiresAt: time.Now().Add(time.Hour)})
	assert.Error(t, err)
}

func TestSessionStateRepository_GetMissing(t *testing.T) {
	repo := NewSessionStateRepository(newFakeRedis())

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSessionStateNotFound)
}

func TestSessionStateRepository_GetExpiredRecord(t *testing.T) {
	fake := newFakeRedis()
	now := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	repo := fixedRepo(fake, now)
	fake.data["sitedash:session:sid-1"] = `{"session_id":"sid-1","expires_at":"2026-10-02T11:00:00Z"}`

	_, err := repo.Get(context.Background(), "sid-1")
	assert.ErrorIs(t, err, domain.ErrSessionStateExpired)
}

func TestSessionStateRepository_GetCorrupt(t *testing.T) {
	fake := newFakeRedis()
	repo := NewSessionStateRepository(fake)
	fake.data["sitedash:session:sid-1"] = `not json`

	_, err := repo.Get(context.Background(), "sid-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode session state")
}

func TestSessionStateRepository_Errors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	repo := NewSessionStateRepository(fake)
	ctx := context.Background()

	_, err := repo.Get(ctx, "sid")
	assert.ErrorContains(t, err, "failed to get session state")

	err = repo.Save(ctx, &domain.SessionState{SessionID: "sid", ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorContains(t, err, "failed to save session state")

	err = repo.Delete(ctx, "sid")
	assert.ErrorContains(t, err, "failed to delete session state")
}

func TestSessionStateRepository_KeyPrefixAndDelete(t *testing.T) {
	fake := newFakeRedis()
	now := time.Now()
	repo := fixedRepo(fake, now, WithKeyPrefix("test:"))

	require.NoError(t, repo.Save(context.Background(), &domain.SessionState{SessionID: "a", ExpiresAt: now.Add(time.Minute)}))
	_, ok := fake.data["test:a"]
	assert.True(t, ok)

	require.NoError(t, repo.Delete(context.Background(), "a"))
	assert.Empty(t, fake.data)

	n, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
