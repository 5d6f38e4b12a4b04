// Package redis stores session state in Redis with a key TTL matching the
// state expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"sitedash/internal/domain"
	"sitedash/internal/observability"
)

const DefaultKeyPrefix = "sitedash:session:"

// Commander is the subset of the go-redis client the repository needs.
type Commander interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

type SessionStateRepository struct {
	client Commander
	prefix string
	now    func() time.Time
}

type Option func(*SessionStateRepository)

func WithKeyPrefix(prefix string) Option {
	return func(r *SessionStateRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewSessionStateRepository(client Commander, opts ...Option) *SessionStateRepository {
	r := &SessionStateRepository{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect opens a client and checks it with PING.
func Connect(ctx context.Context, addr, password string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (r *SessionStateRepository) key(sessionID string) string {
	return r.prefix + sessionID
}

// Save stores state until its ExpiresAt. A state that is already expired is
// deleted instead.
func (r *SessionStateRepository) Save(ctx context.Context, state *domain.SessionState) error {
	defer observeDuration("save", time.Now())

	if state.SessionID == "" {
		return errors.New("failed to save session state: missing session id")
	}
	now := r.now()
	ttl := state.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return r.del(ctx, state.SessionID)
	}

	stored := *state
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if err := r.client.Set(ctx, r.key(state.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

func (r *SessionStateRepository) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	defer observeDuration("get", time.Now())

	val, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session state: %w", err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	if state.Expired(r.now()) {
		return nil, domain.ErrSessionStateExpired
	}
	return &state, nil
}

func (r *SessionStateRepository) Delete(ctx context.Context, sessionID string) error {
	defer observeDuration("delete", time.Now())
	return r.del(ctx, sessionID)
}

func (r *SessionStateRepository) del(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op; Redis drops keys when their TTL runs out.
func (r *SessionStateRepository) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

func observeDuration(op string, start time.Time) {
	observability.StateStoreDuration.WithLabelValues("redis", op).Observe(time.Since(start).Seconds())
}

var _ domain.SessionStateRepository = (*SessionStateRepository)(nil)
