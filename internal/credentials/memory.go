package credentials

import (
	"sync"
	"time"
)

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewMemoryStore returns an empty store whose tokens expire after ttl.
// A zero ttl uses TokenTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = TokenTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		s.token = ""
		return
	}
	s.token = token
	s.expiresAt = s.now().Add(s.ttl)
}

func (s *MemoryStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && !s.now().Before(s.expiresAt) {
		s.token = ""
	}
	return s.token
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *MemoryStore) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		s.expiresAt = s.now().Add(s.ttl)
	}
}

// ExpiresAt returns the expiry of the held token, zero when empty.
func (s *MemoryStore) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return time.Time{}
	}
	return s.expiresAt
}
