package credentials

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var credentialsBucket = []byte("credentials")

type boltRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BoltStore keeps the token in a bbolt file, one key per profile. It is used
// by the CLI, which has no cookie jar.
type BoltStore struct {
	db      *bolt.DB
	profile []byte
	ttl     time.Duration
	now     func() time.Time
}

// OpenBoltStore opens (or creates) the credential file at path.
func OpenBoltStore(path, profile string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials file: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create credentials bucket: %w", err)
	}
	if profile == "" {
		profile = "default"
	}
	return &BoltStore{db: db, profile: []byte(profile), ttl: TokenTTL, now: time.Now}, nil
}

// DB exposes the underlying file so session state can live next to the
// token.
func (s *BoltStore) DB() *bolt.DB { return s.db }

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get() string {
	rec, ok := s.load()
	if !ok {
		return ""
	}
	if !s.now().Before(rec.ExpiresAt) {
		s.Clear()
		return ""
	}
	return rec.Token
}

func (s *BoltStore) Set(token string) {
	if token == "" {
		s.Clear()
		return
	}
	s.store(boltRecord{Token: token, ExpiresAt: s.now().Add(s.ttl)})
}

func (s *BoltStore) Clear() {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete(s.profile)
	})
	if err != nil {
		slog.Error("failed to clear stored credentials", slog.String("error", err.Error()))
	}
}

func (s *BoltStore) Touch() {
	rec, ok := s.load()
	if !ok || rec.Token == "" {
		return
	}
	rec.ExpiresAt = s.now().Add(s.ttl)
	s.store(rec)
}

// ExpiresAt returns the stored token's expiry, zero when none is stored.
func (s *BoltStore) ExpiresAt() time.Time {
	rec, ok := s.load()
	if !ok {
		return time.Time{}
	}
	return rec.ExpiresAt
}

func (s *BoltStore) load() (boltRecord, bool) {
	var rec boltRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(credentialsBucket).Get(s.profile)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		slog.Error("failed to read stored credentials", slog.String("error", err.Error()))
		return boltRecord{}, false
	}
	return rec, found
}

func (s *BoltStore) store(rec boltRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("failed to encode credentials", slog.String("error", err.Error()))
		return
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put(s.profile, data)
	})
	if err != nil {
		slog.Error("failed to write credentials", slog.String("error", err.Error()))
	}
}
