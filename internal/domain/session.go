package domain

import (
	"context"
	"errors"
	"time"

	"sitedash/internal/onboarding"
)

var (
	ErrSessionStateNotFound = errors.New("session state not found")
	ErrSessionStateExpired  = errors.New("session state expired")
)

// SessionSnapshot is the read-only view of a session handed to the UI.
// The bearer token is never part of it.
type SessionSnapshot struct {
	Authenticated     bool            `json:"is_authenticated"`
	User              *User           `json:"user"`
	Plan              *Plan           `json:"plan,omitempty"`
	OnboardingStep    onboarding.Step `json:"onboarding_step"`
	NeedsCompanySetup bool            `json:"needs_company_setup"`
	SocialData        *SocialData     `json:"social_data,omitempty"`
}

// SessionState is a persisted snapshot for one browser session id.
// TokenFingerprint lets a restored snapshot be matched to the token cookie
// without storing the token itself.
type SessionState struct {
	SessionID        string          `json:"session_id"`
	TokenFingerprint string          `json:"token_fingerprint"`
	Snapshot         SessionSnapshot `json:"snapshot"`
	ExpiresAt        time.Time       `json:"expires_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Expired reports whether the state is past its expiry at now.
func (s *SessionState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionStateRepository persists session snapshots across web tier restarts.
type SessionStateRepository interface {
	Save(ctx context.Context, state *SessionState) error
	Get(ctx context.Context, sessionID string) (*SessionState, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
