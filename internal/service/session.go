package service

import (
	"sync"

	"sitedash/internal/domain"
	"sitedash/internal/onboarding"
)

// Session is the authenticated state of one browser (web tier) or one
// process (CLI). All mutation goes through commit, which is fenced by a
// generation counter so that a result computed for an older generation is
// never applied.
type Session struct {
	id string

	mu            sync.Mutex
	generation    uint64
	bootstrapped  bool
	authenticated bool
	user          *domain.User
	plan          *domain.Plan
	social        *domain.SocialData
	fingerprint   string
	machine       *onboarding.Machine
}

// NewSession returns an unauthenticated session at the register step.
func NewSession(id string) *Session {
	return &Session{id: id, machine: onboarding.New()}
}

// RestoreSession rebuilds a session from a persisted state. The caller has
// already matched the token fingerprint against the current token.
func RestoreSession(state *domain.SessionState) *Session {
	s := NewSession(state.SessionID)
	snap := state.Snapshot
	s.authenticated = snap.Authenticated
	s.user = snap.User.Clone()
	s.plan = snap.Plan.Clone()
	s.social = snap.SocialData.Clone()
	s.fingerprint = state.TokenFingerprint
	if snap.OnboardingStep.Valid() {
		s.machine.Set(snap.OnboardingStep)
	}
	s.bootstrapped = true
	return s
}

func (s *Session) ID() string { return s.id }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) Step() onboarding.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Step()
}

// Bootstrapped reports whether the session has been initialized from the
// credential store or established by a sign-in.
func (s *Session) Bootstrapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrapped
}

// Fingerprint returns the fingerprint of the token the session was last
// validated with.
func (s *Session) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// current captures the generation without invalidating in-flight work.
func (s *Session) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// begin invalidates in-flight work and returns the new generation.
func (s *Session) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// commit applies a result if gen is still current. When ev is set the step
// transition is validated before apply runs, so a rejected event changes
// nothing.
func (s *Session) commit(gen uint64, reason Reason, ev onboarding.Event, apply func()) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return Change{}, staleError()
	}

	prev := s.machine.Step()
	next := prev
	if ev != "" {
		n, err := onboarding.Next(prev, ev)
		if err != nil {
			return Change{}, transitionError(prev, err)
		}
		next = n
	}

	if apply != nil {
		apply()
	}
	if ev != "" {
		s.machine.Set(next)
	}
	s.generation++

	return s.changeLocked(reason, prev), nil
}

// signInLocked records a freshly issued or validated token's user.
func (s *Session) signInLocked(user *domain.User, fingerprint string) {
	s.authenticated = true
	s.user = user.Clone()
	s.plan = nil
	s.social = nil
	s.fingerprint = fingerprint
	s.bootstrapped = true
}

func (s *Session) attachCompanyLocked(c *domain.Company) {
	if s.user == nil || c == nil {
		return
	}
	company := *c
	s.user.Company = &company
}

func (s *Session) resetLocked() {
	s.authenticated = false
	s.user = nil
	s.plan = nil
	s.social = nil
	s.fingerprint = ""
	s.machine.Reset()
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		Authenticated:     s.authenticated,
		User:              s.user.Clone(),
		Plan:              s.plan.Clone(),
		OnboardingStep:    s.machine.Step(),
		NeedsCompanySetup: s.machine.NeedsCompanySetup(),
		SocialData:        s.social.Clone(),
	}
}

func (s *Session) changeLocked(reason Reason, prev onboarding.Step) Change {
	return Change{
		SessionID:        s.id,
		Reason:           reason,
		Generation:       s.generation,
		PreviousStep:     prev,
		Snapshot:         s.snapshotLocked(),
		TokenFingerprint: s.fingerprint,
		session:          s,
	}
}
