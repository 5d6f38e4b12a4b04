package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sitedash/internal/apiclient"
	"sitedash/internal/credentials"
	"sitedash/internal/domain"
	"sitedash/internal/observability"
	"sitedash/internal/onboarding"
	"sitedash/internal/security"
)

// DefaultDeviceName labels tokens issued to the dashboard.
const DefaultDeviceName = "sitedash-web"

// Backend is the subset of the backend API the session core calls.
// *apiclient.Client implements it.
type Backend interface {
	Login(ctx context.Context, req apiclient.LoginRequest) (*apiclient.AuthResponse, error)
	Register(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.AuthResponse, error)
	CompleteProfile(ctx context.Context, req apiclient.CompleteProfileRequest) (*domain.User, error)
	Profile(ctx context.Context) (*apiclient.ProfileResponse, error)
	SocialRedirect(ctx context.Context, provider domain.Provider) (string, error)
	SocialCallback(ctx context.Context, provider domain.Provider, req apiclient.SocialCallbackRequest) (*apiclient.SocialCallbackResponse, error)
	CompleteSocialOnboarding(ctx context.Context, req apiclient.SocialOnboardingRequest) (*apiclient.SocialOnboardingResponse, error)
	CreateCompany(ctx context.Context, req apiclient.CreateCompanyRequest) (*domain.Company, error)
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	SelectPlan(ctx context.Context, req apiclient.SelectPlanRequest) (*domain.Plan, error)
}

// SessionManager establishes, validates and ends a Session and drives its
// onboarding step. A manager is cheap; the web tier builds one per request
// around the browser's shared Session and the request's cookie store.
type SessionManager struct {
	session      *Session
	backend      Backend
	store        credentials.Store
	fingerprints *security.Fingerprinter
	observers    []Observer
	deviceName   string
}

type ManagerOption func(*SessionManager)

func WithObservers(obs ...Observer) ManagerOption {
	return func(m *SessionManager) { m.observers = append(m.observers, obs...) }
}

func WithDeviceName(name string) ManagerOption {
	return func(m *SessionManager) {
		if name != "" {
			m.deviceName = name
		}
	}
}

// WithFingerprinter enables token fingerprints on committed changes.
func WithFingerprinter(f *security.Fingerprinter) ManagerOption {
	return func(m *SessionManager) { m.fingerprints = f }
}

func NewSessionManager(session *Session, backend Backend, store credentials.Store, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		session:    session,
		backend:    backend,
		store:      store,
		deviceName: DefaultDeviceName,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SessionManager) Session() *Session { return m.session }

func (m *SessionManager) Snapshot() domain.SessionSnapshot { return m.session.Snapshot() }

// Initialize validates a stored token against the backend. It never returns
// a backend failure: a rejected token is cleared and the session is left
// signed out.
func (m *SessionManager) Initialize(ctx context.Context) error {
	s := m.session
	gen := s.current()
	log := observability.FromContext(ctx)

	token := m.store.Get()
	if token == "" {
		var cleared bool
		change, err := s.commit(gen, ReasonInvalidated, "", func() {
			cleared = s.authenticated
			if cleared {
				s.resetLocked()
			}
			s.bootstrapped = true
		})
		if err == nil && cleared {
			m.notify(ctx, change)
		}
		return nil
	}

	resp, err := m.backend.Profile(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		change, cerr := s.commit(gen, ReasonInvalidated, "", func() {
			m.store.Clear()
			s.resetLocked()
			s.bootstrapped = true
		})
		if cerr != nil {
			log.Debug("discarded stale bootstrap failure")
			return nil
		}
		log.Info("stored token rejected, session cleared", slog.String("error", err.Error()))
		observability.SessionOperationsTotal.WithLabelValues("initialize", "rejected").Inc()
		m.notify(ctx, change)
		return nil
	}

	change, err := s.commit(gen, ReasonValidated, onboarding.EventSessionValidated, func() {
		s.signInLocked(&resp.User, m.fingerprint(token))
		s.plan = resp.Plan.Clone()
		// The request may have replaced or cleared the token meanwhile.
		if m.store.Get() == token {
			credentials.Touch(m.store)
		}
	})
	if err != nil {
		log.Debug("discarded stale bootstrap result")
		return nil
	}
	observability.SessionOperationsTotal.WithLabelValues("initialize", "ok").Inc()
	m.notify(ctx, change)
	return nil
}

// Login exchanges credentials for a token.
func (m *SessionManager) Login(ctx context.Context, req apiclient.LoginRequest) (domain.SessionSnapshot, error) {
	if req.DeviceName == "" {
		req.DeviceName = m.deviceName
	}
	gen := m.session.begin()

	resp, err := m.backend.Login(ctx, req)
	if err != nil {
		return m.reject(ctx, "login", err)
	}
	return m.finish(ctx, "login", gen, ReasonLogin, onboarding.EventLoggedIn, func() {
		m.store.Set(resp.Token)
		m.session.signInLocked(&resp.User, m.fingerprint(resp.Token))
	})
}

// Register creates an account and signs it in at the complete_profile step.
func (m *SessionManager) Register(ctx context.Context, req apiclient.RegisterRequest) (domain.SessionSnapshot, error) {
	if req.DeviceName == "" {
		req.DeviceName = m.deviceName
	}
	gen := m.session.begin()

	resp, err := m.backend.Register(ctx, req)
	if err != nil {
		return m.reject(ctx, "register", err)
	}
	// A new account always starts at complete_profile, whatever the
	// session's step was before.
	return m.finish(ctx, "register", gen, ReasonRegistered, "", func() {
		m.store.Set(resp.Token)
		m.session.signInLocked(&resp.User, m.fingerprint(resp.Token))
		m.session.machine.Set(onboarding.StepCompleteProfile)
	})
}

// Logout clears the token and resets the session. Any in-flight operation
// is invalidated. Calling it while signed out changes nothing.
func (m *SessionManager) Logout(ctx context.Context) domain.SessionSnapshot {
	s := m.session
	s.mu.Lock()
	s.generation++
	prev := s.machine.Step()
	hadToken := m.store.Get() != ""
	changed := s.authenticated || hadToken || prev != onboarding.StepRegister || s.social != nil
	if hadToken {
		m.store.Clear()
	}
	s.resetLocked()
	s.bootstrapped = true
	change := s.changeLocked(ReasonLogout, prev)
	s.mu.Unlock()

	if changed {
		observability.SessionOperationsTotal.WithLabelValues("logout", "ok").Inc()
		m.notify(ctx, change)
	}
	return change.Snapshot
}

// CompleteProfile submits profile details. Company accounts continue to
// company creation; individual accounts are done.
func (m *SessionManager) CompleteProfile(ctx context.Context, req apiclient.CompleteProfileRequest) (domain.SessionSnapshot, error) {
	const op = "complete_profile"
	if err := m.require(op, onboarding.StepCompleteProfile); err != nil {
		return m.reject(ctx, op, err)
	}
	gen := m.session.begin()

	user, err := m.backend.CompleteProfile(ctx, req)
	if err != nil {
		return m.reject(ctx, op, err)
	}
	accountType := req.AccountType
	if accountType == "" {
		accountType = user.AccountType
	}
	return m.finish(ctx, op, gen, ReasonProfileCompleted, onboarding.ProfileCompleted(accountType), func() {
		m.session.user = user.Clone()
	})
}

// CreateCompany creates the user's company during onboarding.
func (m *SessionManager) CreateCompany(ctx context.Context, req apiclient.CreateCompanyRequest) (domain.SessionSnapshot, error) {
	const op = "create_company"
	if err := m.require(op, onboarding.StepCreateCompany); err != nil {
		return m.reject(ctx, op, err)
	}
	gen := m.session.begin()

	company, err := m.backend.CreateCompany(ctx, req)
	if err != nil {
		return m.reject(ctx, op, err)
	}
	return m.finish(ctx, op, gen, ReasonCompanyCreated, onboarding.EventCompanyCreated, func() {
		m.session.attachCompanyLocked(company)
	})
}

// ListPlans returns the plans a user can pick. It does not touch the session.
func (m *SessionManager) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	if err := m.require("list_plans", ""); err != nil {
		return nil, err
	}
	plans, err := m.backend.ListPlans(ctx)
	if err != nil {
		return nil, domain.AsAPIError(err)
	}
	return plans, nil
}

func (m *SessionManager) SelectPlan(ctx context.Context, planID string) (domain.SessionSnapshot, error) {
	const op = "select_plan"
	if err := m.require(op, onboarding.StepSelectPlan); err != nil {
		return m.reject(ctx, op, err)
	}
	gen := m.session.begin()

	plan, err := m.backend.SelectPlan(ctx, apiclient.SelectPlanRequest{PlanID: planID})
	if err != nil {
		return m.reject(ctx, op, err)
	}
	return m.finish(ctx, op, gen, ReasonPlanSelected, onboarding.EventPlanSelected, func() {
		m.session.plan = plan.Clone()
	})
}

// SkipPlan finishes onboarding without a plan. No backend call is made.
func (m *SessionManager) SkipPlan(ctx context.Context) (domain.SessionSnapshot, error) {
	const op = "skip_plan"
	if err := m.require(op, onboarding.StepSelectPlan); err != nil {
		return m.reject(ctx, op, err)
	}
	gen := m.session.begin()
	return m.finish(ctx, op, gen, ReasonPlanSkipped, onboarding.EventPlanSkipped, nil)
}

// SetOnboardingStep assigns the step directly. It checks no transition
// rules and has no other effect.
func (m *SessionManager) SetOnboardingStep(ctx context.Context, step onboarding.Step) (domain.SessionSnapshot, error) {
	if !step.Valid() {
		return domain.SessionSnapshot{}, &domain.APIError{
			Kind:    domain.KindValidation,
			Status:  422,
			Message: fmt.Sprintf("unknown onboarding step %q", step),
			FieldErrors: map[string][]string{
				"step": {"The selected step is invalid."},
			},
		}
	}
	gen := m.session.begin()
	return m.finish(ctx, "set_step", gen, ReasonStepSet, "", func() {
		m.session.machine.Set(step)
	})
}

// finish commits a successful result or reports it as stale.
func (m *SessionManager) finish(ctx context.Context, op string, gen uint64, reason Reason, ev onboarding.Event, apply func()) (domain.SessionSnapshot, error) {
	change, err := m.session.commit(gen, reason, ev, apply)
	if err != nil {
		return m.reject(ctx, op, err)
	}
	observability.SessionOperationsTotal.WithLabelValues(op, "ok").Inc()
	m.notify(ctx, change)
	return change.Snapshot, nil
}

func (m *SessionManager) reject(ctx context.Context, op string, err error) (domain.SessionSnapshot, error) {
	apiErr := domain.AsAPIError(err)
	outcome := "rejected"
	if apiErr.Kind == domain.KindStale {
		outcome = "stale"
	}
	observability.SessionOperationsTotal.WithLabelValues(op, outcome).Inc()
	observability.FromContext(ctx).Info("session operation rejected",
		slog.String("operation", op),
		slog.String("kind", string(apiErr.Kind)),
		slog.Int("status", apiErr.Status),
		slog.String("error", apiErr.Message))
	return m.session.Snapshot(), apiErr
}

// require checks that the session is signed in and, when step is set, at
// that onboarding step.
func (m *SessionManager) require(op string, step onboarding.Step) error {
	s := m.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticated {
		return &domain.APIError{Kind: domain.KindAuthentication, Status: 401, Message: "You are not signed in."}
	}
	if step != "" && s.machine.Step() != step {
		return &domain.APIError{
			Kind:    domain.KindRequest,
			Status:  409,
			Message: fmt.Sprintf("%s is not available at onboarding step %s", op, s.machine.Step()),
		}
	}
	return nil
}

func (m *SessionManager) fingerprint(token string) string {
	if m.fingerprints == nil {
		return ""
	}
	return m.fingerprints.Fingerprint(token)
}

func (m *SessionManager) notify(ctx context.Context, change Change) {
	if change.StepChanged() {
		observability.OnboardingTransitionsTotal.WithLabelValues(string(change.Snapshot.OnboardingStep)).Inc()
	}
	ctx = context.WithoutCancel(ctx)
	for _, o := range m.observers {
		o.SessionChanged(ctx, change)
	}
}

func staleError() *domain.APIError {
	return &domain.APIError{
		Kind:    domain.KindStale,
		Status:  409,
		Message: "This request was superseded by a newer sign-in or sign-out.",
	}
}

func transitionError(step onboarding.Step, err error) *domain.APIError {
	return &domain.APIError{
		Kind:    domain.KindRequest,
		Status:  409,
		Message: fmt.Sprintf("action not available at onboarding step %s", step),
		Cause:   err,
	}
}
