// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the dashboard.
package testutil

import (
	"context"
	"errors"
	"sync"

	"sitedash/internal/apiclient"
	"sitedash/internal/domain"
	"sitedash/internal/repository/memory"
)

// Common test errors
var ErrMockNotImplemented = errors.New("mock function not implemented")

// MockBackend implements the backend calls the session core makes. Unset
// functions fail with ErrMockNotImplemented.
type MockBackend struct {
	mu    sync.Mutex
	calls map[string]int

	// Function overrides - set these to customize behavior
	LoginFunc                    func(ctx context.Context, req apiclient.LoginRequest) (*apiclient.AuthResponse, error)
	RegisterFunc                 func(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.AuthResponse, error)
	CompleteProfileFunc          func(ctx context.Context, req apiclient.CompleteProfileRequest) (*domain.User, error)
	ProfileFunc                  func(ctx context.Context) (*apiclient.ProfileResponse, error)
	SocialRedirectFunc           func(ctx context.Context, provider domain.Provider) (string, error)
	SocialCallbackFunc           func(ctx context.Context, provider domain.Provider, req apiclient.SocialCallbackRequest) (*apiclient.SocialCallbackResponse, error)
	CompleteSocialOnboardingFunc func(ctx context.Context, req apiclient.SocialOnboardingRequest) (*apiclient.SocialOnboardingResponse, error)
	CreateCompanyFunc            func(ctx context.Context, req apiclient.CreateCompanyRequest) (*domain.Company, error)
	ListPlansFunc                func(ctx context.Context) ([]domain.Plan, error)
	SelectPlanFunc               func(ctx context.Context, req apiclient.SelectPlanRequest) (*domain.Plan, error)
}

func NewMockBackend() *MockBackend {
	return &MockBackend{calls: make(map[string]int)}
}

func (m *MockBackend) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times the named method was called.
func (m *MockBackend) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockBackend) Login(ctx context.Context, req apiclient.LoginRequest) (*apiclient.AuthResponse, error) {
	m.record("Login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockBackend) Register(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.AuthResponse, error) {
	m.record("Register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockBackend) CompleteProfile(ctx context.Context, req apiclient.CompleteProfileRequest) (*domain.User, error) {
	m.record("CompleteProfile")
	if m.CompleteProfileFunc != nil {
		return m.CompleteProfileFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockBackend) Profile(ctx context.Context) (*apiclient.ProfileResponse, error) {
	m.record("Profile")
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockBackend) SocialRedirect(ctx context.Context, provider domain.Provider) (string, error) {
	m.record("SocialRedirect")
	if m.SocialRedirectFunc != nil {
		return m.SocialRedirectFunc(ctx, provider)
	}
	return "", ErrMockNotImplemented
}

func (m *MockBackend) SocialCallback(ctx context.Context, provider domain.Provider, req apiclient.SocialCallbackRequest) (*apiclient.SocialCallbackResponse, error) {
	m.record("SocialCallback")
	if m.SocialCallbackFunc != nil {
		return m.SocialCallbackFunc(ctx, provider, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockBackend) CompleteSocialOnboarding(ctx context.Context, req apiclient.SocialOnboardingRequest) (*apiclient.SocialOnboardingResponse, error) {
	m.record("CompleteSocialOnboarding")
	if m.CompleteSocialOnboardingFunc != nil {
		return m.CompleteSocialOnboardingFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockBackend) CreateCompany(ctx context.Context, req apiclient.CreateCompanyRequest) (*domain.Company, error) {
	m.record("CreateCompany")
	if m.CreateCompanyFunc != nil {
		return m.CreateCompanyFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockBackend) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	m.record("ListPlans")
	if m.ListPlansFunc != nil {
		return m.ListPlansFunc(ctx)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockBackend) SelectPlan(ctx context.Context, req apiclient.SelectPlanRequest) (*domain.Plan, error) {
	m.record("SelectPlan")
	if m.SelectPlanFunc != nil {
		return m.SelectPlanFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

// MockStateRepository wraps the in-memory repository with overridable
// functions and call recording.
type MockStateRepository struct {
	*memory.SessionStateRepository

	mu      sync.Mutex
	saved   []domain.SessionState
	deleted []string

	SaveFunc func(ctx context.Context, state *domain.SessionState) error
	GetFunc  func(ctx context.Context, sessionID string) (*domain.SessionState, error)
}

func NewMockStateRepository() *MockStateRepository {
	return &MockStateRepository{SessionStateRepository: memory.NewSessionStateRepository()}
}

func (m *MockStateRepository) Save(ctx context.Context, state *domain.SessionState) error {
	m.mu.Lock()
	m.saved = append(m.saved, *state)
	m.mu.Unlock()
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, state)
	}
	return m.SessionStateRepository.Save(ctx, state)
}

func (m *MockStateRepository) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, sessionID)
	}
	return m.SessionStateRepository.Get(ctx, sessionID)
}

func (m *MockStateRepository) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, sessionID)
	m.mu.Unlock()
	return m.SessionStateRepository.Delete(ctx, sessionID)
}

// Saved returns every state passed to Save, in order.
func (m *MockStateRepository) Saved() []domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SessionState{}, m.saved...)
}

// Deleted returns every session id passed to Delete, in order.
func (m *MockStateRepository) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.deleted...)
}
