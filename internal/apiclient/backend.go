package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"sitedash/internal/domain"
)

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	DeviceName           string `json:"device_name"`
}

type CompleteProfileRequest struct {
	Name        string `json:"name,omitempty"`
	Position    string `json:"position"`
	AccountType string `json:"account_type,omitempty"`
	Phone       string `json:"phone"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type SocialCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type SocialOnboardingRequest struct {
	CompanyName string `json:"company_name"`
	CompanyType string `json:"company_type"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
}

type CreateCompanyRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type SelectPlanRequest struct {
	PlanID string `json:"plan_id"`
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type ProfileResponse struct {
	User domain.User  `json:"user"`
	Plan *domain.Plan `json:"plan,omitempty"`
}

type SocialCallbackResponse struct {
	Token             string             `json:"token"`
	User              domain.User        `json:"user"`
	NeedsCompanySetup bool               `json:"needs_company_setup"`
	SocialData        *domain.SocialData `json:"social_data"`
}

type SocialOnboardingResponse struct {
	Company *domain.Company `json:"company"`
	User    domain.User     `json:"user"`
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", req)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register-user", req)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.Request(ctx, http.MethodPost, path, body, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, domain.TransportError("malformed response from backend: missing token", nil)
	}
	return &resp, nil
}

// CompleteProfile accepts the user either bare or wrapped in {"user": ...}.
func (c *Client) CompleteProfile(ctx context.Context, req CompleteProfileRequest) (*domain.User, error) {
	var resp struct {
		domain.User
		Wrapped *domain.User `json:"user"`
	}
	if err := c.Request(ctx, http.MethodPost, "/auth/complete-profile", req, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Wrapped != nil {
		return resp.Wrapped, nil
	}
	if resp.User.ID == "" && resp.User.Email == "" {
		return nil, domain.TransportError("malformed response from backend: missing user", nil)
	}
	return &resp.User, nil
}

func (c *Client) Profile(ctx context.Context) (*ProfileResponse, error) {
	var resp ProfileResponse
	if err := c.Request(ctx, http.MethodGet, "/profile", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User.ID == "" && resp.User.Email == "" {
		return nil, domain.TransportError("malformed response from backend: missing user", nil)
	}
	return &resp, nil
}

// SocialRedirect returns the provider authorization URL the browser should
// be sent to.
func (c *Client) SocialRedirect(ctx context.Context, provider domain.Provider) (string, error) {
	var resp struct {
		RedirectURL string `json:"redirect_url"`
	}
	path := "/auth/" + url.PathEscape(string(provider)) + "/redirect"
	if err := c.Request(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return "", err
	}
	u, err := url.Parse(resp.RedirectURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.TransportError("malformed response from backend: invalid redirect_url", err)
	}
	return resp.RedirectURL, nil
}

func (c *Client) SocialCallback(ctx context.Context, provider domain.Provider, req SocialCallbackRequest) (*SocialCallbackResponse, error) {
	var resp SocialCallbackResponse
	path := "/auth/" + url.PathEscape(string(provider)) + "/callback"
	if err := c.Request(ctx, http.MethodPost, path, req, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, domain.TransportError("malformed response from backend: missing token", nil)
	}
	return &resp, nil
}

func (c *Client) CompleteSocialOnboarding(ctx context.Context, req SocialOnboardingRequest) (*SocialOnboardingResponse, error) {
	var resp SocialOnboardingResponse
	if err := c.Request(ctx, http.MethodPost, "/auth/complete-social-onboarding", req, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateCompany(ctx context.Context, req CreateCompanyRequest) (*domain.Company, error) {
	var resp struct {
		Company *domain.Company `json:"company"`
	}
	if err := c.Request(ctx, http.MethodPost, "/companies", req, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Company == nil {
		return nil, domain.TransportError("malformed response from backend: missing company", nil)
	}
	return resp.Company, nil
}

func (c *Client) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	var resp struct {
		Plans []domain.Plan `json:"plans"`
	}
	if err := c.Request(ctx, http.MethodGet, "/plans", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Plans == nil {
		resp.Plans = []domain.Plan{}
	}
	return resp.Plans, nil
}

func (c *Client) SelectPlan(ctx context.Context, req SelectPlanRequest) (*domain.Plan, error) {
	var resp struct {
		Plan *domain.Plan `json:"plan"`
	}
	if err := c.Request(ctx, http.MethodPost, "/plans/select", req, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Plan == nil {
		return nil, domain.TransportError("malformed response from backend: missing plan", nil)
	}
	return resp.Plan, nil
}
