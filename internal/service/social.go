package service

import (
	"context"
	"strings"

	"sitedash/internal/apiclient"
	"sitedash/internal/domain"
	"sitedash/internal/onboarding"
)

// SocialAuthCoordinator runs the Google/Facebook authorization-code flow
// against the backend and feeds its result into the session.
type SocialAuthCoordinator struct {
	m *SessionManager
}

func NewSocialAuthCoordinator(m *SessionManager) *SocialAuthCoordinator {
	return &SocialAuthCoordinator{m: m}
}

// GetAuthorizationURL asks the backend where to send the browser. Nothing is
// stored locally.
func (c *SocialAuthCoordinator) GetAuthorizationURL(ctx context.Context, provider string) (string, error) {
	p, err := domain.ParseProvider(provider)
	if err != nil {
		return "", err
	}
	redirect, err := c.m.backend.SocialRedirect(ctx, p)
	if err != nil {
		return "", oauthError(err)
	}
	return redirect, nil
}

// HandleCallback exchanges the provider's code for a backend token. Codes are
// sent exactly as received; a replayed code is reported by the backend, not
// filtered here.
func (c *SocialAuthCoordinator) HandleCallback(ctx context.Context, provider, code, state string) (domain.SocialExchange, error) {
	const op = "social_callback"
	p, err := domain.ParseProvider(provider)
	if err != nil {
		_, err = c.m.reject(ctx, op, err)
		return domain.SocialExchange{}, err
	}
	if strings.TrimSpace(code) == "" || strings.TrimSpace(state) == "" {
		_, err = c.m.reject(ctx, op, &domain.APIError{
			Kind:    domain.KindOAuth,
			Status:  400,
			Message: "The sign-in response is missing its authorization code or state.",
		})
		return domain.SocialExchange{}, err
	}

	s := c.m.session
	gen := s.begin()

	resp, err := c.m.backend.SocialCallback(ctx, p, apiclient.SocialCallbackRequest{Code: code, State: state})
	if err != nil {
		_, err = c.m.reject(ctx, op, oauthError(err))
		return domain.SocialExchange{}, err
	}

	ev := onboarding.EventSocialLoggedIn
	if resp.NeedsCompanySetup {
		ev = onboarding.EventSocialSetupRequired
	}
	_, err = c.m.finish(ctx, op, gen, ReasonSocialLogin, ev, func() {
		c.m.store.Set(resp.Token)
		s.signInLocked(&resp.User, c.m.fingerprint(resp.Token))
		if resp.NeedsCompanySetup {
			s.social = socialData(p, resp.SocialData)
		}
	})
	if err != nil {
		return domain.SocialExchange{}, err
	}

	exchange := domain.SocialExchange{
		Provider:               p,
		Code:                   code,
		State:                  state,
		NeedsCompanySetup:      resp.NeedsCompanySetup,
		CompanyNameSuggestions: []string{},
	}
	if resp.SocialData != nil && resp.SocialData.CompanyNameSuggestions != nil {
		exchange.CompanyNameSuggestions = append(exchange.CompanyNameSuggestions, resp.SocialData.CompanyNameSuggestions...)
	}
	return exchange, nil
}

// CompleteSocialOnboarding submits the company for a social sign-in that is
// waiting for it. On failure the setup stays pending and may be retried.
func (c *SocialAuthCoordinator) CompleteSocialOnboarding(ctx context.Context, req apiclient.SocialOnboardingRequest) (domain.SessionSnapshot, error) {
	const op = "complete_social_onboarding"
	if err := c.m.require(op, onboarding.StepSocialCompanySetup); err != nil {
		return c.m.reject(ctx, op, err)
	}
	s := c.m.session
	gen := s.begin()

	resp, err := c.m.backend.CompleteSocialOnboarding(ctx, req)
	if err != nil {
		return c.m.reject(ctx, op, err)
	}
	return c.m.finish(ctx, op, gen, ReasonSocialOnboarding, onboarding.EventSocialOnboardingCompleted, func() {
		if resp.User.ID != "" || resp.User.Email != "" {
			s.user = resp.User.Clone()
		}
		s.attachCompanyLocked(resp.Company)
		s.social = nil
	})
}

func socialData(p domain.Provider, d *domain.SocialData) *domain.SocialData {
	out := d.Clone()
	if out == nil {
		out = &domain.SocialData{}
	}
	if out.Provider == "" {
		out.Provider = p
	}
	if out.CompanyNameSuggestions == nil {
		out.CompanyNameSuggestions = []string{}
	}
	return out
}

// oauthError marks backend rejections of the handshake as OAuth failures.
// Transport failures keep their kind.
func oauthError(err error) *domain.APIError {
	apiErr := domain.AsAPIError(err)
	if apiErr.Kind == domain.KindTransport || apiErr.Kind == domain.KindOAuth {
		return apiErr
	}
	cp := *apiErr
	cp.Kind = domain.KindOAuth
	return &cp
}

