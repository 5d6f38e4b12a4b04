package domain

import "fmt"

// Provider is a supported social sign-in provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// ParseProvider validates a provider name.
func ParseProvider(raw string) (Provider, error) {
	switch p := Provider(raw); p {
	case ProviderGoogle, ProviderFacebook:
		return p, nil
	default:
		return "", &APIError{
			Kind:    KindOAuth,
			Status:  400,
			Message: fmt.Sprintf("unsupported provider %q", raw),
		}
	}
}

// SocialData is what the backend learned from the provider and keeps while
// company setup is pending.
type SocialData struct {
	Provider               Provider `json:"provider,omitempty"`
	Name                   string   `json:"name,omitempty"`
	Email                  string   `json:"email,omitempty"`
	AvatarURL              string   `json:"avatar_url,omitempty"`
	CompanyNameSuggestions []string `json:"company_name_suggestions"`
}

func (d *SocialData) Clone() *SocialData {
	if d == nil {
		return nil
	}
	c := *d
	c.CompanyNameSuggestions = append([]string{}, d.CompanyNameSuggestions...)
	return &c
}

// SocialExchange describes one authorization-code exchange and its outcome.
type SocialExchange struct {
	Provider               Provider `json:"provider"`
	Code                   string   `json:"-"`
	State                  string   `json:"-"`
	NeedsCompanySetup      bool     `json:"needs_company_setup"`
	CompanyNameSuggestions []string `json:"company_name_suggestions"`
}
