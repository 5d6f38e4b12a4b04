package mockbackend

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sitedash/internal/domain"
)

const (
	stateTTL = 10 * time.Minute
	codeTTL  = 5 * time.Minute
)

var (
	ErrUnknownState = errors.New("unknown or expired state")
	ErrInvalidCode  = errors.New("invalid or already used authorization code")
)

// Identity is what a provider reports about the person signing in.
type Identity struct {
	Email     string
	Name      string
	AvatarURL string
}

type pendingState struct {
	provider domain.Provider
	expires  time.Time
}

type issuedCode struct {
	provider domain.Provider
	state    string
	identity Identity
	expires  time.Time
}

// SocialAuth plays both sides of the authorization-code flow: it builds the
// real provider authorization URL, and since no provider calls back to a
// mock, it mints the codes a provider would have issued. Codes are single
// use.
type SocialAuth struct {
	configs map[domain.Provider]*oauth2.Config
	now     func() time.Time

	mu     sync.Mutex
	states map[string]pendingState
	codes  map[string]issuedCode
}

func NewSocialAuth(googleClientID, facebookClientID, redirectBase string) *SocialAuth {
	redirectBase = strings.TrimRight(redirectBase, "/")
	return &SocialAuth{
		configs: map[domain.Provider]*oauth2.Config{
			domain.ProviderGoogle: {
				ClientID:    googleClientID,
				Endpoint:    google.Endpoint,
				RedirectURL: redirectBase + "/auth/google/callback",
				Scopes:      []string{"openid", "profile", "email"},
			},
			domain.ProviderFacebook: {
				ClientID:    facebookClientID,
				Endpoint:    facebook.Endpoint,
				RedirectURL: redirectBase + "/auth/facebook/callback",
				Scopes:      []string{"email", "public_profile"},
			},
		},
		now:    time.Now,
		states: make(map[string]pendingState),
		codes:  make(map[string]issuedCode),
	}
}

// AuthorizationURL starts a flow with a fresh server-generated state.
func (a *SocialAuth) AuthorizationURL(p domain.Provider) (string, string, error) {
	cfg, ok := a.configs[p]
	if !ok {
		return "", "", errors.New("unsupported provider")
	}
	state, err := randomToken()
	if err != nil {
		return "", "", err
	}

	a.mu.Lock()
	a.prune()
	a.states[state] = pendingState{provider: p, expires: a.now().Add(stateTTL)}
	a.mu.Unlock()

	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), state, nil
}

// IssueCode stands in for the provider approving the request identified by
// state.
func (a *SocialAuth) IssueCode(p domain.Provider, state string, id Identity) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.states[state]
	if !ok || st.provider != p || a.now().After(st.expires) {
		return "", ErrUnknownState
	}
	code, err := randomToken()
	if err != nil {
		return "", err
	}
	a.codes[code] = issuedCode{provider: p, state: state, identity: id, expires: a.now().Add(codeTTL)}
	return code, nil
}

// Exchange redeems a code. A code is consumed by the first attempt, whether
// or not the state matches.
func (a *SocialAuth) Exchange(p domain.Provider, code, state string) (Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	issued, ok := a.codes[code]
	delete(a.codes, code)
	if !ok || issued.provider != p || issued.state != state || a.now().After(issued.expires) {
		return Identity{}, ErrInvalidCode
	}
	delete(a.states, state)
	return issued.identity, nil
}

func (a *SocialAuth) prune() {
	now := a.now()
	for k, st := range a.states {
		if now.After(st.expires) {
			delete(a.states, k)
		}
	}
	for k, c := range a.codes {
		if now.After(c.expires) {
			delete(a.codes, k)
		}
	}
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var publicMailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"yahoo.com":      true,
	"icloud.com":     true,
	"example.com":    true,
}

// CompanySuggestions derives likely company names from an e-mail address.
// Work domains suggest the domain's name; public mail domains fall back to
// the person's name.
func CompanySuggestions(email, name string) []string {
	title := cases.Title(language.English)
	at := strings.LastIndex(email, "@")
	domainPart := ""
	if at >= 0 {
		domainPart = strings.ToLower(email[at+1:])
	}

	if domainPart != "" && !publicMailDomains[domainPart] {
		label := domainPart
		if dot := strings.Index(label, "."); dot > 0 {
			label = label[:dot]
		}
		base := title.String(strings.NewReplacer("-", " ", "_", " ").Replace(label))
		return []string{base, base + " Construction", base + " LLC"}
	}

	first := strings.TrimSpace(name)
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	if first == "" {
		return []string{}
	}
	first = title.String(first)
	return []string{first + " Construction", first + " Builders"}
}
