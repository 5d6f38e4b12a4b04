package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sitedash/internal/credentials"
	"sitedash/internal/domain"
	"sitedash/internal/mockbackend"
	"sitedash/internal/onboarding"
)

type harness struct {
	backend *mockbackend.Server
	opts    Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mb, err := mockbackend.New(mockbackend.Config{
		JWTSecret:    "cli-test-secret",
		BcryptCost:   bcrypt.MinCost,
		RedirectBase: "http://localhost:8080",
	})
	require.NoError(t, err)
	srv := httptest.NewServer(mb.Routes())
	t.Cleanup(srv.Close)

	return &harness{
		backend: mb,
		opts: Options{
			BackendURL:      srv.URL,
			CredentialsPath: filepath.Join(t.TempDir(), "credentials.db"),
			Secret:          "cli-test-fingerprint",
		},
	}
}

// exec runs one dashctl invocation, as a new process would.
func (h *harness) exec(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(h.opts)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) snapshot(t *testing.T, args ...string) domain.SessionSnapshot {
	t.Helper()
	out, err := h.exec(t, "", args...)
	require.NoError(t, err, out)
	var snap domain.SessionSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap), out)
	return snap
}

func (h *harness) storedToken(t *testing.T) string {
	t.Helper()
	store, err := credentials.OpenBoltStore(h.opts.CredentialsPath, "default")
	require.NoError(t, err)
	defer store.Close()
	return store.Get()
}

func TestStatus_SignedOut(t *testing.T) {
	h := newHarness(t)

	snap := h.snapshot(t, "status")
	assert.False(t, snap.Authenticated)
	assert.Equal(t, onboarding.StepRegister, snap.OnboardingStep)
}

func TestOnboarding_AcrossInvocations(t *testing.T) {
	h := newHarness(t)

	snap := h.snapshot(t, "register", "--name", "Ana Ruiz", "--email", "ana@example.com", "--password", "secret123")
	require.True(t, snap.Authenticated)
	assert.Equal(t, onboarding.StepCompleteProfile, snap.OnboardingStep)
	assert.NotEmpty(t, h.storedToken(t))

	// Each command opens the file again; the step must carry over.
	snap = h.snapshot(t, "status")
	assert.Equal(t, onboarding.StepCompleteProfile, snap.OnboardingStep)

	snap = h.snapshot(t, "complete-profile", "--position", "Site manager", "--phone", "555-0100", "--account-type", "company")
	assert.Equal(t, onboarding.StepCreateCompany, snap.OnboardingStep)

	snap = h.snapshot(t, "create-company", "--name", "Acme Builders", "--type", "contractor")
	assert.Equal(t, onboarding.StepSelectPlan, snap.OnboardingStep)
	require.NotNil(t, snap.User.Company)
	assert.Equal(t, "Acme Builders", snap.User.Company.Name)

	out, err := h.exec(t, "", "plans")
	require.NoError(t, err)
	var plans []domain.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plans))
	assert.Len(t, plans, 3)

	snap = h.snapshot(t, "select-plan", "crew")
	assert.Equal(t, onboarding.StepCompleted, snap.OnboardingStep)
	require.NotNil(t, snap.Plan)
	assert.Equal(t, "Crew", snap.Plan.Name)

	snap = h.snapshot(t, "logout")
	assert.False(t, snap.Authenticated)
	assert.Empty(t, h.storedToken(t))

	snap = h.snapshot(t, "status")
	assert.False(t, snap.Authenticated)
}

func TestLogin_PasswordFromStdin(t *testing.T) {
	h := newHarness(t)
	h.snapshot(t, "register", "--name", "Ana Ruiz", "--email", "ana@example.com", "--password", "secret123")
	h.snapshot(t, "logout")

	_, err := h.exec(t, "", "login", "--email", "ana@example.com", "--password-stdin")
	assert.ErrorContains(t, err, "failed to read password")

	out, err := h.exec(t, "secret123\n", "login", "--email", "ana@example.com", "--password-stdin")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"onboarding_step": "completed"`)

	_, err = h.exec(t, "", "login", "--email", "ana@example.com", "--password", "x", "--password-stdin")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestLogin_ValidationErrorsReachTheTerminal(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec(t, "", "login", "--email", "nobody@example.com", "--password", "wrong-password")
	require.Error(t, err)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.KindValidation, apiErr.Kind)
	assert.Contains(t, err.Error(), "email: The provided credentials are incorrect.")
	assert.Empty(t, h.storedToken(t))
}

func TestCompleteProfile_SignedOut(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec(t, "", "complete-profile", "--position", "x", "--phone", "1")
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)

	h.snapshot(t, "register", "--name", "Ana Ruiz", "--email", "ana@example.com", "--password", "secret123")
	_, err = h.exec(t, "", "select-plan", "starter")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, domain.KindRequest, apiErr.Kind)
}

func TestStatus_ValidatesTokenWithoutSavedState(t *testing.T) {
	h := newHarness(t)
	h.snapshot(t, "register", "--name", "Ana Ruiz", "--email", "ana@example.com", "--password", "secret123")

	// Another profile in the same file: copy the token, but not the state.
	token := h.storedToken(t)
	store, err := credentials.OpenBoltStore(h.opts.CredentialsPath, "laptop")
	require.NoError(t, err)
	store.Set(token)
	require.NoError(t, store.Close())

	snap := h.snapshot(t, "--profile", "laptop", "status")
	assert.True(t, snap.Authenticated)
	assert.Equal(t, onboarding.StepCompleted, snap.OnboardingStep)

	store, err = credentials.OpenBoltStore(h.opts.CredentialsPath, "forged")
	require.NoError(t, err)
	store.Set("not-a-token")
	require.NoError(t, store.Close())

	snap = h.snapshot(t, "--profile", "forged", "status")
	assert.False(t, snap.Authenticated)

	store, err = credentials.OpenBoltStore(h.opts.CredentialsPath, "forged")
	require.NoError(t, err)
	defer store.Close()
	assert.Empty(t, store.Get(), "rejected token is removed")
}

func TestSocialSignIn(t *testing.T) {
	h := newHarness(t)

	out, err := h.exec(t, "", "oauth-url", "google")
	require.NoError(t, err)
	var redirect struct {
		URL string `json:"redirect_url"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &redirect))
	u, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	code, err := h.backend.Social().IssueCode(domain.ProviderGoogle, state, mockbackend.Identity{
		Email: "sam@riverside-homes.com",
		Name:  "Sam Rivers",
	})
	require.NoError(t, err)

	out, err = h.exec(t, "", "oauth-callback", "google", code, state)
	require.NoError(t, err, out)
	var result callbackResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Exchange.NeedsCompanySetup)
	assert.Contains(t, result.Exchange.CompanyNameSuggestions, "Riverside Homes")
	assert.Equal(t, onboarding.StepSocialCompanySetup, result.Session.OnboardingStep)

	snap := h.snapshot(t, "social-onboarding", "--name", "Riverside Homes", "--type", "developer")
	assert.Equal(t, onboarding.StepCompleted, snap.OnboardingStep)
	assert.False(t, snap.NeedsCompanySetup)

	_, err = h.exec(t, "", "oauth-callback", "google", code, state)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.KindOAuth, apiErr.Kind)
}

func TestOAuthURL_UnknownProvider(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec(t, "", "oauth-url", "github")
	require.Error(t, err)

	_, err = h.exec(t, "", "oauth-callback", "google", "code")
	assert.ErrorContains(t, err, "accepts 3 arg(s)")
}
