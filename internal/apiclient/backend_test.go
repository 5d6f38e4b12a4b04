package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"sitedash/internal/domain"
)

func jsonHandler(t *testing.T, method, path string, status int, body string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method || r.URL.Path != "/api"+path {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestLogin_Success(t *testing.T) {
	var got LoginRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"1|abc","user":{"id":7,"name":"Ana","email":"ana@acme.co"}}`))
	}, "")

	resp, err := c.Login(context.Background(), LoginRequest{Email: "ana@acme.co", Password: "secret", DeviceName: "web"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.Token != "1|abc" || resp.User.ID != "7" {
		t.Errorf("resp = %+v", resp)
	}
	if got.DeviceName != "web" || got.Email != "ana@acme.co" {
		t.Errorf("request body = %+v", got)
	}
}

func TestLogin_MissingTokenIsTransportError(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodPost, "/auth/login", 200, `{"user":{"id":1}}`), "")

	_, err := c.Login(context.Background(), LoginRequest{})
	if !errors.Is(err, domain.ErrTransport) {
		t.Errorf("error = %v, want transport error", err)
	}
}

func TestRegister_UsesRegisterUserPath(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodPost, "/auth/register-user", 201, `{"token":"t","user":{"id":"u1"}}`), "")

	resp, err := c.Register(context.Background(), RegisterRequest{Name: "Bo"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.User.ID != "u1" {
		t.Errorf("user id = %q", resp.User.ID)
	}
}

func TestCompleteProfile_BareAndWrapped(t *testing.T) {
	for name, body := range map[string]string{
		"bare":    `{"id":3,"name":"Ana","account_type":"company"}`,
		"wrapped": `{"user":{"id":3,"name":"Ana","account_type":"company"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, jsonHandler(t, http.MethodPost, "/auth/complete-profile", 200, body), "tok")
			u, err := c.CompleteProfile(context.Background(), CompleteProfileRequest{Position: "PM", Phone: "1"})
			if err != nil {
				t.Fatal(err)
			}
			if u.ID != "3" || u.AccountType != "company" {
				t.Errorf("user = %+v", u)
			}
		})
	}
}

func TestProfile_WithPlan(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodGet, "/profile", 200,
		`{"user":{"id":1,"email":"a@b.co","company":{"id":9,"name":"Acme"}},"plan":{"id":"pro","name":"Pro"}}`), "tok")

	resp, err := c.Profile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Plan == nil || resp.Plan.ID != "pro" {
		t.Errorf("plan = %+v", resp.Plan)
	}
	if resp.User.Company == nil || resp.User.Company.Name != "Acme" {
		t.Errorf("company = %+v", resp.User.Company)
	}
}

func TestSocialRedirect(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodGet, "/auth/google/redirect", 200,
		`{"redirect_url":"https://accounts.google.com/o/oauth2/auth?state=xyz"}`), "")

	u, err := c.SocialRedirect(context.Background(), domain.ProviderGoogle)
	if err != nil {
		t.Fatal(err)
	}
	if u != "https://accounts.google.com/o/oauth2/auth?state=xyz" {
		t.Errorf("redirect = %q", u)
	}
}

func TestSocialRedirect_RejectsRelativeURL(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodGet, "/auth/facebook/redirect", 200, `{"redirect_url":"/oops"}`), "")

	_, err := c.SocialRedirect(context.Background(), domain.ProviderFacebook)
	if !errors.Is(err, domain.ErrTransport) {
		t.Errorf("error = %v, want transport error", err)
	}
}

func TestSocialCallback(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodPost, "/auth/google/callback", 200,
		`{"token":"s|1","user":{"id":5},"needs_company_setup":true,"social_data":{"provider":"google","company_name_suggestions":["Acme","Acme Builders"]}}`), "")

	resp, err := c.SocialCallback(context.Background(), domain.ProviderGoogle, SocialCallbackRequest{Code: "c", State: "s"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.NeedsCompanySetup || len(resp.SocialData.CompanyNameSuggestions) != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestPlansAndCompany(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/plans", jsonHandler(t, http.MethodGet, "/plans", 200, `{"plans":[{"id":"basic","name":"Basic"},{"id":"pro","name":"Pro"}]}`))
	mux.HandleFunc("/api/plans/select", jsonHandler(t, http.MethodPost, "/plans/select", 200, `{"plan":{"id":"pro","name":"Pro"}}`))
	mux.HandleFunc("/api/companies", jsonHandler(t, http.MethodPost, "/companies", 201, `{"company":{"id":4,"name":"Acme"}}`))
	c := newTestClient(t, mux.ServeHTTP, "tok")

	plans, err := c.ListPlans(context.Background())
	if err != nil || len(plans) != 2 {
		t.Fatalf("ListPlans() = %v, %v", plans, err)
	}

	plan, err := c.SelectPlan(context.Background(), SelectPlanRequest{PlanID: "pro"})
	if err != nil || plan.ID != "pro" {
		t.Fatalf("SelectPlan() = %v, %v", plan, err)
	}

	company, err := c.CreateCompany(context.Background(), CreateCompanyRequest{Name: "Acme", Type: "general_contractor"})
	if err != nil || company.ID != "4" {
		t.Fatalf("CreateCompany() = %v, %v", company, err)
	}
}

func TestListPlans_EmptyIsNonNil(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodGet, "/plans", 200, `{}`), "")
	plans, err := c.ListPlans(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if plans == nil {
		t.Error("plans must be an empty slice, not nil")
	}
}
