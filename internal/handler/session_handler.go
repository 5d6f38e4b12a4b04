package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"sitedash/internal/apiclient"
	"sitedash/internal/credentials"
	"sitedash/internal/domain"
	"sitedash/internal/middleware"
	"sitedash/internal/observability"
	"sitedash/internal/onboarding"
	"sitedash/internal/security"
	"sitedash/internal/service"
)

const maxBodySize = 1 << 20

var nextScreens = map[onboarding.Step]string{
	onboarding.StepRegister:           "/register",
	onboarding.StepCompleteProfile:    "/onboarding/profile",
	onboarding.StepCreateCompany:      "/onboarding/company",
	onboarding.StepSocialCompanySetup: "/onboarding/social-company",
	onboarding.StepSelectPlan:         "/onboarding/plan",
	onboarding.StepCompleted:          "/dashboard",
}

// NextScreen returns the UI route that handles step.
func NextScreen(step onboarding.Step) string {
	if p, ok := nextScreens[step]; ok {
		return p
	}
	return "/register"
}

// SessionResponse is a snapshot plus the screen the UI should show next.
type SessionResponse struct {
	domain.SessionSnapshot
	Next string `json:"next"`
}

// SessionHandlerConfig wires a SessionHandler.
type SessionHandlerConfig struct {
	Client        *apiclient.Client
	Fingerprinter *security.Fingerprinter
	Observers     []service.Observer
	Cookies       credentials.CookieOptions
	DeviceName    string
	LoginPath     string
}

// SessionHandler exposes the session manager and the social sign-in flow to
// the browser.
type SessionHandler struct {
	client     *apiclient.Client
	fp         *security.Fingerprinter
	observers  []service.Observer
	cookies    credentials.CookieOptions
	deviceName string
	loginPath  string
}

func NewSessionHandler(cfg SessionHandlerConfig) *SessionHandler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	return &SessionHandler{
		client:     cfg.Client,
		fp:         cfg.Fingerprinter,
		observers:  cfg.Observers,
		cookies:    cfg.Cookies,
		deviceName: cfg.DeviceName,
		loginPath:  cfg.LoginPath,
	}
}

// bind wraps the browser's session in a manager backed by this request's
// token cookie.
func (h *SessionHandler) bind(w http.ResponseWriter, r *http.Request) (*service.SessionManager, bool) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		middleware.WriteError(w, &domain.APIError{
			Kind:    domain.KindRequest,
			Status:  http.StatusInternalServerError,
			Message: "session unavailable",
		})
		return nil, false
	}

	store := credentials.NewCookieStore(w, r, h.cookies)
	m := service.NewSessionManager(session, h.client.WithTokenSource(store), store,
		service.WithObservers(h.observers...),
		service.WithFingerprinter(h.fp),
		service.WithDeviceName(h.deviceName),
	)
	return m, true
}

// manager is bind plus bootstrap the first time the session is seen.
func (h *SessionHandler) manager(w http.ResponseWriter, r *http.Request) (*service.SessionManager, bool) {
	m, ok := h.bind(w, r)
	if !ok {
		return nil, false
	}
	if !m.Session().Bootstrapped() {
		_ = m.Initialize(r.Context())
	}
	return m, true
}

// Snapshot is the route guard's view of the request's session.
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) domain.SessionSnapshot {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		return domain.SessionSnapshot{OnboardingStep: onboarding.StepRegister}
	}
	if session.Bootstrapped() {
		return session.Snapshot()
	}
	m, _ := h.manager(w, r)
	return m.Snapshot()
}

// Get returns the current snapshot.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	writeSnapshot(w, m.Snapshot())
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req apiclient.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respond(w)(m.Login(r.Context(), req))
}

func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req apiclient.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respond(w)(m.Register(r.Context(), req))
}

// Logout always succeeds. It skips bootstrap so a pending one is fenced
// instead of raced.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	m, ok := h.bind(w, r)
	if !ok {
		return
	}
	writeSnapshot(w, m.Logout(r.Context()))
}

func (h *SessionHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	var req apiclient.CompleteProfileRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respond(w)(m.CompleteProfile(r.Context(), req))
}

func (h *SessionHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req apiclient.CreateCompanyRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respond(w)(m.CreateCompany(r.Context(), req))
}

func (h *SessionHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	plans, err := m.ListPlans(r.Context())
	if err != nil {
		middleware.WriteError(w, domain.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *SessionHandler) SelectPlan(w http.ResponseWriter, r *http.Request) {
	var req apiclient.SelectPlanRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respond(w)(m.SelectPlan(r.Context(), req.PlanID))
}

func (h *SessionHandler) SkipPlan(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respond(w)(m.SkipPlan(r.Context()))
}

type setStepRequest struct {
	Step string `json:"step"`
}

// SetStep assigns the onboarding step directly.
func (h *SessionHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	var req setStepRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respond(w)(m.SetOnboardingStep(r.Context(), onboarding.Step(req.Step)))
}

// AuthorizationURL returns where to send the browser for a provider.
func (h *SessionHandler) AuthorizationURL(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	redirect, err := service.NewSocialAuthCoordinator(m).GetAuthorizationURL(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		middleware.WriteError(w, domain.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect_url": redirect})
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Callback completes a social sign-in for script clients.
func (h *SessionHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if _, err := service.NewSocialAuthCoordinator(m).HandleCallback(r.Context(), chi.URLParam(r, "provider"), req.Code, req.State); err != nil {
		middleware.WriteError(w, domain.AsAPIError(err))
		return
	}
	writeSnapshot(w, m.Snapshot())
}

// BrowserCallback is the provider's return leg. It signs the browser in and
// redirects to the next onboarding screen, or back to login with an error.
func (h *SessionHandler) BrowserCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = providerErr
		}
		h.loginWithError(w, r, msg)
		return
	}

	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	_, err := service.NewSocialAuthCoordinator(m).HandleCallback(r.Context(), chi.URLParam(r, "provider"), q.Get("code"), q.Get("state"))
	if err != nil {
		h.loginWithError(w, r, domain.AsAPIError(err).Message)
		return
	}
	http.Redirect(w, r, NextScreen(m.Snapshot().OnboardingStep), http.StatusFound)
}

func (h *SessionHandler) loginWithError(w http.ResponseWriter, r *http.Request, msg string) {
	observability.FromContext(r.Context()).Info("social sign-in failed", slog.String("error", msg))
	http.Redirect(w, r, h.loginPath+"?error="+url.QueryEscape(msg), http.StatusFound)
}

func (h *SessionHandler) SocialOnboarding(w http.ResponseWriter, r *http.Request) {
	var req apiclient.SocialOnboardingRequest
	if !decode(w, r, &req) {
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respond(w)(service.NewSocialAuthCoordinator(m).CompleteSocialOnboarding(r.Context(), req))
}

// respond writes the outcome of a session operation.
func respond(w http.ResponseWriter) func(domain.SessionSnapshot, error) {
	return func(snap domain.SessionSnapshot, err error) {
		if err != nil {
			middleware.WriteError(w, domain.AsAPIError(err))
			return
		}
		writeSnapshot(w, snap)
	}
}

func writeSnapshot(w http.ResponseWriter, snap domain.SessionSnapshot) {
	writeJSON(w, http.StatusOK, SessionResponse{SessionSnapshot: snap, Next: NextScreen(snap.OnboardingStep)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		middleware.WriteError(w, &domain.APIError{
			Kind:    domain.KindRequest,
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
		return false
	}
	return true
}
