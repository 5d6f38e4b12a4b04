package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"sitedash/internal/middleware"
	"sitedash/internal/security"
)

// RouterConfig wires the web tier's routes.
type RouterConfig struct {
	Sessions *SessionHandler
	Events   *EventsHandler
	Resolver middleware.SessionResolver
	// Proxy serves /api/*; omitted when nil.
	Proxy http.Handler
	// Ready serves /health/ready; omitted when nil.
	Ready http.Handler
	// Metrics serves /metrics; omitted when nil.
	Metrics http.Handler
	// Pages renders UI routes; defaults to the app shell.
	Pages http.Handler

	AllowedOrigins []string
	CookieSecure   bool
	TokenCookie    string
	CSRF           *security.TokenManager
	// AuthLimiter throttles sign-in, registration and OAuth callbacks.
	AuthLimiter *middleware.RateLimiter
	OpenAPI     *middleware.OpenAPIValidatorConfig
	Guard       middleware.GuardConfig
}

// NewRouter builds the web tier's handler.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Pages == nil {
		cfg.Pages = http.HandlerFunc(Pages)
	}
	if cfg.Guard.LoginPath == "" {
		cfg.Guard = middleware.DefaultGuardConfig()
	}
	if cfg.CSRF == nil {
		cfg.CSRF = security.NewTokenManager()
	}
	s := cfg.Sessions
	throttle := func(h http.HandlerFunc) http.Handler {
		if cfg.AuthLimiter == nil {
			return h
		}
		return cfg.AuthLimiter.Middleware()(h)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Metrics())

	r.Get("/health", Health)
	if cfg.Ready != nil {
		r.Handle("/health/ready", cfg.Ready)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.CSRF(cfg.CSRF, cfg.CookieSecure))
		r.Use(middleware.SessionContext(cfg.Resolver, middleware.SessionOptions{
			Secure:      cfg.CookieSecure,
			TokenCookie: cfg.TokenCookie,
		}))
		r.Use(middleware.OpenAPIValidator(cfg.OpenAPI))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.Get)
			r.Method(http.MethodPost, "/login", throttle(s.Login))
			r.Method(http.MethodPost, "/register", throttle(s.Register))
			r.Post("/logout", s.Logout)
			r.Post("/profile", s.CompleteProfile)
			r.Post("/company", s.CreateCompany)
			r.Get("/plans", s.ListPlans)
			r.Post("/plan", s.SelectPlan)
			r.Post("/plan/skip", s.SkipPlan)
			r.Put("/step", s.SetStep)
			r.Get("/oauth/{provider}", s.AuthorizationURL)
			r.Method(http.MethodPost, "/oauth/{provider}/callback", throttle(s.Callback))
			r.Post("/social-onboarding", s.SocialOnboarding)
			if cfg.Events != nil {
				r.Get("/events", cfg.Events.HandleConnection)
			}
		})
		r.Method(http.MethodGet, "/auth/{provider}/callback", throttle(s.BrowserCallback))
		if cfg.Proxy != nil {
			r.Handle("/api/*", cfg.Proxy)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.RouteGuard(cfg.Guard, s.Snapshot))
			r.Method(http.MethodGet, "/*", cfg.Pages)
		})
	})

	return r
}
