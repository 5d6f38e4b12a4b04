// Package mockbackend is an in-memory stand-in for the dashboard backend API.
// It speaks the same REST contract as the real service so the web tier and
// dashctl can be run and tested without it.
package mockbackend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// Config configures the mock backend.
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Providers maps provider names to OAuth client ids.
	GoogleClientID   string
	FacebookClientID string
	// RedirectBase is where providers send the browser back, e.g. the web
	// tier's origin.
	RedirectBase string
}

// Server holds the backend state.
type Server struct {
	cfg    Config
	store  *Store
	tokens *TokenIssuer
	social *SocialAuth
}

func New(cfg Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("mock backend requires a JWT secret")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Server{
		cfg:    cfg,
		store:  NewStore(cfg.BcryptCost),
		tokens: NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL),
		social: NewSocialAuth(cfg.GoogleClientID, cfg.FacebookClientID, cfg.RedirectBase),
	}, nil
}

// Store exposes the user store for seeding.
func (s *Server) Store() *Store { return s.store }

// Social exposes the social flow so tests and the dev endpoint can play the
// provider's part.
func (s *Server) Social() *SocialAuth { return s.social }

// Routes mounts the backend API. Paths match the real backend relative to
// its /api root.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/auth/login", s.login)
	r.Post("/auth/register-user", s.register)
	r.Get("/auth/{provider}/redirect", s.socialRedirect)
	r.Post("/auth/{provider}/callback", s.socialCallback)
	r.Post("/dev/oauth/{provider}/code", s.devIssueCode)
	r.Get("/plans", s.listPlans)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/profile", s.profile)
		r.Post("/auth/complete-profile", s.completeProfile)
		r.Post("/auth/complete-social-onboarding", s.completeSocialOnboarding)
		r.Post("/companies", s.createCompany)
		r.Post("/plans/select", s.selectPlan)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not Found.")
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed JSON body.")
		return false
	}
	return true
}
