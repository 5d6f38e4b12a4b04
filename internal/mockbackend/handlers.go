package mockbackend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"sitedash/internal/domain"
)

type ctxKey struct{}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// authenticate requires a valid bearer token naming an existing user.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		userID, err := s.tokens.Verify(raw)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		if _, err := s.store.User(userID); err != nil {
			writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	var v Validator
	v.Email("email", req.Email)
	v.Required("password", req.Password)
	if !v.Valid() {
		v.Write(w)
		return
	}

	user, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		v.Fail("email", "The provided credentials are incorrect.")
		v.Write(w)
		return
	}
	s.issue(w, http.StatusOK, user, req.DeviceName)
}

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	DeviceName           string `json:"device_name"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	var v Validator
	v.Required("name", req.Name)
	v.Email("email", req.Email)
	if v.Required("password", req.Password) {
		v.MinLength("password", req.Password, 8)
		if req.Password != req.PasswordConfirmation {
			v.Fail("password", "The password field confirmation does not match.")
		}
	}
	if !v.Valid() {
		v.Write(w)
		return
	}

	user, err := s.store.CreateUser(req.Name, req.Email, req.Password)
	if errors.Is(err, ErrEmailTaken) {
		v.Fail("email", "The email has already been taken.")
		v.Write(w)
		return
	}
	if err != nil {
		slog.Error("failed to create user", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "Server Error")
		return
	}
	s.issue(w, http.StatusCreated, user, req.DeviceName)
}

func (s *Server) issue(w http.ResponseWriter, status int, user domain.User, device string) {
	token, err := s.tokens.Issue(string(user.ID), device)
	if err != nil {
		slog.Error("failed to issue token", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "Server Error")
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: user})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	user, err := s.store.User(userID)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": user,
		"plan": s.store.Plan(userID),
	})
}

type completeProfileRequest struct {
	Name        string `json:"name"`
	Position    string `json:"position"`
	AccountType string `json:"account_type"`
	Phone       string `json:"phone"`
	AvatarURL   string `json:"avatar_url"`
}

func (s *Server) completeProfile(w http.ResponseWriter, r *http.Request) {
	var req completeProfileRequest
	if !decode(w, r, &req) {
		return
	}
	var v Validator
	v.Required("position", req.Position)
	v.Required("phone", req.Phone)
	v.In("account_type", req.AccountType, domain.AccountTypeIndividual, domain.AccountTypeCompany)
	if !v.Valid() {
		v.Write(w)
		return
	}

	user, err := s.store.UpdateUser(userIDFrom(r.Context()), func(u *domain.User) {
		if name := strings.TrimSpace(req.Name); name != "" {
			u.Name = name
		}
		u.Position = req.Position
		u.Phone = req.Phone
		if req.AccountType != "" {
			u.AccountType = req.AccountType
		} else if u.AccountType == "" {
			u.AccountType = domain.AccountTypeIndividual
		}
		if req.AvatarURL != "" {
			u.AvatarURL = req.AvatarURL
		}
	})
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type companyRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	CompanyName string `json:"company_name"`
	CompanyType string `json:"company_type"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

func (s *Server) createCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if !decode(w, r, &req) {
		return
	}
	var v Validator
	v.Required("name", req.Name)
	v.Required("type", req.Type)
	if !v.Valid() {
		v.Write(w)
		return
	}

	company, _, err := s.store.AttachCompany(userIDFrom(r.Context()), domain.Company{
		Name: strings.TrimSpace(req.Name), Type: req.Type, Phone: req.Phone, Address: req.Address,
	})
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"company": company})
}

func (s *Server) completeSocialOnboarding(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if !decode(w, r, &req) {
		return
	}
	var v Validator
	v.Required("company_name", req.CompanyName)
	v.Required("company_type", req.CompanyType)
	if !v.Valid() {
		v.Write(w)
		return
	}

	userID := userIDFrom(r.Context())
	if !s.store.NeedsCompanySetup(userID) {
		writeMessage(w, http.StatusConflict, "Company setup has already been completed.")
		return
	}
	company, user, err := s.store.AttachCompany(userID, domain.Company{
		Name: strings.TrimSpace(req.CompanyName), Type: req.CompanyType, Phone: req.Phone, Address: req.Address,
	})
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}
	if req.Phone != "" {
		user, _ = s.store.UpdateUser(userID, func(u *domain.User) { u.Phone = req.Phone })
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": company, "user": user})
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": s.store.Plans()})
}

func (s *Server) selectPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"plan_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	var v Validator
	if !v.Required("plan_id", req.PlanID) {
		v.Write(w)
		return
	}
	plan, err := s.store.SelectPlan(userIDFrom(r.Context()), req.PlanID)
	if errors.Is(err, ErrPlanNotFound) {
		v.Fail("plan_id", "The selected plan id is invalid.")
		v.Write(w)
		return
	}
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": plan})
}

func providerParam(w http.ResponseWriter, r *http.Request) (domain.Provider, bool) {
	p, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Unsupported provider.")
		return "", false
	}
	return p, true
}

func (s *Server) socialRedirect(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(w, r)
	if !ok {
		return
	}
	redirect, _, err := s.social.AuthorizationURL(p)
	if err != nil {
		slog.Error("failed to build authorization url", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect_url": redirect})
}

func (s *Server) socialCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if !decode(w, r, &req) {
		return
	}

	id, err := s.social.Exchange(p, req.Code, req.State)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid authorization code.")
		return
	}

	user, _ := s.store.SocialUser(id.Email, id.Name)
	token, err := s.tokens.Issue(string(user.ID), string(p))
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Server Error")
		return
	}

	needsSetup := s.store.NeedsCompanySetup(string(user.ID))
	resp := map[string]any{
		"token":               token,
		"user":                user,
		"needs_company_setup": needsSetup,
		"social_data":         nil,
	}
	if needsSetup {
		resp["social_data"] = domain.SocialData{
			Provider:               p,
			Name:                   user.Name,
			Email:                  user.Email,
			AvatarURL:              id.AvatarURL,
			CompanyNameSuggestions: CompanySuggestions(user.Email, user.Name),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// devIssueCode lets a developer or test play the provider: given a state
// from the redirect URL and an identity, it returns a code for the callback.
func (s *Server) devIssueCode(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(w, r)
	if !ok {
		return
	}
	var req struct {
		State string `json:"state"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	var v Validator
	v.Required("state", req.State)
	v.Email("email", req.Email)
	if !v.Valid() {
		v.Write(w)
		return
	}
	code, err := s.social.IssueCode(p, req.State, Identity{Email: req.Email, Name: req.Name})
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code, "state": req.State})
}
