package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"sitedash/internal/domain"
	"sitedash/internal/observability"
	"sitedash/internal/security"
)

const (
	// CSRFCookieName is readable by scripts so they can echo it back.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName carries the echoed token on state-changing requests.
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRF implements the double-submit cookie check. Every response to a browser
// without a token cookie gets one; state-changing requests must send the same
// value in the X-CSRF-Token header.
//
// Token sources (checked in order):
// - Header: X-CSRF-Token
// - Header: X-XSRF-Token (alternate)
func CSRF(tm *security.TokenManager, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookieToken := ""
			if c, err := r.Cookie(CSRFCookieName); err == nil {
				cookieToken = c.Value
			}

			if cookieToken == "" {
				token, err := tm.Generate()
				if err != nil {
					slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					WriteError(w, domain.NewAPIError(http.StatusInternalServerError, "could not issue CSRF token"))
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if isSafeMethod(r.Method) || isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if err := tm.Verify(cookieToken, extractCSRFToken(r)); err != nil {
				logCSRFFailure(r, cookieToken == "")
				WriteError(w, domain.NewAPIError(http.StatusForbidden, "CSRF token missing or invalid"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod returns true if the HTTP method is idempotent and cacheable.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// isExemptPath returns true if the request path should skip CSRF validation.
// Probes carry no state. The API proxy is not exempt: it turns the token
// cookie into a bearer header.
func isExemptPath(path string) bool {
	exemptPaths := []string{
		"/health",
		"/metrics",
	}

	for _, exemptPath := range exemptPaths {
		if strings.HasPrefix(path, exemptPath) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get(CSRFHeaderName); token != "" {
		return token
	}
	return r.Header.Get("X-XSRF-Token")
}

func logCSRFFailure(r *http.Request, missingCookie bool) {
	observability.FromContext(r.Context()).Warn("CSRF validation failed",
		slog.Bool("missing_cookie", missingCookie),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
