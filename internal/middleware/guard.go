package middleware

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"sitedash/internal/domain"
	"sitedash/internal/observability"
)

// SnapshotFunc returns the session snapshot for a request, bootstrapping the
// session first when needed.
type SnapshotFunc func(w http.ResponseWriter, r *http.Request) domain.SessionSnapshot

// GuardConfig lists the paths the route guard treats specially.
type GuardConfig struct {
	LoginPath     string
	RegisterPath  string
	DashboardPath string
	// PublicPaths are reachable without signing in.
	PublicPaths []string
	// PassthroughPrefixes are never inspected: static assets, API proxy,
	// session endpoints and health checks. Each entry matches whole path
	// segments, so "/session" covers "/session/login" but not "/sessions".
	PassthroughPrefixes []string
	// StaticExtensions mark asset requests by file extension.
	StaticExtensions []string
}

// DefaultGuardConfig returns the web tier's navigation rules.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		LoginPath:     "/login",
		RegisterPath:  "/register",
		DashboardPath: "/dashboard",
		PublicPaths: []string{
			"/",
			"/login",
			"/register",
			"/forgot-password",
		},
		PassthroughPrefixes: []string{
			"/api/",
			"/session",
			"/auth/",
			"/health",
			"/metrics",
			"/static/",
			"/assets/",
			"/favicon",
		},
		StaticExtensions: []string{
			".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".gif",
			".svg", ".ico", ".webp", ".woff", ".woff2", ".ttf", ".txt",
		},
	}
}

// RouteGuard gates navigation. An unauthenticated request for a protected
// path is redirected to the login path with the original path and query in
// the redirect parameter; an authenticated request for login or register is
// redirected to the dashboard.
func RouteGuard(cfg GuardConfig, snapshot SnapshotFunc) func(http.Handler) http.Handler {
	public := make(map[string]struct{}, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := r.URL.Path
			if cfg.passthrough(p) {
				next.ServeHTTP(w, r)
				return
			}

			snap := snapshot(w, r)
			_, isPublic := public[p]

			switch {
			case snap.Authenticated && (p == cfg.LoginPath || p == cfg.RegisterPath):
				http.Redirect(w, r, cfg.DashboardPath, http.StatusFound)
			case !snap.Authenticated && !isPublic:
				observability.FromContext(r.Context()).Debug("redirecting unauthenticated request",
					"path", p)
				http.Redirect(w, r, cfg.LoginPath+"?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (cfg GuardConfig) passthrough(p string) bool {
	for _, prefix := range cfg.PassthroughPrefixes {
		if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range cfg.StaticExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
