package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"sitedash/internal/credentials"
	"sitedash/internal/observability"
	"sitedash/internal/service"
)

type contextKey string

const (
	sessionContextKey   contextKey = "session"
	sessionIDContextKey contextKey = "session_id"
)

const (
	// SessionCookieName holds the opaque browser session id.
	SessionCookieName = "sid"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// SessionResolver finds the session for a browser id and bearer token.
// *service.SessionRegistry satisfies it.
type SessionResolver interface {
	Session(ctx context.Context, sid, token string) *service.Session
}

// SessionOptions controls the sid cookie and where the bearer token is read.
type SessionOptions struct {
	Secure      bool
	TokenCookie string
}

// SessionContext resolves the browser's session from the sid cookie and the
// token cookie, issuing a new sid when the browser has none. Downstream
// handlers read it with GetSession.
func SessionContext(resolver SessionResolver, opts SessionOptions) func(http.Handler) http.Handler {
	tokenCookie := opts.TokenCookie
	if tokenCookie == "" {
		tokenCookie = credentials.CookieName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := sessionID(r)
			if sid == "" {
				sid = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    sid,
					Path:     "/",
					MaxAge:   int(sessionCookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			var token string
			if c, err := r.Cookie(tokenCookie); err == nil {
				token = c.Value
			}

			ctx := observability.WithSessionID(r.Context(), sid)
			session := resolver.Session(ctx, sid, token)
			ctx = context.WithValue(ctx, sessionIDContextKey, sid)
			ctx = WithSession(ctx, session)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionID returns the sid cookie when it holds a well-formed UUID.
func sessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// WithSession stores session in ctx.
func WithSession(ctx context.Context, session *service.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// GetSession retrieves the session from context
func GetSession(ctx context.Context) (*service.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*service.Session)
	return session, ok && session != nil
}

// GetSessionID retrieves the browser session id from context
func GetSessionID(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDContextKey).(string)
	return sid, ok && sid != ""
}
