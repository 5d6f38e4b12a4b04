package handler

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"sitedash/internal/apiclient"
	"sitedash/internal/credentials"
	"sitedash/internal/domain"
	"sitedash/internal/middleware"
	"sitedash/internal/observability"
)

// NewAPIProxy forwards requests under prefix to the backend, stripping the
// prefix and attaching the bearer token from the browser's token cookie.
// Browser cookies and any caller-supplied Authorization header are dropped.
func NewAPIProxy(client *apiclient.Client, cookies credentials.CookieOptions, prefix string) (http.Handler, error) {
	base, err := url.Parse(client.BaseURL())
	if err != nil {
		return nil, err
	}
	prefix = strings.TrimRight(prefix, "/")

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = "/" + strings.TrimLeft(strings.TrimPrefix(pr.In.URL.Path, prefix), "/")
			pr.Out.URL.RawPath = ""
			pr.SetURL(base)
			pr.SetXForwarded()

			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			client.WithTokenSource(credentials.NewCookieStore(nil, pr.In, cookies)).Authorize(pr.Out.Header)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			observability.FromContext(r.Context()).Warn("api proxy failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
			middleware.WriteError(w, domain.TransportError("backend unreachable", err))
		},
	}, nil
}
