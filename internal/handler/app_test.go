package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sitedash/internal/apiclient"
	"sitedash/internal/credentials"
	"sitedash/internal/middleware"
	"sitedash/internal/mockbackend"
	"sitedash/internal/repository/memory"
	"sitedash/internal/security"
	"sitedash/internal/service"
	ws "sitedash/internal/websocket"
)

// testApp runs the web tier in front of the in-memory backend.
type testApp struct {
	backend  *mockbackend.Server
	web      *httptest.Server
	registry *service.SessionRegistry
	state    *memory.SessionStateRepository
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWithBackend(t, nil)
}

// newTestAppWithBackend lets a test wrap the backend's routes, for example
// to hold a call open.
func newTestAppWithBackend(t *testing.T, wrap func(http.Handler) http.Handler) *testApp {
	t.Helper()

	mb, err := mockbackend.New(mockbackend.Config{
		JWTSecret:    "handler-test-secret",
		BcryptCost:   bcrypt.MinCost,
		RedirectBase: "http://web.test",
	})
	require.NoError(t, err)
	routes := mb.Routes()
	if wrap != nil {
		routes = wrap(routes)
	}
	backendSrv := httptest.NewServer(routes)
	t.Cleanup(backendSrv.Close)

	client, err := apiclient.NewClient(backendSrv.URL)
	require.NoError(t, err)

	fp := security.NewFingerprinter("handler-test-session-secret")
	state := memory.NewSessionStateRepository()
	registry := service.NewSessionRegistry(state, fp)

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	sessions := NewSessionHandler(SessionHandlerConfig{
		Client:        client,
		Fingerprinter: fp,
		Observers:     []service.Observer{registry, hub},
	})
	proxy, err := NewAPIProxy(client, credentials.CookieOptions{}, "/api")
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		Sessions: sessions,
		Events:   NewEventsHandler(hub, sessions.Snapshot, nil),
		Resolver: registry,
		Proxy:    proxy,
		Ready:    Ready(map[string]Checker{"backend": CheckBackend(client)}),
		OpenAPI:  middleware.DefaultOpenAPIValidatorConfig(true),
	})
	web := httptest.NewServer(router)
	t.Cleanup(web.Close)

	return &testApp{backend: mb, web: web, registry: registry, state: state}
}

// browser keeps cookies between requests and never follows redirects.
type browser struct {
	t      *testing.T
	app    *testApp
	jar    *cookiejar.Jar
	client *http.Client
}

func (a *testApp) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:   t,
		app: a,
		jar: jar,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.app.web.URL)
	for _, c := range b.jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) setCookie(name, value string) {
	u, _ := url.Parse(b.app.web.URL)
	b.jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// do sends a request the way the app's script would, with the CSRF header
// echoed from its cookie.
func (b *browser) do(method, path string, body any) *http.Response {
	b.t.Helper()
	if method != http.MethodGet && b.cookie(middleware.CSRFCookieName) == "" {
		b.do(http.MethodGet, "/session", nil).Body.Close()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, b.app.web.URL+path, reader)
	require.NoError(b.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := b.cookie(middleware.CSRFCookieName); token != "" {
		req.Header.Set(middleware.CSRFHeaderName, token)
	}

	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	return resp
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (b *browser) snapshot(method, path string, body any, wantStatus int) SessionResponse {
	b.t.Helper()
	resp := b.do(method, path, body)
	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		b.t.Fatalf("%s %s: status %d, want %d. Body: %s", method, path, resp.StatusCode, wantStatus, data)
	}
	return decodeResponse[SessionResponse](b.t, resp)
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
	Kind    string              `json:"kind"`
}

func (b *browser) failure(method, path string, body any, wantStatus int) errorBody {
	b.t.Helper()
	resp := b.do(method, path, body)
	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		b.t.Fatalf("%s %s: status %d, want %d. Body: %s", method, path, resp.StatusCode, wantStatus, data)
	}
	return decodeResponse[errorBody](b.t, resp)
}

func registerBody(email string) map[string]string {
	return map[string]string{
		"name":                  "Ana Builder",
		"email":                 email,
		"password":              "password123",
		"password_confirmation": "password123",
	}
}

func identity(email, name string) mockbackend.Identity {
	return mockbackend.Identity{Email: email, Name: name}
}
