package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"sitedash/internal/credentials"
	"sitedash/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore(0)
	if token != "" {
		store.Set(token)
	}
	c, err := NewClient(server.URL+"/api", WithTokens(store))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient_RejectsRelativeBase(t *testing.T) {
	if _, err := NewClient("/api"); err == nil {
		t.Error("expected error for base URL without scheme and host")
	}
}

func TestRequest_ResolvesPathAndQuery(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}, "")

	err := c.Request(context.Background(), http.MethodGet, "projects", nil, url.Values{"page": {"2"}}, nil)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if gotPath != "/api/projects" {
		t.Errorf("path = %q, want /api/projects", gotPath)
	}
	if gotQuery != "page=2" {
		t.Errorf("query = %q, want page=2", gotQuery)
	}
}

func TestResolveURL_AbsolutePassesThrough(t *testing.T) {
	c, err := NewClient("http://backend.local/api")
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.ResolveURL("https://cdn.example.com/file?x=1", url.Values{"y": {"2"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://cdn.example.com/file?x=1&y=2" {
		t.Errorf("ResolveURL() = %q", got)
	}

	got, _ = c.ResolveURL("/profile", nil)
	if got != "http://backend.local/api/profile" {
		t.Errorf("ResolveURL() = %q", got)
	}
}

func TestRequest_Headers(t *testing.T) {
	var auth, accept, contentType, body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		contentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}, "tok-123")

	err := c.Request(context.Background(), http.MethodPost, "/auth/login", map[string]string{"email": "a@b.co"}, nil, nil)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", auth)
	}
	if accept != "application/json" {
		t.Errorf("Accept = %q", accept)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if body != `{"email":"a@b.co"}` {
		t.Errorf("body = %q", body)
	}
}

func TestRequest_CallerAuthorizationWins(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}, "stored")

	err := c.Do(context.Background(), Call{
		Method: http.MethodGet,
		Path:   "/profile",
		Header: http.Header{"Authorization": {"Bearer explicit"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer explicit" {
		t.Errorf("Authorization = %q, want caller's header", auth)
	}
}

func TestRequest_NoTokenNoHeader(t *testing.T) {
	var present bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Authorization"]
	}, "")

	if err := c.Request(context.Background(), http.MethodGet, "/profile", nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if present {
		t.Error("Authorization header sent without a stored token")
	}
}

func TestRequest_StringBodySentAsIs(t *testing.T) {
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}, "")

	if err := c.Request(context.Background(), http.MethodPost, "/raw", `{"already":"json"}`, nil, nil); err != nil {
		t.Fatal(err)
	}
	if body != `{"already":"json"}` {
		t.Errorf("body = %q", body)
	}
}

func TestRequest_DecodesJSONSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"name":"Tower A"}`))
	}, "")

	var out struct{ Name string }
	if err := c.Request(context.Background(), http.MethodGet, "/projects/1", nil, nil, &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "Tower A" {
		t.Errorf("Name = %q", out.Name)
	}
}

func TestRequest_NonJSONSuccessLeavesOutUntouched(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}, "")

	out := map[string]string{"kept": "yes"}
	if err := c.Request(context.Background(), http.MethodDelete, "/projects/1", nil, nil, &out); err != nil {
		t.Fatal(err)
	}
	if out["kept"] != "yes" {
		t.Error("non-JSON body must not touch out")
	}
}

func TestRequest_MalformedJSONIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"broken":`))
	}, "")

	var out map[string]any
	err := c.Request(context.Background(), http.MethodGet, "/profile", nil, nil, &out)
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("error = %v, want transport error", err)
	}
}

func TestRequest_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantKind    domain.ErrorKind
		wantMessage string
		wantField   string
	}{
		{
			name:        "laravel validation",
			status:      422,
			contentType: "application/json",
			body:        `{"message":"The email has already been taken.","errors":{"email":["The email has already been taken."]}}`,
			wantKind:    domain.KindValidation,
			wantMessage: "The email has already been taken.",
			wantField:   "email",
		},
		{
			name:        "string field errors",
			status:      422,
			contentType: "application/json",
			body:        `{"message":"Invalid.","errors":{"password":"too short"}}`,
			wantKind:    domain.KindValidation,
			wantMessage: "Invalid.",
			wantField:   "password",
		},
		{
			name:        "unauthenticated",
			status:      401,
			contentType: "application/json",
			body:        `{"message":"Unauthenticated."}`,
			wantKind:    domain.KindAuthentication,
			wantMessage: "Unauthenticated.",
		},
		{
			name:        "forbidden with error key",
			status:      403,
			contentType: "application/json",
			body:        `{"error":"Forbidden company"}`,
			wantKind:    domain.KindAuthentication,
			wantMessage: "Forbidden company",
		},
		{
			name:        "plain text",
			status:      500,
			contentType: "text/plain",
			body:        "database down",
			wantKind:    domain.KindRequest,
			wantMessage: "database down",
		},
		{
			name:        "empty body",
			status:      404,
			contentType: "",
			body:        "",
			wantKind:    domain.KindRequest,
			wantMessage: "Not Found",
		},
		{
			name:        "json content type but unparseable",
			status:      502,
			contentType: "application/json",
			body:        "<html>bad gateway</html>",
			wantKind:    domain.KindRequest,
			wantMessage: "Bad Gateway",
		},
		{
			name:        "json that mentions message only in text",
			status:      400,
			contentType: "application/json",
			body:        `{"detail":"the word message appears here"}`,
			wantKind:    domain.KindRequest,
			wantMessage: "Bad Request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, "")

			err := c.Request(context.Background(), http.MethodPost, "/auth/login", nil, nil, nil)
			var apiErr *domain.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *domain.APIError", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if tt.wantField != "" && len(apiErr.FieldErrors[tt.wantField]) == 0 {
				t.Errorf("missing field error for %q: %+v", tt.wantField, apiErr.FieldErrors)
			}
		})
	}
}

func TestRequest_LongTextErrorTruncated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}, "")

	err := c.Request(context.Background(), http.MethodGet, "/profile", nil, nil, nil)
	apiErr := domain.AsAPIError(err)
	if len(apiErr.Message) > maxErrorText+3 {
		t.Errorf("message length = %d, want <= %d", len(apiErr.Message), maxErrorText+3)
	}
}

func TestRequest_TransportFailures(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		base := server.URL
		server.Close()

		c, _ := NewClient(base)
		err := c.Request(context.Background(), http.MethodGet, "/profile", nil, nil, nil)
		apiErr := domain.AsAPIError(err)
		if apiErr.Kind != domain.KindTransport || apiErr.Message == "" {
			t.Errorf("error = %+v, want transport error with message", apiErr)
		}
		if apiErr.FieldErrors != nil {
			t.Error("transport errors carry no field errors")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}, "")
		c.httpClient.Timeout = 20 * time.Millisecond

		err := c.Request(context.Background(), http.MethodGet, "/profile", nil, nil, nil)
		apiErr := domain.AsAPIError(err)
		if apiErr.Kind != domain.KindTransport || apiErr.Message != "backend request timed out" {
			t.Errorf("error = %+v", apiErr)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}, "")
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := c.Request(ctx, http.MethodGet, "/profile", nil, nil, nil)
		apiErr := domain.AsAPIError(err)
		if apiErr.Kind != domain.KindTransport || apiErr.Message != "request cancelled" {
			t.Errorf("error = %+v", apiErr)
		}
	})
}

func TestRequest_NeverRetries(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}, "")

	_ = c.Request(context.Background(), http.MethodGet, "/profile", nil, nil, nil)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithTokenSource_DoesNotMutateOriginal(t *testing.T) {
	var auth []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
	}, "shared")

	other := credentials.NewMemoryStore(0)
	other.Set("per-request")
	bound := c.WithTokenSource(other)

	_ = bound.Request(context.Background(), http.MethodGet, "/a", nil, nil, nil)
	_ = c.Request(context.Background(), http.MethodGet, "/b", nil, nil, nil)

	want := []string{"Bearer per-request", "Bearer shared"}
	gotJSON, _ := json.Marshal(auth)
	wantJSON, _ := json.Marshal(want)
	if string(gotJSON) != string(wantJSON) {
		t.Errorf("Authorization headers = %s, want %s", gotJSON, wantJSON)
	}
}
