// Package apiclient is the single path from the dashboard to the backend
// REST API. It resolves URLs, attaches the bearer token and turns every
// failure into a *domain.APIError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sitedash/internal/domain"
	"sitedash/internal/observability"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 4 << 20
	maxErrorText    = 512
)

// TokenSource supplies the bearer token for outgoing calls. Credential
// stores satisfy it.
type TokenSource interface {
	Get() string
}

// Client talks to the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTokens sets the token source used for the Authorization header.
func WithTokens(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// WithTokenSource returns a copy of c that reads tokens from ts. The web tier
// uses it to bind the shared client to one request's cookie store.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// Call describes one backend request.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Request is shorthand for Do without extra headers.
func (c *Client) Request(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	return c.Do(ctx, Call{Method: method, Path: path, Body: body, Query: query}, out)
}

// Do performs call and decodes a JSON success body into out. Bodies that are
// empty or not JSON leave out untouched.
func (c *Client) Do(ctx context.Context, call Call, out any) error {
	target, err := c.ResolveURL(call.Path, call.Query)
	if err != nil {
		return &domain.APIError{Kind: domain.KindRequest, Message: "invalid request URL", Cause: err}
	}

	body, hasBody, err := encodeBody(call.Body)
	if err != nil {
		return &domain.APIError{Kind: domain.KindRequest, Message: "failed to encode request body", Cause: err}
	}

	method := call.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &domain.APIError{Kind: domain.KindRequest, Message: "failed to create request", Cause: err}
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if hasBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Authorize(req.Header)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	endpoint := endpointLabel(call.Path)
	if err != nil {
		observability.BackendRequestDuration.WithLabelValues(method, endpoint, "error").Observe(time.Since(start).Seconds())
		return transportError(ctx, err)
	}
	defer resp.Body.Close()
	observability.BackendRequestDuration.WithLabelValues(method, endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, resp.Header.Get("Content-Type"), data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 || !isJSON(resp.Header.Get("Content-Type")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.TransportError("malformed response from backend", err)
	}
	return nil
}

// ResolveURL joins path onto the base URL and appends query. Absolute URLs
// are used as given.
func (c *Client) ResolveURL(path string, query url.Values) (string, error) {
	var raw string
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		raw = path
	} else {
		raw = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Authorize adds the bearer token to h unless the caller already set an
// Authorization header.
func (c *Client) Authorize(h http.Header) {
	if h.Get("Authorization") != "" || c.tokens == nil {
		return
	}
	if token := c.tokens.Get(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
}

func encodeBody(body any) (io.Reader, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case string:
		return strings.NewReader(b), true, nil
	case []byte:
		return bytes.NewReader(b), true, nil
	case json.RawMessage:
		return bytes.NewReader(b), true, nil
	case io.Reader:
		return b, true, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, false, err
		}
		return bytes.NewReader(data), true, nil
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func transportError(ctx context.Context, err error) *domain.APIError {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.TransportError("request cancelled", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), isTimeout(err):
		return domain.TransportError("backend request timed out", err)
	default:
		return domain.TransportError("backend unreachable", err)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// endpointLabel keeps metric cardinality bounded by dropping the query and
// collapsing absolute URLs to their path.
func endpointLabel(path string) string {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	if path == "" {
		return "/"
	}
	return "/" + strings.TrimLeft(path, "/")
}
