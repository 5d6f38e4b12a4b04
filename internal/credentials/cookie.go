package credentials

import (
	"net/http"
	"sync"
	"time"
)

// CookieOptions controls the token cookie attributes.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	TTL      time.Duration
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = CookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	if o.TTL <= 0 {
		o.TTL = TokenTTL
	}
	return o
}

// CookieStore reads the token from the incoming request and writes changes
// as Set-Cookie headers on the response. It is bound to one request.
type CookieStore struct {
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions
	now  func() time.Time

	mu      sync.Mutex
	changed bool
	value   string
}

// NewCookieStore binds a store to a request/response pair. Either may be nil
// outside of a browser context; Get then reports no token and writes are
// dropped.
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStore {
	return &CookieStore{w: w, r: r, opts: opts.withDefaults(), now: time.Now}
}

// Get returns the token written earlier in this request, or the one the
// browser sent.
func (s *CookieStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changed {
		return s.value
	}
	if s.r == nil {
		return ""
	}
	c, err := s.r.Cookie(s.opts.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *CookieStore) Set(token string) {
	if token == "" {
		s.Clear()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = true
	s.value = token
	s.write(token, s.opts.TTL)
}

func (s *CookieStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = true
	s.value = ""
	s.write("", -1)
}

// Touch re-issues the current token with a fresh expiry.
func (s *CookieStore) Touch() {
	token := s.Get()
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(token, s.opts.TTL)
}

func (s *CookieStore) write(value string, ttl time.Duration) {
	if s.w == nil {
		return
	}
	c := &http.Cookie{
		Name:     s.opts.Name,
		Value:    value,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	}
	if ttl < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.MaxAge = int(ttl.Seconds())
		c.Expires = s.now().Add(ttl)
	}
	http.SetCookie(s.w, c)
}
