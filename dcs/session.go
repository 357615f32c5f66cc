package dcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jarvisms/godcs/internal/middleware"
)

const (
	defaultRetryAfter   = 5 * time.Second
	defaultMaxRetryWait = 30 * time.Minute
	defaultCacheSize    = 256
)

// Session holds one authenticated connection to a DCS server. A
// single Session may be shared by multiple goroutines: its
// exclusive-access lock serializes them into one request at a time to
// protect the shared server, so callers must not expect parallel
// speedup. Independent Sessions are uncoordinated.
type Session struct {
	baseURL string
	http    *http.Client
	exec    *executor
	log     *logrus.Logger

	// mu serializes every outbound exchange and guards the identity
	// fields below.
	mu       sync.Mutex
	username string
	role     string
	signedIn bool
}

type sessionOptions struct {
	httpClient   *http.Client
	logger       *logrus.Logger
	limiter      *rate.Limiter
	cacheSize    int
	defaultWait  time.Duration
	maxRetryWait time.Duration
}

// Option customizes a Session at construction.
type Option func(*sessionOptions)

// WithHTTPClient supplies the HTTP client to use. A cookie jar is
// installed on it if it has none, since the server's authentication
// token is a cookie.
func WithHTTPClient(c *http.Client) Option {
	return func(o *sessionOptions) { o.httpClient = c }
}

// WithLogger supplies the logger used by the session and its
// transport chain.
func WithLogger(l *logrus.Logger) Option {
	return func(o *sessionOptions) { o.logger = l }
}

// WithRateLimit installs a local courtesy throttle of rps requests
// per second with the given burst. Zero or negative rps disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *sessionOptions) {
		if rps > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithMetadataCache sets the size of the metadata response cache.
// Zero disables caching.
func WithMetadataCache(size int) Option {
	return func(o *sessionOptions) { o.cacheSize = size }
}

// WithRetryPolicy tunes rate-limit handling: defaultWait is used when
// a 429 response carries no usable Retry-After header, and
// maxTotalWait caps the accumulated wait per exchange before the
// client gives up with a TransportError.
func WithRetryPolicy(defaultWait, maxTotalWait time.Duration) Option {
	return func(o *sessionOptions) {
		if defaultWait > 0 {
			o.defaultWait = defaultWait
		}
		if maxTotalWait > 0 {
			o.maxRetryWait = maxTotalWait
		}
	}
}

// NewSession creates an unauthenticated session for the server at
// rootURL (the path "/api" is appended). Use SignIn, or Connect to do
// both steps at once.
func NewSession(rootURL string, opts ...Option) (*Session, error) {
	o := sessionOptions{
		cacheSize:    defaultCacheSize,
		defaultWait:  defaultRetryAfter,
		maxRetryWait: defaultMaxRetryWait,
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rootURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("dcs: invalid root url %q", rootURL)
	}

	logger := o.logger
	if logger == nil {
		logger = logrus.New()
	}

	client := o.httpClient
	if client == nil {
		client = &http.Client{}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client.Jar = jar
	}

	wrappers := []middleware.Wrapper{middleware.RequestID()}
	if o.limiter != nil {
		wrappers = append(wrappers, middleware.RateLimit(o.limiter))
	}
	wrappers = append(wrappers, middleware.Logging(logger), middleware.Metrics())
	if o.cacheSize > 0 {
		cache, err := middleware.Cache(o.cacheSize, isMetadataRequest)
		if err != nil {
			return nil, err
		}
		wrappers = append(wrappers, cache)
	}
	client.Transport = middleware.Chain(client.Transport, wrappers...)

	s := &Session{
		baseURL: strings.TrimRight(rootURL, "/") + "/api",
		http:    client,
		log:     logger,
	}
	s.exec = &executor{
		client:       client,
		log:          logger,
		defaultWait:  o.defaultWait,
		maxRetryWait: o.maxRetryWait,
	}
	return s, nil
}

// Connect creates a session and signs in. The scoped counterpart is a
// deferred SignOut:
//
//	session, err := dcs.Connect(ctx, rootURL, user, pass)
//	if err != nil { ... }
//	defer session.SignOut(context.Background())
func Connect(ctx context.Context, rootURL, username, password string, opts ...Option) (*Session, error) {
	s, err := NewSession(rootURL, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.SignIn(ctx, username, password); err != nil {
		return nil, err
	}
	return s, nil
}

// SignIn performs the authentication exchange. On failure the error
// carries the server's message and the session remains usable for
// another attempt. A session that is already signed in is signed out
// first.
func (s *Session) SignIn(ctx context.Context, username, password string) error {
	if s.SignedIn() {
		s.SignOut(ctx)
	}

	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint("/account/login/"), bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: "build sign-in request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return s.exclusive(func() error {
		resp, err := s.exec.do(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return &MalformedResponseError{Err: err}
		}
		s.username = result.Username
		s.role = result.Role
		s.signedIn = true
		s.log.WithFields(logrus.Fields{
			"username": s.username,
			"role":     s.role,
		}).Info("signed in to DCS")
		return nil
	})
}

// SignOut invalidates the current credential on a best-effort basis.
// The session always ends up unauthenticated, any server failure is
// logged and swallowed, and calling SignOut repeatedly is harmless.
func (s *Session) SignOut(ctx context.Context) {
	s.exclusive(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.endpoint("/account/logout/"), nil)
		if err == nil {
			resp, err := s.exec.do(ctx, req)
			if err != nil {
				s.log.WithError(err).Warn("sign-out request failed")
			} else {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
		s.username = ""
		s.role = ""
		s.signedIn = false
		return nil
	})
	s.log.Info("signed out of DCS")
}

// Username reports the name the server acknowledged at sign-in.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Role reports the privilege level granted at sign-in.
func (s *Session) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// SignedIn reports whether the session currently holds a credential.
func (s *Session) SignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedIn
}

// exclusive runs fn while holding the session lock, guaranteeing at
// most one in-flight request per session. This protects the shared
// remote server from request storms, not in-process data structures.
func (s *Session) exclusive(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Session) endpoint(subpath string) string {
	return s.baseURL + subpath
}

// getJSON fetches subpath under the exclusive lock and decodes the
// body into out.
func (s *Session) getJSON(ctx context.Context, subpath string, params url.Values, out interface{}) error {
	u := s.endpoint(subpath)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &TransportError{Op: "build request", Err: err}
	}

	var resp *http.Response
	if err := s.exclusive(func() error {
		var err error
		resp, err = s.exec.do(ctx, req)
		return err
	}); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &MalformedResponseError{Err: err}
	}
	return nil
}

// isMetadataRequest accepts the discovery endpoints whose responses
// are safe to cache. Readings are never cached.
func isMetadataRequest(req *http.Request) bool {
	path := req.URL.Path
	for _, p := range []string{"/Meters/", "/VirtualMeters/", "/MeterGroups/", "/MeterTypes/"} {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}
