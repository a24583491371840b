package portal

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/eirenox/kdata-gateway/pkg/tlspolicy"
)

// Config tunes a Session or Transport.
type Config struct {
	// Timeout bounds a whole request through the session. Zero means
	// the DefaultConfig value; set a negative value for no timeout.
	Timeout time.Duration

	// DialTimeout bounds the TCP connect preceding the handshake.
	DialTimeout time.Duration

	// MaxIdleConns caps the connection pool.
	MaxIdleConns int

	// Headers are default headers applied to every request that does
	// not already set them, merged over the portal defaults.
	Headers map[string]string

	// NoDefaultHeaders drops the built-in portal header set.
	NoDefaultHeaders bool

	// Observer, when set, is notified of every handshake attempt.
	Observer HandshakeObserver
}

// DefaultConfig returns the session defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		DialTimeout:  10 * time.Second,
		MaxIdleConns: 10,
	}
}

// defaultHeaders is what the portal endpoints expect from a client; some
// of them reject requests without a browser-ish header set.
func defaultHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (compatible; kdata-gateway/1.0)")
	h.Set("Accept", "application/json, application/xml, text/plain, */*")
	h.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.8")
	h.Set("Referer", "https://www.data.go.kr")
	return h
}

// Session is an HTTP client with a policy-driven Transport mounted for
// https. Constructing a Session performs no network I/O; it is safe for
// concurrent use.
type Session struct {
	client    *http.Client
	transport *Transport
	headers   http.Header
}

// NewSession builds a Session negotiating under policy. A nil policy
// selects tlspolicy.Default(); a nil cfg selects DefaultConfig().
func NewSession(policy *tlspolicy.Policy, cfg *Config) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}
	if timeout < 0 {
		timeout = 0
	}

	transport := NewTransport(policy, cfg)

	headers := http.Header{}
	if !cfg.NoDefaultHeaders {
		headers = defaultHeaders()
	}
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	return &Session{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		transport: transport,
		headers:   headers,
	}
}

// Policy returns the session's immutable TLS policy.
func (s *Session) Policy() *tlspolicy.Policy { return s.transport.Policy() }

// Do sends req through the session, applying the session's default
// headers to any header the request leaves unset.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	for k, vs := range s.headers {
		if req.Header.Get(k) == "" {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	return s.client.Do(req)
}

// Get issues a GET request to url.
func (s *Session) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return s.Do(req)
}

// Post issues a POST request to url with the given body.
func (s *Session) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return s.Do(req)
}

// Close releases pooled connections. The session remains usable; new
// requests open fresh connections.
func (s *Session) Close() {
	s.transport.CloseIdleConnections()
}
