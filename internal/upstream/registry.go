// Package upstream manages the set of configured portal endpoints: each
// one gets its own TLS policy, portal session, and circuit breaker.
package upstream

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eirenox/kdata-gateway/internal/config"
	"github.com/eirenox/kdata-gateway/internal/egress"
	"github.com/eirenox/kdata-gateway/pkg/portal"
	"github.com/eirenox/kdata-gateway/pkg/tlspolicy"
)

// Endpoint is one configured upstream API with its negotiated session.
type Endpoint struct {
	Name            string
	BaseURL         *url.URL
	ServiceKey      string
	ServiceKeyParam string
	Headers         map[string]string
	CacheTTL        time.Duration
	DailyQuota      int

	session *portal.Session
	policy  *tlspolicy.Policy
}

// Session returns the portal session for this endpoint.
func (e *Endpoint) Session() *portal.Session { return e.session }

// Policy returns the TLS policy the endpoint's session dials with.
func (e *Endpoint) Policy() *tlspolicy.Policy { return e.policy }

// RequestURL joins the endpoint base URL with the forwarded subpath and
// query, injecting the service key parameter.
func (e *Endpoint) RequestURL(subpath string, query url.Values) string {
	u := *e.BaseURL
	u.Path = strings.TrimRight(u.Path, "/")
	if subpath != "" {
		u.Path += "/" + strings.TrimLeft(subpath, "/")
	}

	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if e.ServiceKey != "" {
		q.Set(e.ServiceKeyParam, e.ServiceKey)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Registry holds the active endpoints. Rebuilt on config reload.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[string]*Endpoint),
	}
}

func (r *Registry) Register(ep *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.Name] = ep
}

func (r *Registry) Get(name string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	return ep, ok
}

// Names returns the endpoint names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReplaceFrom swaps this registry's endpoints with those of other and
// closes the sessions that were replaced or removed.
func (r *Registry) ReplaceFrom(other *Registry) {
	other.mu.RLock()
	next := make(map[string]*Endpoint, len(other.endpoints))
	for name, ep := range other.endpoints {
		next[name] = ep
	}
	other.mu.RUnlock()

	r.mu.Lock()
	prev := r.endpoints
	r.endpoints = next
	r.mu.Unlock()

	for name, ep := range prev {
		if next[name] != ep {
			ep.session.Close()
		}
	}
}

// BuildFromConfig builds endpoint sessions from the endpoints config.
// Endpoints with invalid profiles or URLs are skipped with an error log;
// endpoints the egress policy denies are never built.
func BuildFromConfig(ctx context.Context, epCfg *config.EndpointsConfig, upCfg config.UpstreamConfig, gate *egress.Evaluator, observer portal.HandshakeObserver) *Registry {
	registry := NewRegistry()
	for name, cfg := range epCfg.Endpoints {
		ep, err := buildEndpoint(ctx, name, cfg, epCfg.Profiles, upCfg, gate, observer)
		if err != nil {
			slog.Error("skipping endpoint", "endpoint", name, "error", err)
			continue
		}
		registry.Register(ep)
	}
	return registry
}

func buildEndpoint(ctx context.Context, name string, cfg config.EndpointConfig, profiles map[string]config.ProfileConfig, upCfg config.UpstreamConfig, gate *egress.Evaluator, observer portal.HandshakeObserver) (*Endpoint, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}
	if base.Scheme != "https" {
		return nil, fmt.Errorf("base_url must be https, got %q", cfg.BaseURL)
	}

	policy, err := resolvePolicy(cfg.Profile, profiles)
	if err != nil {
		return nil, err
	}

	if gate != nil {
		allowed, reason, err := gate.Evaluate(ctx, egress.Input{
			Endpoint: name,
			Host:     base.Hostname(),
			TLS: egress.InputTLS{
				MinVersion: tlspolicy.VersionName(policy.MinVersion()),
				MaxVersion: tlspolicy.VersionName(policy.MaxVersion()),
				Ciphers:    policy.CipherNames(),
				SNI:        policy.SNIEnabled(),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("egress policy: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("denied by egress policy: %s", reason)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = upCfg.DefaultTimeout
	}
	maxIdle := cfg.MaxConcurrent
	if maxIdle == 0 {
		maxIdle = 10
	}

	session := portal.NewSession(policy, &portal.Config{
		Timeout:      timeout,
		DialTimeout:  upCfg.DialTimeout,
		MaxIdleConns: maxIdle,
		Observer:     observer,
	})

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = upCfg.DefaultCacheTTL
	}
	keyParam := cfg.ServiceKeyParam
	if keyParam == "" {
		keyParam = "serviceKey"
	}

	return &Endpoint{
		Name:            name,
		BaseURL:         base,
		ServiceKey:      cfg.ServiceKey,
		ServiceKeyParam: keyParam,
		Headers:         cfg.Headers,
		CacheTTL:        cacheTTL,
		DailyQuota:      cfg.DailyQuota,
		session:         session,
		policy:          policy,
	}, nil
}

// resolvePolicy turns a named profile into a built TLS policy. An empty
// profile name selects the built-in default.
func resolvePolicy(profile string, profiles map[string]config.ProfileConfig) (*tlspolicy.Policy, error) {
	if profile == "" {
		return tlspolicy.Default(), nil
	}
	p, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("unknown tls profile %q", profile)
	}

	opts := tlspolicy.Options{
		MinVersion: p.MinVersion,
		MaxVersion: p.MaxVersion,
		Ciphers:    p.Ciphers,
		DisableSNI: p.DisableSNI,
	}
	if p.CAFile != "" {
		pem, err := os.ReadFile(p.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in ca_file %s", p.CAFile)
		}
		opts.RootCAs = pool
	}

	policy, err := tlspolicy.Build(opts)
	if err != nil {
		return nil, fmt.Errorf("tls profile %q: %w", profile, err)
	}
	return policy, nil
}
