// Package portal provides HTTP sessions whose HTTPS connections negotiate
// under a fixed tlspolicy.Policy. It exists for API endpoints — notably the
// Korean public-data portal hosts — that reject a modern client's default
// TLS negotiation but must still be reached over a fully verified channel.
package portal

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/eirenox/kdata-gateway/pkg/tlspolicy"
)

// TLSDialer opens an encrypted, verified connection to addr. The HTTP layer
// depends on this capability alone; Transport is the policy-driven
// implementation.
type TLSDialer interface {
	DialTLS(ctx context.Context, network, addr string) (net.Conn, error)
}

// TLSDialerFunc adapts a function to the TLSDialer interface.
type TLSDialerFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func (f TLSDialerFunc) DialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// HandshakeObserver is invoked after every TLS handshake attempt. On
// success state carries the negotiated parameters; on failure err is the
// *HandshakeError that will propagate to the caller. Observers must be
// safe for concurrent use.
type HandshakeObserver func(host string, state tls.ConnectionState, err error)

// Transport is an http.RoundTripper that opens every TLS connection
// through a single immutable Policy. It performs no downgrade and no
// policy-weakening retry: a failed handshake surfaces to the caller as a
// *HandshakeError, and plain TCP failures pass through unchanged.
type Transport struct {
	policy   *tlspolicy.Policy
	observer HandshakeObserver
	dialer   *net.Dialer
	inner    *http.Transport
}

var _ http.RoundTripper = (*Transport)(nil)
var _ TLSDialer = (*Transport)(nil)

// NewTransport builds a Transport around policy. A nil policy selects
// tlspolicy.Default(). cfg tunes pooling and dial behavior; nil uses
// DefaultConfig().
func NewTransport(policy *tlspolicy.Policy, cfg *Config) *Transport {
	if policy == nil {
		policy = tlspolicy.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	t := &Transport{
		policy:   policy,
		observer: cfg.Observer,
		dialer:   &net.Dialer{Timeout: cfg.DialTimeout},
	}
	t.inner = &http.Transport{
		DialTLSContext:      t.DialTLS,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
	}
	return t
}

// Policy returns the immutable policy the transport negotiates with.
func (t *Transport) Policy() *tlspolicy.Policy { return t.policy }

// DialTLS opens a TCP connection to addr and performs the TLS handshake
// under the transport's policy, presenting SNI for the dialed host when
// the policy allows it.
func (t *Transport) DialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	raw, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		// TCP-level failure; not a negotiation problem.
		return nil, err
	}

	conn := tls.Client(raw, t.policy.TLSConfig(host))
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		hsErr := &HandshakeError{Host: host, Err: err}
		if t.observer != nil {
			t.observer(host, tls.ConnectionState{}, hsErr)
		}
		return nil, hsErr
	}

	if t.observer != nil {
		t.observer(host, conn.ConnectionState(), nil)
	}
	return conn, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.inner.RoundTrip(req)
}

// CloseIdleConnections drops pooled connections.
func (t *Transport) CloseIdleConnections() {
	t.inner.CloseIdleConnections()
}
