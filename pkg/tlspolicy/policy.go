// Package tlspolicy builds immutable TLS negotiation policies for HTTPS
// clients that talk to servers stuck on legacy TLS stacks, such as the
// Korean public-data portal (data.go.kr) API hosts.
//
// A Policy pins the allowed protocol version range and the cipher suite
// preference order while keeping certificate and hostname verification
// unconditionally enabled. The package exposes no way to skip verification.
package tlspolicy

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

var (
	ErrUnknownVersion = errors.New("unknown TLS version")
	ErrVersionRange   = errors.New("minimum TLS version above maximum")
	ErrNoCiphers      = errors.New("cipher list is empty")
	ErrUnknownCipher  = errors.New("unknown cipher suite")
)

// Policy is an immutable TLS negotiation policy. Construct one with Build
// or Default; a Policy is safe for concurrent use by any number of
// connection attempts.
type Policy struct {
	minVersion   uint16
	maxVersion   uint16
	cipherSuites []uint16
	disableSNI   bool
	rootCAs      *x509.CertPool
}

// Options configures Build. Every field is optional; the zero value yields
// the same policy as Default.
type Options struct {
	// MinVersion and MaxVersion are protocol version names such as
	// "1.0", "1.2", "tls1.2" or "TLSv1.2". Defaults: "1.0" and "1.2".
	MinVersion string
	MaxVersion string

	// Ciphers is the preference-ordered cipher suite list. Both the IANA
	// names printed by crypto/tls and the OpenSSL-style names emitted by
	// SSL analysis tools are accepted. nil selects the default list; an
	// explicitly empty list is a configuration error.
	Ciphers []string

	// DisableSNI suppresses the Server Name Indication extension for
	// hosts that misbehave when it is present. Certificate and hostname
	// verification still run in full.
	DisableSNI bool

	// RootCAs narrows the trust store used to verify the server chain.
	// nil means the system trust store. There is no option to disable
	// verification.
	RootCAs *x509.CertPool
}

// Build validates opts and constructs a Policy. It performs no network I/O;
// all failures are configuration errors wrapping one of the sentinel
// errors of this package.
func Build(opts Options) (*Policy, error) {
	minVer := uint16(tls.VersionTLS10)
	if opts.MinVersion != "" {
		v, err := parseVersion(opts.MinVersion)
		if err != nil {
			return nil, fmt.Errorf("min version: %w", err)
		}
		minVer = v
	}

	maxVer := uint16(tls.VersionTLS12)
	if opts.MaxVersion != "" {
		v, err := parseVersion(opts.MaxVersion)
		if err != nil {
			return nil, fmt.Errorf("max version: %w", err)
		}
		maxVer = v
	}

	if minVer > maxVer {
		return nil, fmt.Errorf("%w: %s > %s", ErrVersionRange, VersionName(minVer), VersionName(maxVer))
	}

	var suites []uint16
	switch {
	case opts.Ciphers == nil:
		suites = defaultCipherSuites()
	case len(opts.Ciphers) == 0:
		return nil, ErrNoCiphers
	default:
		suites = make([]uint16, 0, len(opts.Ciphers))
		for _, name := range opts.Ciphers {
			id, err := parseCipher(name)
			if err != nil {
				return nil, err
			}
			suites = append(suites, id)
		}
	}

	return &Policy{
		minVersion:   minVer,
		maxVersion:   maxVer,
		cipherSuites: suites,
		disableSNI:   opts.DisableSNI,
		rootCAs:      opts.RootCAs,
	}, nil
}

// Default returns the stock data.go.kr profile: TLS 1.0 through 1.2 with
// the cipher suites those hosts are known to accept, SNI enabled, system
// trust store. The range and list are empirical (taken from external TLS
// analysis of the portal hosts) and can be overridden per deployment via
// Options.
func Default() *Policy {
	return &Policy{
		minVersion:   tls.VersionTLS10,
		maxVersion:   tls.VersionTLS12,
		cipherSuites: defaultCipherSuites(),
	}
}

// MinVersion returns the lowest protocol version the policy offers.
func (p *Policy) MinVersion() uint16 { return p.minVersion }

// MaxVersion returns the highest protocol version the policy offers.
func (p *Policy) MaxVersion() uint16 { return p.maxVersion }

// CipherSuites returns a copy of the cipher suite preference order.
func (p *Policy) CipherSuites() []uint16 {
	out := make([]uint16, len(p.cipherSuites))
	copy(out, p.cipherSuites)
	return out
}

// CipherNames returns the IANA names of the cipher suite preference order.
func (p *Policy) CipherNames() []string {
	out := make([]string, len(p.cipherSuites))
	for i, id := range p.cipherSuites {
		out[i] = tls.CipherSuiteName(id)
	}
	return out
}

// SNIEnabled reports whether connections send the SNI extension.
func (p *Policy) SNIEnabled() bool { return !p.disableSNI }

// TLSConfig builds a fresh tls.Config for a connection to host. The config
// always verifies the peer chain and hostname: with SNI enabled the
// standard handshake verification runs against ServerName; with SNI
// disabled an equivalent VerifyConnection check runs against the dialed
// host instead, so no code path leaves the connection unverified.
func (p *Policy) TLSConfig(host string) *tls.Config {
	cfg := &tls.Config{
		MinVersion:   p.minVersion,
		MaxVersion:   p.maxVersion,
		CipherSuites: p.CipherSuites(),
		RootCAs:      p.rootCAs,
		ServerName:   host,
	}

	if p.disableSNI {
		cfg.ServerName = ""
		// crypto/tls ties its built-in verification to ServerName, so
		// suppressing SNI requires taking over verification. The chain
		// and hostname checks below are the same ones the handshake
		// would have run.
		cfg.InsecureSkipVerify = true
		roots := p.rootCAs
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			return verifyPeer(cs, host, roots)
		}
	}

	return cfg
}

func verifyPeer(cs tls.ConnectionState, host string, roots *x509.CertPool) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.New("tlspolicy: server presented no certificates")
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		DNSName:       host,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}
