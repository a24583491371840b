package tlspolicy

import (
	"crypto/tls"
	"errors"
	"reflect"
	"testing"
)

func TestBuild_Defaults(t *testing.T) {
	p, err := Build(Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MinVersion() != tls.VersionTLS10 {
		t.Errorf("expected min TLS1.0, got %s", VersionName(p.MinVersion()))
	}
	if p.MaxVersion() != tls.VersionTLS12 {
		t.Errorf("expected max TLS1.2, got %s", VersionName(p.MaxVersion()))
	}
	if len(p.CipherSuites()) == 0 {
		t.Error("expected non-empty default cipher list")
	}
	if !p.SNIEnabled() {
		t.Error("expected SNI enabled by default")
	}
}

func TestBuild_MatchesDefault(t *testing.T) {
	built, err := Build(Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := Default()
	if built.MinVersion() != def.MinVersion() || built.MaxVersion() != def.MaxVersion() {
		t.Error("Build(Options{}) and Default() disagree on version range")
	}
	if !reflect.DeepEqual(built.CipherSuites(), def.CipherSuites()) {
		t.Error("Build(Options{}) and Default() disagree on cipher order")
	}
}

func TestBuild_InvertedVersionRange(t *testing.T) {
	_, err := Build(Options{MinVersion: "1.2", MaxVersion: "1.0"})
	if !errors.Is(err, ErrVersionRange) {
		t.Errorf("expected ErrVersionRange, got %v", err)
	}
}

func TestBuild_UnknownVersion(t *testing.T) {
	_, err := Build(Options{MinVersion: "9.9"})
	if !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestBuild_EmptyCipherList(t *testing.T) {
	_, err := Build(Options{Ciphers: []string{}})
	if !errors.Is(err, ErrNoCiphers) {
		t.Errorf("expected ErrNoCiphers, got %v", err)
	}
}

func TestBuild_UnknownCipher(t *testing.T) {
	_, err := Build(Options{Ciphers: []string{"ROT13-WITH-EXTRA-STEPS"}})
	if !errors.Is(err, ErrUnknownCipher) {
		t.Errorf("expected ErrUnknownCipher, got %v", err)
	}
}

func TestBuild_CipherNamesAndAliases(t *testing.T) {
	tests := []struct {
		name string
		want uint16
	}{
		{"TLS_RSA_WITH_AES_128_CBC_SHA", tls.TLS_RSA_WITH_AES_128_CBC_SHA},
		{"AES128-SHA", tls.TLS_RSA_WITH_AES_128_CBC_SHA},
		{"aes256-sha", tls.TLS_RSA_WITH_AES_256_CBC_SHA},
		{"DES-CBC3-SHA", tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA},
		{"ECDHE-RSA-AES128-SHA", tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA},
		{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256", tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256},
	}

	for _, tt := range tests {
		p, err := Build(Options{Ciphers: []string{tt.name}})
		if err != nil {
			t.Errorf("Build(ciphers=[%q]) failed: %v", tt.name, err)
			continue
		}
		suites := p.CipherSuites()
		if len(suites) != 1 || suites[0] != tt.want {
			t.Errorf("cipher %q resolved to %v, want [%#04x]", tt.name, suites, tt.want)
		}
	}
}

func TestBuild_CipherOrderPreserved(t *testing.T) {
	p, err := Build(Options{Ciphers: []string{
		"TLS_RSA_WITH_3DES_EDE_CBC_SHA",
		"TLS_RSA_WITH_AES_128_CBC_SHA",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []uint16{
		tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
		tls.TLS_RSA_WITH_AES_128_CBC_SHA,
	}
	if !reflect.DeepEqual(p.CipherSuites(), want) {
		t.Errorf("cipher order not preserved: got %v want %v", p.CipherSuites(), want)
	}
}

// Verification must stay on for every option permutation: either the
// standard ServerName-driven handshake check, or (with SNI suppressed) a
// VerifyConnection hook that runs the same checks.
func TestTLSConfig_NeverUnverified(t *testing.T) {
	permutations := []Options{
		{},
		{MinVersion: "1.2", MaxVersion: "1.2"},
		{DisableSNI: true},
		{Ciphers: []string{"AES128-SHA"}, DisableSNI: true},
	}

	for i, opts := range permutations {
		p, err := Build(opts)
		if err != nil {
			t.Fatalf("permutation %d: %v", i, err)
		}
		cfg := p.TLSConfig("apis.data.go.kr")
		if cfg.InsecureSkipVerify && cfg.VerifyConnection == nil {
			t.Errorf("permutation %d: connection would go unverified", i)
		}
		if !cfg.InsecureSkipVerify && cfg.ServerName == "" {
			t.Errorf("permutation %d: no ServerName for handshake verification", i)
		}
	}
}

func TestTLSConfig_SNI(t *testing.T) {
	p := Default()
	cfg := p.TLSConfig("apis.data.go.kr")
	if cfg.ServerName != "apis.data.go.kr" {
		t.Errorf("expected SNI host, got %q", cfg.ServerName)
	}

	noSNI, err := Build(Options{DisableSNI: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg = noSNI.TLSConfig("apis.data.go.kr")
	if cfg.ServerName != "" {
		t.Errorf("expected empty ServerName with SNI disabled, got %q", cfg.ServerName)
	}
	if cfg.VerifyConnection == nil {
		t.Error("expected VerifyConnection with SNI disabled")
	}
}

func TestTLSConfig_FreshPerCall(t *testing.T) {
	p := Default()
	a := p.TLSConfig("apis.data.go.kr")
	b := p.TLSConfig("apis.data.go.kr")
	if a == b {
		t.Fatal("TLSConfig must return a fresh config per connection")
	}
	a.CipherSuites[0] = 0
	if p.CipherSuites()[0] == 0 {
		t.Error("mutating a returned config must not affect the policy")
	}
}

func TestDefault_FreshValuePerCall(t *testing.T) {
	a := Default()
	b := Default()
	if a == b {
		t.Fatal("Default must not return shared state")
	}
	a.cipherSuites[0] = 0
	if b.cipherSuites[0] == 0 {
		t.Error("default policies share a cipher slice")
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want uint16
	}{
		{"1.0", tls.VersionTLS10},
		{"tls1.1", tls.VersionTLS11},
		{"TLSv1.2", tls.VersionTLS12},
		{"1.3", tls.VersionTLS13},
		{" 1.2 ", tls.VersionTLS12},
	}
	for _, tt := range tests {
		got, err := parseVersion(tt.in)
		if err != nil {
			t.Errorf("parseVersion(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseVersion(%q) = %#04x, want %#04x", tt.in, got, tt.want)
		}
	}
}

func TestVersionName(t *testing.T) {
	if got := VersionName(tls.VersionTLS10); got != "TLS1.0" {
		t.Errorf("VersionName(TLS10) = %q", got)
	}
	if got := VersionName(0x9999); got != "0x9999" {
		t.Errorf("VersionName(unknown) = %q", got)
	}
}
