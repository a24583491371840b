package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
}

func TestLoadFile_EnvExpansion(t *testing.T) {
	os.Setenv("KDATA_TEST_KEY", "secret-service-key")
	defer os.Unsetenv("KDATA_TEST_KEY")

	tmpFile, err := os.CreateTemp("", "test-endpoints-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
endpoints:
  air-quality:
    base_url: "https://apis.data.go.kr/B552584/ArpltnInforInqireSvc"
    service_key: "${KDATA_TEST_KEY}"
    daily_quota: 500
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg EndpointsConfig
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	ep, ok := cfg.Endpoints["air-quality"]
	if !ok {
		t.Fatal("endpoint not parsed")
	}
	if ep.ServiceKey != "secret-service-key" {
		t.Errorf("service key not expanded, got %q", ep.ServiceKey)
	}
	if ep.DailyQuota != 500 {
		t.Errorf("expected quota 500, got %d", ep.DailyQuota)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	var cfg Config
	if err := LoadFile("/nonexistent/path.yaml", &cfg); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()

	gateway := `
server:
  port: 8888
upstream:
  default_timeout: 12s
`
	endpoints := `
profiles:
  datagokr-legacy:
    min_version: "1.0"
    max_version: "1.2"
    ciphers: ["AES128-SHA", "AES256-SHA"]
endpoints:
  weather:
    base_url: "https://apis.data.go.kr/1360000/VilageFcstInfoService"
    profile: datagokr-legacy
    service_key: "abc"
`
	if err := os.WriteFile(filepath.Join(dir, "gateway.yaml"), []byte(gateway), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "endpoints.yaml"), []byte(endpoints), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if l.Config().Server.Port != 8888 {
		t.Errorf("expected port 8888, got %d", l.Config().Server.Port)
	}
	if l.Config().Upstream.DefaultTimeout != 12*time.Second {
		t.Errorf("expected 12s default timeout, got %s", l.Config().Upstream.DefaultTimeout)
	}
	// Unset fields keep defaults.
	if l.Config().Upstream.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("expected default failure threshold 5, got %d", l.Config().Upstream.CircuitBreaker.FailureThreshold)
	}

	eps := l.Endpoints()
	if _, ok := eps.Profiles["datagokr-legacy"]; !ok {
		t.Error("profile not loaded")
	}
	if eps.Endpoints["weather"].Profile != "datagokr-legacy" {
		t.Error("endpoint profile reference not loaded")
	}
}
