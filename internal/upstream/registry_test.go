package upstream

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/eirenox/kdata-gateway/internal/config"
	"github.com/eirenox/kdata-gateway/internal/egress"
)

func testUpstreamCfg() config.UpstreamConfig {
	return config.UpstreamConfig{
		DefaultTimeout: 30 * time.Second,
		DialTimeout:    10 * time.Second,
	}
}

func testEndpointsCfg() *config.EndpointsConfig {
	return &config.EndpointsConfig{
		Profiles: map[string]config.ProfileConfig{
			"legacy-v1": {
				MinVersion: "1.0",
				MaxVersion: "1.2",
				Ciphers:    []string{"AES128-SHA", "AES256-SHA"},
				DisableSNI: true,
			},
		},
		Endpoints: map[string]config.EndpointConfig{
			"weather": {
				BaseURL:         "https://apis.data.go.kr/1360000/VilageFcstInfoService_2.0",
				Profile:         "legacy-v1",
				ServiceKey:      "test-key",
				ServiceKeyParam: "serviceKey",
				Timeout:         5 * time.Second,
				DailyQuota:      1000,
			},
			"air-quality": {
				BaseURL: "https://apis.data.go.kr/B552584/ArpltnInforInqireSvc",
			},
		},
	}
}

func TestBuildFromConfig_AllEndpoints(t *testing.T) {
	reg := BuildFromConfig(context.Background(), testEndpointsCfg(), testUpstreamCfg(), nil, nil)

	names := reg.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 endpoints, got %v", names)
	}
	if names[0] != "air-quality" || names[1] != "weather" {
		t.Errorf("expected sorted names, got %v", names)
	}

	ep, ok := reg.Get("weather")
	if !ok {
		t.Fatal("weather endpoint missing")
	}
	if ep.Session() == nil {
		t.Fatal("expected a session")
	}
	if ep.Policy().SNIEnabled() {
		t.Error("legacy-v1 profile disables SNI")
	}
	if ep.DailyQuota != 1000 {
		t.Errorf("expected quota 1000, got %d", ep.DailyQuota)
	}
}

func TestBuildFromConfig_DefaultPolicyWhenNoProfile(t *testing.T) {
	reg := BuildFromConfig(context.Background(), testEndpointsCfg(), testUpstreamCfg(), nil, nil)

	ep, ok := reg.Get("air-quality")
	if !ok {
		t.Fatal("air-quality endpoint missing")
	}
	if !ep.Policy().SNIEnabled() {
		t.Error("default policy keeps SNI on")
	}
	if ep.ServiceKeyParam != "serviceKey" {
		t.Errorf("expected default service key param, got %q", ep.ServiceKeyParam)
	}
}

func TestBuildFromConfig_SkipsInvalid(t *testing.T) {
	cfg := testEndpointsCfg()
	cfg.Endpoints["broken"] = config.EndpointConfig{
		BaseURL: "https://example.go.kr",
		Profile: "no-such-profile",
	}
	cfg.Endpoints["plaintext"] = config.EndpointConfig{
		BaseURL: "http://example.go.kr",
	}

	reg := BuildFromConfig(context.Background(), cfg, testUpstreamCfg(), nil, nil)

	if _, ok := reg.Get("broken"); ok {
		t.Error("endpoint with unknown profile should be skipped")
	}
	if _, ok := reg.Get("plaintext"); ok {
		t.Error("non-https endpoint should be skipped")
	}
	if _, ok := reg.Get("weather"); !ok {
		t.Error("valid endpoint should still be built")
	}
}

func TestBuildFromConfig_EgressDenied(t *testing.T) {
	gate := egress.NewEvaluator(func() config.EgressConfig {
		return config.EgressConfig{Enabled: true}
	})
	if err := gate.LoadFromModules(map[string]string{"test.rego": `
package kdata.egress

import rego.v1

default allow := false
default reason := "legacy TLS not permitted"
`}); err != nil {
		t.Fatalf("load policy: %v", err)
	}

	reg := BuildFromConfig(context.Background(), testEndpointsCfg(), testUpstreamCfg(), gate, nil)
	if len(reg.Names()) != 0 {
		t.Errorf("expected all endpoints denied, got %v", reg.Names())
	}
}

func TestRequestURL_InjectsServiceKey(t *testing.T) {
	reg := BuildFromConfig(context.Background(), testEndpointsCfg(), testUpstreamCfg(), nil, nil)
	ep, _ := reg.Get("weather")

	q := url.Values{"pageNo": {"1"}, "numOfRows": {"10"}}
	got := ep.RequestURL("getVilageFcst", q)

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if u.Path != "/1360000/VilageFcstInfoService_2.0/getVilageFcst" {
		t.Errorf("unexpected path %q", u.Path)
	}
	params := u.Query()
	if params.Get("serviceKey") != "test-key" {
		t.Errorf("service key not injected: %q", u.RawQuery)
	}
	if params.Get("pageNo") != "1" || params.Get("numOfRows") != "10" {
		t.Errorf("caller query lost: %q", u.RawQuery)
	}
}

func TestRequestURL_CallerCannotOverrideServiceKey(t *testing.T) {
	reg := BuildFromConfig(context.Background(), testEndpointsCfg(), testUpstreamCfg(), nil, nil)
	ep, _ := reg.Get("weather")

	got := ep.RequestURL("getVilageFcst", url.Values{"serviceKey": {"attacker"}})

	u, _ := url.Parse(got)
	if u.Query().Get("serviceKey") != "test-key" {
		t.Errorf("configured service key must win: %q", u.RawQuery)
	}
}

func TestRequestURL_EmptySubpath(t *testing.T) {
	reg := BuildFromConfig(context.Background(), testEndpointsCfg(), testUpstreamCfg(), nil, nil)
	ep, _ := reg.Get("weather")

	got := ep.RequestURL("", nil)
	u, _ := url.Parse(got)
	if u.Path != "/1360000/VilageFcstInfoService_2.0" {
		t.Errorf("unexpected path %q", u.Path)
	}
}

func TestRegistry_ReplaceFrom(t *testing.T) {
	reg := BuildFromConfig(context.Background(), testEndpointsCfg(), testUpstreamCfg(), nil, nil)

	next := testEndpointsCfg()
	delete(next.Endpoints, "air-quality")
	reg.ReplaceFrom(BuildFromConfig(context.Background(), next, testUpstreamCfg(), nil, nil))

	if _, ok := reg.Get("air-quality"); ok {
		t.Error("removed endpoint should be gone after replace")
	}
	if _, ok := reg.Get("weather"); !ok {
		t.Error("weather should survive replace")
	}
}
