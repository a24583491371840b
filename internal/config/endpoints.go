package config

import "time"

// EndpointsConfig is the contents of endpoints.yaml: named TLS profiles and
// the upstream portal endpoints that reference them.
type EndpointsConfig struct {
	Profiles  map[string]ProfileConfig  `yaml:"profiles"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
}

// ProfileConfig is an operator-supplied TLS negotiation profile, typically
// derived from an external TLS analysis of the target host class. Version
// names and cipher names follow pkg/tlspolicy.
type ProfileConfig struct {
	MinVersion string   `yaml:"min_version"`
	MaxVersion string   `yaml:"max_version"`
	Ciphers    []string `yaml:"ciphers"`
	DisableSNI bool     `yaml:"disable_sni"`
	// CAFile optionally pins the trust store to a PEM bundle instead of
	// the system roots. Verification itself is not configurable.
	CAFile string `yaml:"ca_file,omitempty"`
}

type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
	// Profile names an entry in Profiles. Empty selects the built-in
	// data.go.kr default policy.
	Profile string `yaml:"profile,omitempty"`
	// ServiceKey is the portal-issued key injected into every forwarded
	// request as the ServiceKeyParam query parameter.
	ServiceKey      string            `yaml:"service_key"`
	ServiceKeyParam string            `yaml:"service_key_param,omitempty"`
	Timeout         time.Duration     `yaml:"timeout"`
	MaxConcurrent   int               `yaml:"max_concurrent"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	// CacheTTL enables Redis caching of GET responses; 0 disables.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// DailyQuota caps forwarded requests per key per UTC day; 0 means
	// unlimited. Portal service keys usually carry such quotas.
	DailyQuota int `yaml:"daily_quota"`
}
