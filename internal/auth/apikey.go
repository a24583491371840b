package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"time"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateKey creates a new gateway API key with the format:
// kdata-{env}-{32 random alphanumeric chars}
func GenerateKey(env string) (string, error) {
	random, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return fmt.Sprintf("kdata-%s-%s", env, random), nil
}

// HashKey returns the SHA-256 hex digest of an API key. Only the digest is
// stored; the raw key is shown once at creation.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// KeyPrefix extracts a display-safe prefix from a key: kdata-{env}-{first 8 chars}
func KeyPrefix(key string) string {
	if len(key) < 16 {
		return key
	}
	dashes := 0
	for i, c := range key {
		if c == '-' {
			dashes++
			if dashes == 2 {
				end := i + 9 // dash + 8 chars
				if end > len(key) {
					end = len(key)
				}
				return key[:end]
			}
		}
	}
	return key[:16]
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// KeyMetadata holds the cached metadata for a gateway API key.
type KeyMetadata struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	TeamID string `json:"team_id"`
	// AllowedEndpoints restricts which configured endpoints the key may
	// reach; empty means all of them.
	AllowedEndpoints []string  `json:"allowed_endpoints"`
	RPMLimit         *int      `json:"rpm_limit,omitempty"`
	DailyQuota       *int      `json:"daily_quota,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// AllowsEndpoint reports whether the key may reach the named endpoint.
func (km *KeyMetadata) AllowsEndpoint(name string) bool {
	if len(km.AllowedEndpoints) == 0 {
		return true
	}
	for _, e := range km.AllowedEndpoints {
		if e == name {
			return true
		}
	}
	return false
}

// ParseDuration parses a duration string like "365d", "30d", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	last := s[len(s)-1]
	if last == 'd' {
		var days int
		_, err := fmt.Sscanf(s, "%dd", &days)
		if err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
