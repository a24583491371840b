package auth

import "context"

type contextKey string

const authContextKey contextKey = "kdata_auth"

// AuthInfo holds authenticated identity information extracted from a
// gateway API key.
type AuthInfo struct {
	KeyID            string
	Name             string
	TeamID           string
	AllowedEndpoints []string
	RPMLimit         *int
	DailyQuota       *int
}

// AllowsEndpoint reports whether the authenticated key may reach the named
// endpoint. An empty allowlist means all endpoints.
func (a *AuthInfo) AllowsEndpoint(name string) bool {
	if len(a.AllowedEndpoints) == 0 {
		return true
	}
	for _, e := range a.AllowedEndpoints {
		if e == name {
			return true
		}
	}
	return false
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
