package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/eirenox/kdata-gateway/internal/httputil"
)

// Middleware returns a chi middleware that authenticates requests via
// Bearer token.
func Middleware(store KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <api-key>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <api-key>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty API key")
				return
			}

			keyHash := HashKey(token)
			meta, err := store.Lookup(r.Context(), keyHash)
			if err != nil {
				slog.Error("key lookup failed", "error", err, "key_prefix", safePrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if meta == nil {
				slog.Warn("auth failed: key not found", "key_prefix", safePrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid API key")
				return
			}

			info := &AuthInfo{
				KeyID:            meta.ID,
				Name:             meta.Name,
				TeamID:           meta.TeamID,
				AllowedEndpoints: meta.AllowedEndpoints,
				RPMLimit:         meta.RPMLimit,
				DailyQuota:       meta.DailyQuota,
			}

			ctx := ContextWithAuth(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// safePrefix returns a safe-to-log prefix of an API key (never the full key).
func safePrefix(key string) string {
	if len(key) > 20 {
		return key[:20] + "..."
	}
	return key
}
