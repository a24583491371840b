package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eirenox/kdata-gateway/internal/auth"
	"github.com/eirenox/kdata-gateway/internal/httputil"
	"github.com/eirenox/kdata-gateway/internal/telemetry"
)

const (
	defaultRPM = 60

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Checker is the admission capability the middleware depends on;
// *Limiter is the Redis-backed implementation.
type Checker interface {
	Allow(ctx context.Context, dimension, key string, limit int64, window time.Duration) (Decision, error)
}

// Middleware returns chi middleware that enforces per-key requests-per-
// minute limits. Daily portal quotas are enforced in the forward handler,
// which knows the target endpoint.
func Middleware(limiter Checker, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authInfo, ok := auth.AuthFromContext(r.Context())
			if !ok {
				// No auth info — let request pass (auth middleware will catch it)
				next.ServeHTTP(w, r)
				return
			}

			rpm := defaultRPM
			if authInfo.RPMLimit != nil {
				rpm = *authInfo.RPMLimit
			}

			decision, _ := limiter.Allow(r.Context(), "rpm", authInfo.KeyID, int64(rpm), time.Minute)

			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(decision.Remaining, 10))
			w.Header().Set(headerRateLimitReset, decision.ResetAt.Format(time.RFC3339))

			if !decision.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"key_id", authInfo.KeyID,
					"limit", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimit("rpm")
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(decision.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, decision.ResetAt.Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
