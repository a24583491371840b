package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eirenox/kdata-gateway/internal/auth"
	"github.com/eirenox/kdata-gateway/internal/cache"
	"github.com/eirenox/kdata-gateway/internal/httputil"
	"github.com/eirenox/kdata-gateway/internal/ratelimit"
	"github.com/eirenox/kdata-gateway/internal/telemetry"
	"github.com/eirenox/kdata-gateway/internal/upstream"
	"github.com/eirenox/kdata-gateway/pkg/portal"
	"github.com/eirenox/kdata-gateway/pkg/tlspolicy"
)

// QuotaChecker tracks per-key daily call budgets toward portal endpoints.
// *ratelimit.QuotaTracker satisfies it.
type QuotaChecker interface {
	Check(ctx context.Context, keyID, endpoint string, limit int64) (ratelimit.QuotaResult, error)
	Record(ctx context.Context, keyID, endpoint string) error
}

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	registry      *upstream.Registry
	healthTracker *upstream.HealthTracker
	quota         QuotaChecker
	cache         *cache.Cache
	metrics       *telemetry.Metrics
}

func NewHandler(registry *upstream.Registry, healthTracker *upstream.HealthTracker, quota QuotaChecker, responseCache *cache.Cache, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		registry:      registry,
		healthTracker: healthTracker,
		quota:         quota,
		cache:         responseCache,
		metrics:       metrics,
	}
}

// Fetch handles GET|POST /v1/fetch/{endpoint}/* and forwards the request
// to the configured upstream through its negotiated TLS session.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	name := chi.URLParam(r, "endpoint")
	subpath := chi.URLParam(r, "*")

	ep, found := h.registry.Get(name)
	if !found {
		httputil.WriteUnknownEndpointError(w, reqID, "Unknown endpoint: "+name)
		return
	}
	if !authInfo.AllowsEndpoint(name) {
		httputil.WriteForbiddenError(w, reqID, "Key not permitted for endpoint: "+name)
		return
	}

	quotaLimit := int64(ep.DailyQuota)
	if authInfo.DailyQuota != nil {
		quotaLimit = int64(*authInfo.DailyQuota)
	}
	quotaRes, err := h.quota.Check(r.Context(), authInfo.KeyID, name, quotaLimit)
	if err != nil {
		slog.Warn("quota check failed, allowing", "endpoint", name, "error", err)
		quotaRes.Allowed = true
	}
	if !quotaRes.Allowed {
		if h.metrics != nil {
			h.metrics.RecordRateLimit("quota")
		}
		w.Header().Set("X-Quota-Limit", strconv.FormatInt(quotaRes.Limit, 10))
		w.Header().Set("X-Quota-Used", strconv.FormatInt(quotaRes.Used, 10))
		httputil.WriteQuotaError(w, reqID, "Daily quota exceeded for endpoint: "+name)
		return
	}

	// Cached GET responses skip the upstream entirely and do not burn quota.
	cacheKey := ""
	if r.Method == http.MethodGet && ep.CacheTTL > 0 {
		cacheKey = cache.Key(name, subpath, r.URL.Query(), ep.ServiceKeyParam)
		if entry := h.cache.Get(r.Context(), cacheKey); entry != nil {
			h.recordCacheEvent(name, "hit")
			h.writeUpstream(w, name, r.Method, entry.StatusCode, entry.ContentType, entry.Body, "hit", receivedAt)
			return
		}
		h.recordCacheEvent(name, "miss")
	}

	if !h.healthTracker.IsAvailable(name) {
		h.setBreakerMetric(name)
		httputil.WriteServiceUnavailableError(w, reqID, "Endpoint temporarily unavailable: "+name)
		return
	}

	upstreamURL := ep.RequestURL(subpath, r.URL.Query())

	upReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid upstream request: "+err.Error())
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		upReq.Header.Set("Content-Type", ct)
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		upReq.Header.Set("Accept", accept)
	}
	for k, v := range ep.Headers {
		upReq.Header.Set(k, v)
	}

	resp, err := ep.Session().Do(upReq)
	if err != nil {
		h.handleUpstreamError(w, reqID, name, err)
		return
	}
	defer resp.Body.Close()

	h.healthTracker.RecordOutcome(name, nil)
	h.setBreakerMetric(name)

	if err := h.quota.Record(r.Context(), authInfo.KeyID, name); err != nil {
		slog.Warn("quota record failed", "endpoint", name, "error", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		httputil.WriteUpstreamTransportError(w, reqID, "Reading upstream response failed")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if cacheKey != "" && resp.StatusCode == http.StatusOK {
		h.cache.Set(r.Context(), cacheKey, &cache.Entry{
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Body:        body,
		}, ep.CacheTTL)
		h.recordCacheEvent(name, "store")
	}

	h.writeUpstream(w, name, r.Method, resp.StatusCode, contentType, body, "bypass", receivedAt)
}

// handleUpstreamError maps a session error to the response envelope and
// feeds the endpoint's circuit breaker. HTTP-level errors never reach
// here; only dial and handshake failures do, and a canceled request
// counts as neither success nor failure.
func (h *Handler) handleUpstreamError(w http.ResponseWriter, reqID, name string, err error) {
	h.healthTracker.RecordOutcome(name, err)
	h.setBreakerMetric(name)

	var hsErr *portal.HandshakeError
	switch {
	case errors.As(err, &hsErr):
		slog.Error("upstream handshake failed", "endpoint", name, "host", hsErr.Host, "error", hsErr.Err)
		httputil.WriteHandshakeError(w, reqID, "TLS handshake with upstream failed: "+hsErr.Err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		slog.Error("upstream timed out", "endpoint", name, "error", err)
		httputil.WriteUpstreamTimeoutError(w, reqID, "Upstream did not respond in time")
	default:
		slog.Error("upstream unreachable", "endpoint", name, "error", err)
		httputil.WriteUpstreamTransportError(w, reqID, "Upstream unreachable")
	}
}

func (h *Handler) writeUpstream(w http.ResponseWriter, name, method string, status int, contentType string, body []byte, cacheState string, receivedAt time.Time) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("X-Cache", cacheState)
	w.WriteHeader(status)
	w.Write(body)

	if h.metrics != nil {
		h.metrics.RecordRequest(name, method, strconv.Itoa(status), cacheState, float64(time.Since(receivedAt).Milliseconds()))
	}
}

func (h *Handler) recordCacheEvent(endpoint, event string) {
	if h.metrics != nil {
		h.metrics.RecordCacheEvent(endpoint, event)
	}
}

func (h *Handler) setBreakerMetric(endpoint string) {
	if h.metrics != nil {
		h.metrics.SetBreakerState(endpoint, float64(h.healthTracker.GetBreaker(endpoint).State()))
	}
}

// ListEndpoints handles GET /v1/endpoints. It shows the authenticated key
// which upstreams it may reach and their negotiated TLS posture.
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var out []endpointObject
	for _, name := range h.registry.Names() {
		if !authInfo.AllowsEndpoint(name) {
			continue
		}
		ep, found := h.registry.Get(name)
		if !found {
			continue
		}
		policy := ep.Policy()
		out = append(out, endpointObject{
			Name:          name,
			Host:          ep.BaseURL.Hostname(),
			TLSMinVersion: tlspolicy.VersionName(policy.MinVersion()),
			TLSMaxVersion: tlspolicy.VersionName(policy.MaxVersion()),
			Ciphers:       policy.CipherNames(),
			SNI:           policy.SNIEnabled(),
			DailyQuota:    ep.DailyQuota,
			CacheTTLSec:   int64(ep.CacheTTL / time.Second),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(endpointListResponse{Endpoints: out})
}

// Health handles GET /kdata/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	states := make(map[string]string)
	for name, state := range h.healthTracker.States() {
		states[name] = state.String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		Endpoints: len(h.registry.Names()),
		Breakers:  states,
	})
}

type endpointObject struct {
	Name          string   `json:"name"`
	Host          string   `json:"host"`
	TLSMinVersion string   `json:"tls_min_version"`
	TLSMaxVersion string   `json:"tls_max_version"`
	Ciphers       []string `json:"ciphers"`
	SNI           bool     `json:"sni"`
	DailyQuota    int      `json:"daily_quota,omitempty"`
	CacheTTLSec   int64    `json:"cache_ttl_seconds,omitempty"`
}

type endpointListResponse struct {
	Endpoints []endpointObject `json:"endpoints"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Endpoints int               `json:"endpoints"`
	Breakers  map[string]string `json:"breakers"`
}
