package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the gateway's JSON error envelope. Phase tells the operator
// which stage failed — "config", "handshake" or "transport" — so a bad
// cipher list is distinguishable from an unreachable host.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	Phase     string `json:"phase,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, phase, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			Phase:     phase,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_api_key", "", message)
}

func WriteForbiddenError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "authorization_error", "endpoint_not_allowed", "", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded", "", message)
}

func WriteQuotaError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "daily_quota_exceeded", "", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", "", message)
}

func WriteUnknownEndpointError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusNotFound, "invalid_request_error", "unknown_endpoint", "", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", "", message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "upstream_unavailable", "", message)
}

// WriteHandshakeError reports a failed TLS negotiation with the upstream
// portal. The cause is surfaced verbatim; the gateway never retries with a
// weaker policy.
func WriteHandshakeError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadGateway, "upstream_error", "tls_handshake_failed", "handshake", message)
}

func WriteUpstreamTimeoutError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusGatewayTimeout, "upstream_error", "upstream_timeout", "transport", message)
}

func WriteUpstreamTransportError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadGateway, "upstream_error", "upstream_unreachable", "transport", message)
}
