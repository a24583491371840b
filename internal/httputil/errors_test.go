package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "req_123", http.StatusBadRequest, "invalid_request_error", "bad_request", "", "test message")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	if rid := w.Header().Get("X-Request-ID"); rid != "req_123" {
		t.Errorf("expected X-Request-ID req_123, got %s", rid)
	}

	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Error.Message != "test message" {
		t.Errorf("expected message 'test message', got %q", resp.Error.Message)
	}
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("expected type 'invalid_request_error', got %q", resp.Error.Type)
	}
	if resp.Error.RequestID != "req_123" {
		t.Errorf("expected request_id 'req_123', got %q", resp.Error.RequestID)
	}
}

func TestWriteAuthError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAuthError(w, "req_456", "Invalid key")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "invalid_api_key" {
		t.Errorf("expected code 'invalid_api_key', got %q", resp.Error.Code)
	}
}

func TestWriteHandshakeError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHandshakeError(w, "req_789", "tls handshake with apis.data.go.kr: no shared cipher")

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "tls_handshake_failed" {
		t.Errorf("expected code 'tls_handshake_failed', got %q", resp.Error.Code)
	}
	if resp.Error.Phase != "handshake" {
		t.Errorf("expected phase 'handshake', got %q", resp.Error.Phase)
	}
}

func TestWriteUpstreamTimeoutError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUpstreamTimeoutError(w, "req_abc", "context deadline exceeded")

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504, got %d", w.Code)
	}

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Phase != "transport" {
		t.Errorf("expected phase 'transport', got %q", resp.Error.Phase)
	}
}

func TestWriteQuotaError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteQuotaError(w, "req_def", "daily quota exhausted for endpoint weather")

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "daily_quota_exceeded" {
		t.Errorf("expected code 'daily_quota_exceeded', got %q", resp.Error.Code)
	}
}
