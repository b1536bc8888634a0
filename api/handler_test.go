package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/burstfence/core"
	"github.com/yourusername/burstfence/metrics"
	"github.com/yourusername/burstfence/pkg/burstfence"
)

func newTestHandler(t *testing.T) (*Handler, *metrics.Metrics, *core.ManualClock) {
	t.Helper()

	config := burstfence.NewConfig()
	config.Defaults = burstfence.PolicyConfig{Capacity: 10, TokensPerPeriod: 5, Period: 10 * time.Second, Enabled: true}
	config.Policies["premium"] = burstfence.PolicyConfig{Capacity: 20, TokensPerPeriod: 20, Period: time.Second, Enabled: true}
	config.Policies["internal"] = burstfence.PolicyConfig{Capacity: 1, TokensPerPeriod: 1, Period: time.Minute, Enabled: false}

	clock := core.NewManualClock(0)
	m := metrics.NewMetrics(nil, nil)
	limiter, err := burstfence.NewRateLimiter(
		burstfence.WithConfig(config),
		burstfence.WithRegistryOptions(
			burstfence.WithRegistryClock(clock),
			burstfence.WithObserverFactory(m.ForBucket),
		),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}
	return NewHandler(limiter, nil), m, clock
}

func consume(t *testing.T, h *Handler, req ConsumeRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(req)
	w := httptest.NewRecorder()
	h.Consume(w, httptest.NewRequest(http.MethodPost, "/consume", bytes.NewBuffer(body)))
	return w
}

func TestConsume_AllowsRequests(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	w := consume(t, handler, ConsumeRequest{Key: "test-user"})
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp ConsumeResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if !resp.Allowed {
		t.Error("Request should be allowed")
	}
	if resp.Limit != 10 {
		t.Errorf("Limit = %d, want 10", resp.Limit)
	}
	if resp.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", resp.Remaining)
	}
}

func TestConsume_BlocksWhenExceeded(t *testing.T) {
	handler, _, clock := newTestHandler(t)

	// Drain the first burst
	for i := 0; i < 5; i++ {
		consume(t, handler, ConsumeRequest{Key: "test-user"})
	}
	clock.Advance(3 * time.Second)

	w := consume(t, handler, ConsumeRequest{Key: "test-user"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	var resp ConsumeResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.Allowed {
		t.Error("Request should be blocked")
	}
	if resp.RetryAfterMs != 7000 {
		t.Errorf("RetryAfterMs = %d, want 7000", resp.RetryAfterMs)
	}
}

func TestConsume_NamedPolicyAndTokens(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	w := consume(t, handler, ConsumeRequest{Key: "premium-user", Policy: "premium", Tokens: 15})

	var resp ConsumeResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if !resp.Allowed || resp.Limit != 20 || resp.Remaining != 5 {
		t.Errorf("response = %+v, want allowed, limit 20, remaining 5", resp)
	}
}

func TestConsume_DisabledPolicyAlwaysAllows(t *testing.T) {
	handler, m, _ := newTestHandler(t)

	for i := 0; i < 3; i++ {
		w := consume(t, handler, ConsumeRequest{Key: "service", Policy: "internal"})
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: Status = %d, want %d", i+1, w.Code, http.StatusOK)
		}

		var resp ConsumeResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if !resp.Allowed || resp.Limit != 1 {
			t.Errorf("request %d: response = %+v, want allowed with limit 1", i+1, resp)
		}
	}

	if snap := m.GetSnapshot(); snap.UniqueBuckets != 0 {
		t.Errorf("UniqueBuckets = %d, want 0 for a disabled policy", snap.UniqueBuckets)
	}
}

func TestConsume_WaitsForTokens(t *testing.T) {
	handler, _, clock := newTestHandler(t)

	for i := 0; i < 5; i++ {
		consume(t, handler, ConsumeRequest{Key: "waiter"})
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		clock.Advance(10 * time.Second)
	}()

	w := consume(t, handler, ConsumeRequest{Key: "waiter", WaitMs: 5000})
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestConsume_Errors(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "wrong method", method: http.MethodGet, body: "", wantStatus: http.StatusMethodNotAllowed, wantCode: "method_not_allowed"},
		{name: "invalid json", method: http.MethodPost, body: "{", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "missing key", method: http.MethodPost, body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "missing_key"},
		{name: "negative wait", method: http.MethodPost, body: `{"key":"k","wait_ms":-1}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_wait"},
		{name: "unknown policy", method: http.MethodPost, body: `{"key":"k","policy":"gold"}`, wantStatus: http.StatusNotFound, wantCode: "unknown_policy"},
		{name: "too many tokens", method: http.MethodPost, body: `{"key":"k","tokens":11}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_tokens"},
		{name: "negative tokens", method: http.MethodPost, body: `{"key":"k","tokens":-2}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Consume(w, httptest.NewRequest(tt.method, "/consume", bytes.NewBufferString(tt.body)))

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Error != tt.wantCode {
				t.Errorf("Error = %s, want %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestRouter_StatsAndRequestID(t *testing.T) {
	handler, m, _ := newTestHandler(t)
	router := NewRouter(handler, NewStatsHandler(m))

	body, _ := json.Marshal(ConsumeRequest{Key: "user"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/consume", bytes.NewBuffer(body)))

	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID", id)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var snap metrics.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snap.TokensConsumed != 1 || snap.TokensRefilled != 5 || snap.UniqueBuckets != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats?bucket=default/user", nil))
	var stored struct {
		Bucket   string `json:"bucket"`
		Consumed int64  `json:"consumed"`
	}
	json.NewDecoder(w.Body).Decode(&stored)
	if stored.Bucket != "default/user" || stored.Consumed != 1 {
		t.Errorf("stored = %+v", stored)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/stats", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestRequestID_ReusesValidHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	want := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, want)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != want || w.Header().Get(RequestIDHeader) != want {
		t.Errorf("request ID = %s (header %s), want %s", seen, w.Header().Get(RequestIDHeader), want)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "not-a-uuid" {
		t.Error("invalid request ID was propagated")
	}
}
