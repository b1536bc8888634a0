package burstfence

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})
}

func serve(handler http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware_AllowedRequest(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	handler := limiter.Middleware(okHandler())

	rr := serve(handler, "/test", "192.168.1.1:12345")

	if rr.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "10" {
		t.Errorf("X-RateLimit-Limit = %s, want 10", rr.Header().Get("X-RateLimit-Limit"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Errorf("X-RateLimit-Remaining = %s, want 4", rr.Header().Get("X-RateLimit-Remaining"))
	}
	if rr.Header().Get("Retry-After") != "" {
		t.Error("Retry-After should not be set on allowed requests")
	}
	if rr.Body.String() != "success" {
		t.Errorf("body = %s, want success", rr.Body.String())
	}
}

func TestMiddleware_RateLimited(t *testing.T) {
	limiter, clock := newTestLimiter(t)
	handler := limiter.Middleware(okHandler())

	// First burst of 5 requests should succeed
	for i := 0; i < 5; i++ {
		if rr := serve(handler, "/test", "192.168.1.1:12345"); rr.Code != http.StatusOK {
			t.Errorf("request %d: status code = %d, want %d", i+1, rr.Code, http.StatusOK)
		}
	}

	clock.Advance(2500 * time.Millisecond)
	rr := serve(handler, "/test", "192.168.1.1:12345")

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status code = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %s, want 0", rr.Header().Get("X-RateLimit-Remaining"))
	}

	// 7.5s until the next refill, rounded up.
	if got := rr.Header().Get("Retry-After"); got != "8" {
		t.Errorf("Retry-After = %s, want 8", got)
	}

	resetTime, err := strconv.ParseInt(rr.Header().Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		t.Fatalf("X-RateLimit-Reset parsing failed: %v", err)
	}
	if resetTime <= time.Now().Unix() {
		t.Error("X-RateLimit-Reset should be in the future")
	}
}

func TestMiddleware_DifferentIPs(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	handler := limiter.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		serve(handler, "/test", "192.168.1.1:12345")
	}
	if rr := serve(handler, "/test", "192.168.1.1:12345"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("first IP: status code = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr := serve(handler, "/test", "192.168.1.2:12345"); rr.Code != http.StatusOK {
		t.Errorf("second IP: status code = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestMiddleware_MissingAPIKey(t *testing.T) {
	limiter, _ := newTestLimiter(t, WithKeyExtractor(ExtractHeader("X-API-Key")))
	handler := limiter.Middleware(okHandler())

	if rr := serve(handler, "/test", "192.168.1.1:12345"); rr.Code != http.StatusBadRequest {
		t.Errorf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMiddleware_Concurrent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	var served atomic.Int64
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(handler, "/test", "192.168.1.1:12345")
		}()
	}
	wg.Wait()

	// Only the first burst gets through.
	if served.Load() != 5 {
		t.Errorf("served %d requests, want 5", served.Load())
	}
}
