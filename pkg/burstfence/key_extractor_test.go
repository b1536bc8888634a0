package burstfence

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractIP(t *testing.T) {
	extractor := ExtractIP()

	tests := []struct {
		name       string
		remoteAddr string
		want       string
		wantErr    bool
	}{
		{name: "valid IP with port", remoteAddr: "192.168.1.1:12345", want: "ip:192.168.1.1"},
		{name: "valid IP without port", remoteAddr: "192.168.1.1", want: "ip:192.168.1.1"},
		{name: "IPv6 with port", remoteAddr: "[2001:db8::1]:8080", want: "ip:2001:db8::1"},
		{name: "empty remote address", remoteAddr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr

			got, err := extractor(req)
			if tt.wantErr {
				if !errors.Is(err, ErrKeyExtractionFailed) {
					t.Errorf("error = %v, want %v", err, ErrKeyExtractionFailed)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractIPWithProxy(t *testing.T) {
	extractor := ExtractIPWithProxy()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "X-Forwarded-For single IP",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1"},
			want:    "ip:203.0.113.1",
		},
		{
			name:    "X-Forwarded-For chain uses first IP",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1, 10.0.0.1"},
			want:    "ip:203.0.113.1",
		},
		{
			name:    "X-Real-IP",
			headers: map[string]string{"X-Real-IP": "203.0.113.5"},
			want:    "ip:203.0.113.5",
		},
		{
			name: "X-Forwarded-For wins over X-Real-IP",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.1",
				"X-Real-IP":       "203.0.113.5",
			},
			want: "ip:203.0.113.1",
		},
		{
			name: "fallback to RemoteAddr",
			want: "ip:192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got, err := extractor(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractHeader(t *testing.T) {
	extractor := ExtractHeader("X-API-Key")

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "abc123")
	got, err := extractor(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "header:X-API-Key:abc123" {
		t.Errorf("got %s, want header:X-API-Key:abc123", got)
	}

	req = httptest.NewRequest("GET", "/test", nil)
	if _, err := extractor(req); !errors.Is(err, ErrKeyExtractionFailed) {
		t.Errorf("missing header: error = %v, want %v", err, ErrKeyExtractionFailed)
	}
}

func TestExtractBearer(t *testing.T) {
	extractor := ExtractBearer()

	tests := []struct {
		name    string
		auth    string
		want    string
		wantErr bool
	}{
		{name: "valid bearer token", auth: "Bearer token123", want: "bearer:token123"},
		{name: "lowercase scheme", auth: "bearer token123", want: "bearer:token123"},
		{name: "missing header", auth: "", wantErr: true},
		{name: "basic auth", auth: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "no token", auth: "Bearer", wantErr: true},
		{name: "empty token", auth: "Bearer ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}

			got, err := extractor(req)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractComposite(t *testing.T) {
	t.Run("first extractor succeeds", func(t *testing.T) {
		extractor := ExtractComposite(ExtractHeader("X-API-Key"), ExtractIP())

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-API-Key", "key123")
		req.RemoteAddr = "192.168.1.1:12345"

		got, err := extractor(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(got, "header:X-API-Key") {
			t.Errorf("expected header key, got %s", got)
		}
	})

	t.Run("fallback to second extractor", func(t *testing.T) {
		extractor := ExtractComposite(ExtractHeader("X-API-Key"), ExtractIP())

		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		got, err := extractor(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "ip:192.168.1.1" {
			t.Errorf("got %s, want ip:192.168.1.1", got)
		}
	})

	t.Run("all extractors fail", func(t *testing.T) {
		extractor := ExtractComposite(ExtractHeader("X-API-Key"), ExtractHeader("X-Client-ID"))

		_, err := extractor(httptest.NewRequest("GET", "/test", nil))
		if !errors.Is(err, ErrKeyExtractionFailed) {
			t.Errorf("error = %v, want %v", err, ErrKeyExtractionFailed)
		}
	})

	t.Run("no extractors provided", func(t *testing.T) {
		_, err := ExtractComposite()(httptest.NewRequest("GET", "/test", nil))
		if err == nil {
			t.Error("expected error for no extractors, got nil")
		}
	})
}

func TestParseKeyExtractorConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		want    string
		wantErr bool
	}{
		{name: "ip extractor", config: "ip", want: "ip:192.168.1.1"},
		{name: "ip-proxy extractor", config: "ip-proxy", want: "ip:192.168.1.1"},
		{name: "header extractor", config: "header:X-API-Key", want: "header:X-API-Key:testkey"},
		{name: "bearer extractor", config: "bearer", want: "bearer:testtoken"},
		{name: "cookie extractor", config: "cookie:session_id", want: "cookie:session_id:testsession"},
		{name: "static extractor", config: "static:global", want: "global"},
		{name: "composite falls back", config: "header:X-Missing | ip", want: "ip:192.168.1.1"},
		{name: "unknown extractor type", config: "unknown", wantErr: true},
		{name: "header without name", config: "header", wantErr: true},
		{name: "cookie without name", config: "cookie:", wantErr: true},
		{name: "static without key", config: "static", wantErr: true},
		{name: "composite with bad part", config: "ip | nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, err := ParseKeyExtractorConfig(tt.config)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("error = %v, want %v", err, ErrInvalidConfig)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			req.Header.Set("X-API-Key", "testkey")
			req.Header.Set("Authorization", "Bearer testtoken")
			req.AddCookie(&http.Cookie{Name: "session_id", Value: "testsession"})

			got, err := extractor(req)
			if err != nil {
				t.Fatalf("extractor failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
