package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	l := NewRateLimiter(1, 2)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := do("10.0.0.1:1234"); w.Code != http.StatusNoContent {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusNoContent)
		}
	}

	w := do("10.0.0.1:5678")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got == "" {
		t.Fatalf("Retry-After header missing")
	}

	if w := do("10.0.0.2:1234"); w.Code != http.StatusNoContent {
		t.Fatalf("other ip: status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	l.get("10.0.0.1")
	now = now.Add(limiterIdleTTL + time.Second)
	l.get("10.0.0.2")
	l.Cleanup()

	if _, ok := l.entries["10.0.0.1"]; ok {
		t.Fatalf("idle limiter was not removed")
	}
	if _, ok := l.entries["10.0.0.2"]; !ok {
		t.Fatalf("active limiter was removed")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{name: "remote addr", remote: "192.168.1.5:4000", want: "192.168.1.5"},
		{name: "forwarded", remote: "10.0.0.1:80", xff: "203.0.113.7, 10.0.0.1", want: "203.0.113.7"},
		{name: "no port", remote: "192.168.1.5", want: "192.168.1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r); got != tt.want {
				t.Fatalf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
