package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Write(body)
})

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestBearerAuth(t *testing.T) {
	h := BearerAuth("s3cret")(okHandler)

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Bearer s3cret", http.StatusOK},
		{"bearer s3cret", http.StatusOK},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%q: got %d, want %d", tc.header, rec.Code, tc.want)
		}
	}
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth("k1")(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: got %d", rec.Code)
	}

	req.Header.Set("X-API-Key", "k1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key: got %d", rec.Code)
	}
}

func TestHMACAuth_WithBodyReader(t *testing.T) {
	body := `{"alerts":[]}`
	h := BodyReader(HMACAuth("hook")(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/webhook/alertmanager", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("hook", body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid signature: got %d", rec.Code)
	}
	if rec.Body.String() != body {
		t.Errorf("body should be readable downstream, got %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook/alertmanager", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("other", body))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: got %d", rec.Code)
	}
}

func TestForMode(t *testing.T) {
	for _, mode := range []AuthMode{"", AuthNone, AuthBearer, AuthAPIKey, AuthHMAC} {
		if _, err := ForMode(mode, "x"); err != nil {
			t.Errorf("%q: unexpected error %v", mode, err)
		}
	}
	if _, err := ForMode("oauth", "x"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestBodyReader_TooLarge(t *testing.T) {
	h := BodyReader(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(strings.Repeat("a", MaxBodyBytes+1)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("got %d", rec.Code)
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	// 60/min gives a burst of 10
	h := NewRateLimiter(60, false)(okHandler)

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 10; i++ {
		if code := hit("10.0.0.1:5000"); code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, code)
		}
	}
	if code := hit("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("expected limit for same IP, got %d", code)
	}
	if code := hit("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("other client should not be limited, got %d", code)
	}
}

func TestRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := remoteIP(req, false); got != "192.0.2.1" {
		t.Errorf("untrusted: got %q", got)
	}
	if got := remoteIP(req, true); got != "203.0.113.9" {
		t.Errorf("trusted: got %q", got)
	}
}

func TestLogging_PassesStatus(t *testing.T) {
	h := Logging(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("got %d", rec.Code)
	}
}

func TestResponseHeaders_RequestID(t *testing.T) {
	var seen string
	h := ResponseHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set(RequestIDHeader, "zbx-event-4711")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "zbx-event-4711" || rec.Header().Get(RequestIDHeader) != "zbx-event-4711" {
		t.Errorf("caller id not propagated: ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "" || strings.Contains(seen, " ") {
		t.Errorf("expected generated id, got %q", seen)
	}
}
