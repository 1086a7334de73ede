package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORSPreflightAllowedOrigin(t *testing.T) {
	nextCalled := false
	handler := CORS(CORSConfig{
		AllowedOrigins: []string{"https://app.caselens.example"},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusTeapot)
	}))

	request := httptest.NewRequest(http.MethodOptions, "/v1/documents", nil)
	request.Header.Set("Origin", "https://app.caselens.example")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "authorization,idempotency-key")
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if nextCalled {
		t.Fatalf("expected preflight to short-circuit chain")
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://app.caselens.example" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Idempotency-Key") {
		t.Fatalf("expected Idempotency-Key in allow headers, got %q", got)
	}
}

func TestCORSIgnoresDisallowedOrigin(t *testing.T) {
	nextCalled := false
	handler := CORS(CORSConfig{
		AllowedOrigins: []string{"https://app.caselens.example"},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil)
	request.Header.Set("Origin", "https://evil.example")
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, request)

	if !nextCalled {
		t.Fatalf("expected disallowed origin to pass through without CORS headers")
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header, got %q", got)
	}
}

func TestAuthRejectsMissingAndWrongTokens(t *testing.T) {
	handler := RequestID(Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic secret",
		"wrong token":  "Bearer nope",
		"blank token":  "Bearer   ",
	}
	for name, authorization := range cases {
		request := httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil)
		if authorization != "" {
			request.Header.Set("Authorization", authorization)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, recorder.Code)
		}
	}

	request := httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil)
	request.Header.Set("Authorization", "Bearer secret")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("valid token rejected: %d", recorder.Code)
	}
}

func TestAuthSkipsHealthAndEmptyToken(t *testing.T) {
	handler := Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("health endpoint blocked by auth: %d", recorder.Code)
	}

	open := Auth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	request = httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil)
	recorder = httptest.NewRecorder()
	open.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("empty token should disable auth: %d", recorder.Code)
	}
}

func TestRequestIDEchoesSaneInboundIDAndReplacesOversized(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set("X-Request-Id", "client-id-1")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if seen != "client-id-1" || recorder.Header().Get("X-Request-Id") != "client-id-1" {
		t.Fatalf("inbound id not honored: context=%q header=%q", seen, recorder.Header().Get("X-Request-Id"))
	}

	request = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set("X-Request-Id", strings.Repeat("x", 200))
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if seen == "" || len(seen) > maxInboundRequestIDChars {
		t.Fatalf("oversized inbound id not replaced: %q", seen)
	}
}

func TestTraceLogsStatusAndRequestID(t *testing.T) {
	var buffer bytes.Buffer
	logger := log.New(&buffer, "", 0)

	handler := RequestID(Trace(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))

	request := httptest.NewRequest(http.MethodGet, "/v1/documents/abc/timeline", nil)
	request.Header.Set("X-Request-Id", "trace-check")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	line := buffer.String()
	if !strings.Contains(line, "status=409") {
		t.Fatalf("trace line missing status: %q", line)
	}
	if !strings.Contains(line, "request_id=trace-check") {
		t.Fatalf("trace line missing request id: %q", line)
	}
	if !strings.Contains(line, "path=/v1/documents/abc/timeline") {
		t.Fatalf("trace line missing path: %q", line)
	}
}

func TestRateLimitThrottlesBurstPerClient(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		request := httptest.NewRequest(http.MethodPost, "/v1/documents", nil)
		request.RemoteAddr = "10.0.0.9:12345"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		codes = append(codes, recorder.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests rejected: %v", codes)
	}
	limited := false
	for _, code := range codes[2:] {
		if code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Fatalf("expected 429 after burst exhausted: %v", codes)
	}

	// A different client IP has its own bucket.
	request := httptest.NewRequest(http.MethodPost, "/v1/documents", nil)
	request.RemoteAddr = "10.0.0.10:12345"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("independent client throttled: %d", recorder.Code)
	}
}
