package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testJWTSecret = "test-secret-key-for-jwt-signing"

func signClaims(t *testing.T, method jwt.SigningMethod, claims jwt.Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestAuthMiddleware(t *testing.T) {
	testUserID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	validToken := func(t *testing.T) string {
		token, err := NewToken(testJWTSecret, testUserID, time.Hour)
		if err != nil {
			t.Fatalf("NewToken() error = %v", err)
		}
		return token
	}

	tests := []struct {
		name       string
		header     func(t *testing.T) string
		wantStatus int
	}{
		{
			name:       "valid token",
			header:     func(t *testing.T) string { return "Bearer " + validToken(t) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			header:     func(t *testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no bearer prefix",
			header:     func(t *testing.T) string { return validToken(t) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "basic auth",
			header:     func(t *testing.T) string { return "Basic dXNlcjpwYXNz" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed token",
			header:     func(t *testing.T) string { return "Bearer not.a.valid.jwt.token" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			header: func(t *testing.T) string {
				token, _ := NewToken("wrong-secret", testUserID, time.Hour)
				return "Bearer " + token
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token",
			header: func(t *testing.T) string {
				return "Bearer " + signClaims(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
					Subject:   testUserID.String(),
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				}, testJWTSecret)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "missing subject",
			header: func(t *testing.T) string {
				return "Bearer " + signClaims(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				}, testJWTSecret)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "subject is not a uuid",
			header: func(t *testing.T) string {
				return "Bearer " + signClaims(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
					Subject:   "not-a-uuid",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				}, testJWTSecret)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unsigned token",
			header: func(t *testing.T) string {
				token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
					Subject: testUserID.String(),
				}).SignedString(jwt.UnsafeAllowNoneSignatureType)
				if err != nil {
					t.Fatalf("failed to sign token: %v", err)
				}
				return "Bearer " + token
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser uuid.UUID
			var gotOK bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, gotOK = GetUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
			if h := tt.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(testJWTSecret)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if !gotOK || gotUser != testUserID {
					t.Errorf("user = %v (ok=%v), want %v", gotUser, gotOK, testUserID)
				}
			}
		})
	}
}

func TestGetUserID(t *testing.T) {
	id := uuid.New()

	if _, ok := GetUserID(context.Background()); ok {
		t.Error("GetUserID() on empty context should not be ok")
	}
	if _, ok := GetUserID(context.WithValue(context.Background(), UserIDKey, "not-a-uuid")); ok {
		t.Error("GetUserID() with wrong type should not be ok")
	}
	got, ok := GetUserID(context.WithValue(context.Background(), UserIDKey, id))
	if !ok || got != id {
		t.Errorf("GetUserID() = %v, %v, want %v, true", got, ok, id)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"Bearer  padded ", "padded"},
		{"bearer abc", ""},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractBearerToken(tt.header); got != tt.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	origins := []string{"https://clearframe.app/"}

	tests := []struct {
		name       string
		method     string
		origin     string
		devMode    bool
		wantOrigin string
		wantStatus int
	}{
		{
			name:       "preflight from allowed origin",
			method:     http.MethodOptions,
			origin:     "https://clearframe.app",
			wantOrigin: "https://clearframe.app",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "preflight from localhost in dev mode",
			method:     http.MethodOptions,
			origin:     "http://localhost:5173",
			devMode:    true,
			wantOrigin: "http://localhost:5173",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "preflight from localhost outside dev mode",
			method:     http.MethodOptions,
			origin:     "http://localhost:5173",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "get from allowed origin",
			method:     http.MethodGet,
			origin:     "https://clearframe.app",
			wantOrigin: "https://clearframe.app",
			wantStatus: http.StatusOK,
		},
		{
			name:       "get from other origin passes without cors headers",
			method:     http.MethodGet,
			origin:     "https://example.com",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(tt.method, "/v1/videos/x/stream", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			CORSWithOrigins(origins, tt.devMode)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Expose-Headers"); got == "" {
				t.Error("expected Content-Range to be exposed")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	tests := []struct {
		name        string
		rate        int
		burst       int
		requests    int
		wantAllowed int
	}{
		{name: "within limit", rate: 10, burst: 10, requests: 5, wantAllowed: 5},
		{name: "exceeds limit", rate: 5, burst: 5, requests: 10, wantAllowed: 5},
		{name: "burst absorbs spike", rate: 2, burst: 5, requests: 5, wantAllowed: 5},
		{name: "zero burst rejects all", rate: 10, burst: 0, requests: 5, wantAllowed: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewRateLimiter(tt.rate, tt.burst)
			defer limiter.Stop()
			now := time.Now()
			limiter.now = func() time.Time { return now }

			allowed := 0
			for range tt.requests {
				if limiter.Allow(context.Background(), "test-key") {
					allowed++
				}
			}
			if allowed != tt.wantAllowed {
				t.Errorf("allowed = %d, want %d", allowed, tt.wantAllowed)
			}
		})
	}
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := NewRateLimiter(2, 2)
	defer limiter.Stop()
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	limiter.Allow(ctx, "k")
	limiter.Allow(ctx, "k")
	if limiter.Allow(ctx, "k") {
		t.Fatal("third request should be rejected")
	}
	if !limiter.Allow(ctx, "other") {
		t.Error("keys should not share a bucket")
	}

	now = now.Add(500 * time.Millisecond)
	if !limiter.Allow(ctx, "k") {
		t.Error("request after refill should be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	defer limiter.Stop()
	now := time.Now()
	limiter.now = func() time.Time { return now }

	handler := RateLimit(limiter, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("192.168.1.1:12345"); rec.Code != http.StatusOK {
		t.Errorf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec := send("192.168.1.1:54321")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec := send("192.168.1.2:12345"); rec.Code != http.StatusOK {
		t.Errorf("other ip: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestRequestID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "req-123")
	}
}
