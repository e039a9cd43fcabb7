package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xelth-com/eckscan/internal/utils"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestAdminGuard(t *testing.T) {
	const secret = "test-secret"
	admin, err := utils.GenerateAdminToken(secret, "ops", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAdminToken: %v", err)
	}
	other, _ := utils.GenerateAdminToken("other-secret", "ops", time.Hour)

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"open when no secret", "", "", http.StatusOK},
		{"missing header", secret, "", http.StatusUnauthorized},
		{"wrong scheme", secret, "Basic abc", http.StatusUnauthorized},
		{"wrong signature", secret, "Bearer " + other, http.StatusUnauthorized},
		{"valid admin", secret, "Bearer " + admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AdminGuard(tt.secret)(http.HandlerFunc(okHandler))
			req := httptest.NewRequest(http.MethodDelete, "/api/qr/cache/clear", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var seen string
	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-42" || rec.Header().Get(RequestIDHeader) != "req-42" {
		t.Errorf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}
	entries := logs.FilterMessage("Request failed").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d failures, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(500) {
		t.Errorf("status field = %v", got)
	}
}

func TestRequestLoggerGeneratesID(t *testing.T) {
	h := RequestLogger(zap.NewNop())(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if len(rec.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("generated id = %q", rec.Header().Get(RequestIDHeader))
	}
}
