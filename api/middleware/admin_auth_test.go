package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

func adminHandler(t *testing.T, token string) (http.Handler, *bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	logg := logger.New(logger.Options{ServiceName: "middleware-test"})
	return AdminAuth(token, logg)(next), &reached
}

func TestAdminAuthAcceptsValidToken(t *testing.T) {
	handler, reached := adminHandler(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*reached {
		t.Fatalf("valid token rejected: status=%d reached=%v", rec.Code, *reached)
	}
}

func TestAdminAuthRejectsBadToken(t *testing.T) {
	handler, reached := adminHandler(t, "secret-token")

	for _, header := range []string{"", "Bearer wrong", "Basic secret-token", "secret-token"} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, rec.Code)
		}
		if *reached {
			t.Fatalf("header %q reached the protected handler", header)
		}
	}
}

func TestAdminAuthDisabledWhenTokenEmpty(t *testing.T) {
	handler, reached := adminHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || *reached {
		t.Fatalf("empty configured token must disable the surface: status=%d", rec.Code)
	}
}

func TestClientIPResolution(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("socket address ip = %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Fatalf("x-real-ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "192.0.2.1, 198.51.100.7")
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Fatalf("x-forwarded-for first hop = %q", got)
	}
}
