package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireAuthValidToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := requireAuth("secret-key", next)
	req := httptest.NewRequest(http.MethodDelete, "/test", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !called {
		t.Error("next handler was not called")
	}
}

func TestRequireAuthRejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong token", "Bearer wrong-key"},
		{"malformed header", "Basic secret-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("next handler should not be called")
			})

			req := httptest.NewRequest(http.MethodDelete, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			requireAuth("secret-key", next).ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestAdminRoutesProtected(t *testing.T) {
	mux, _ := newTestMux(t, "secret-key")

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/cache"},
		{http.MethodGet, "/api/v1/cache/stats"},
		{http.MethodDelete, "/api/v1/cache/burns"},
		{http.MethodDelete, "/api/v1/cache"},
	} {
		if w := do(mux, route.method, route.path, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", route.method, route.path, w.Code)
		}
	}
	if w := do(mux, http.MethodGet, "/api/v1/cache", "secret-key"); w.Code != http.StatusOK {
		t.Errorf("with token = %d, want 200", w.Code)
	}
	if w := do(mux, http.MethodGet, "/api/v1/datasets/burns", ""); w.Code != http.StatusOK {
		t.Errorf("public route = %d, want 200", w.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	mux, _ := newTestMux(t, "")
	w := do(mux, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "nftdash_up") {
		t.Errorf("metrics = %d %q", w.Code, w.Body.String())
	}
}

func TestNewServerAddr(t *testing.T) {
	_, svc := newTestMux(t, "")
	srv := NewServer("8080", svc, nil, nil, "")
	if srv.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", srv.Addr)
	}
}
