package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := Config{
		Port:         0,
		DBPath:       ":memory:",
		AuthDomain:   "test.example.com",
		AuthAudience: "https://api.flatswap.test",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { srv.db.Close() })
	return srv
}

func TestPublicListingRoutes(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/listings = %d, want 200 without credentials", rr.Code)
	}

	var listings []any
	if err := json.NewDecoder(rr.Body).Decode(&listings); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(listings) != 0 {
		t.Errorf("fresh database returned %d listings, want 0", len(listings))
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodGet, "/api/v1/auth/verify"},
		{http.MethodGet, "/api/v1/users"},
		{http.MethodPost, "/api/v1/listings"},
		{http.MethodGet, "/api/v1/listings/my-listings"},
		{http.MethodDelete, "/api/v1/users/some-id"},
	}

	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401 without credentials", rt.method, rt.path, rr.Code)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/listings", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d, want 404", rr.Code)
	}
}
