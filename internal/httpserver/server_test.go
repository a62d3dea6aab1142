package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(basePath string) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(":0", logger, Dependencies{}, basePath)
}

func TestHealthz(t *testing.T) {
	s := newTestServer("")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatsWithoutJournal(t *testing.T) {
	s := newTestServer("")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without journal, got %d", rec.Code)
	}
}

func TestReloadChannelsRequiresPost(t *testing.T) {
	s := newTestServer("")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reload-channels", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestBasePathMounting(t *testing.T) {
	s := newTestServer("/bot")

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bot/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 under base path, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/botox/healthz", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for prefix collision, got %d", rec.Code)
	}
}

func TestNormaliseBasePath(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/":     "",
		"bot":   "/bot",
		"/bot":  "/bot",
		"/bot/": "/bot",
		" /x ":  "/x",
	}
	for input, want := range cases {
		if got := normaliseBasePath(input); got != want {
			t.Fatalf("normaliseBasePath(%q) = %q, want %q", input, got, want)
		}
	}
}
