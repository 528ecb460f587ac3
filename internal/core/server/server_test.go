package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/listing-search/internal/core/health"
	"github.com/mohammed-shakir/listing-search/internal/listing/listingtest"
)

func TestHandler_EndToEnd(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{Cache: true, Direct: true})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewHandler(logger, env.Service, Options{
		Checks: []health.Check{{Name: "store", Ping: env.Service.Ping}},
	}))
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer func() { _ = resp.Body.Close() }()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	if code, body := get("/healthz"); code != 200 || body != "ok" {
		t.Fatalf("healthz: %d %q", code, body)
	}
	if code, _ := get("/readyz"); code != 200 {
		t.Fatalf("readyz: %d", code)
	}
	if code, body := get("/api/estate/low_priced"); code != 200 || !strings.Contains(body, `"estates"`) {
		t.Fatalf("low priced: %d %s", code, body)
	}
	if code, _ := get("/api/chair/search?priceRangeId=0&page=0&perPage=1"); code != 200 {
		t.Fatalf("search: %d", code)
	}

	resp, err := http.Post(srv.URL+"/api/chair/buy/2", "application/json", strings.NewReader(`{"email":"x@example.com"}`))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != 200 || resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("buy: %d headers=%v", resp.StatusCode, resp.Header)
	}
	if code, _ := get("/api/chair/2"); code != 404 {
		t.Fatalf("bought out chair: %d want 404", code)
	}

	code, body := get("/metrics")
	if code != 200 || !strings.Contains(body, `route="/api/chair/{id}"`) {
		t.Fatalf("metrics missing route series: %d", code)
	}
}

func TestHandler_ReadinessFails(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{Empty: true})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), env.Service, Options{
		Checks: []health.Check{{Name: "cache", Ping: func(context.Context) error { return errors.New("down") }}},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
}
