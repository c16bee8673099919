package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaykit/voicerelay/pkg/gateway/config"
	"github.com/relaykit/voicerelay/pkg/store"
)

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

type emptyMetrics struct{}

func (emptyMetrics) SessionMetrics(ctx context.Context) (store.Metrics, error) {
	return store.Metrics{}, nil
}

func testServer(cfg config.Config) *Server {
	return New(cfg, slog.New(slog.DiscardHandler), Deps{
		DB:      okPinger{},
		Metrics: emptyMetrics{},
	})
}

func TestRoutes_HealthAndReady(t *testing.T) {
	h := testServer(config.Config{}).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rr.Code)
	}
}

func TestRoutes_UnknownPathIs404Envelope(t *testing.T) {
	h := testServer(config.Config{}).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v2/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v (%q)", err, rr.Body.String())
	}
	if env.Error.Message != "not found" {
		t.Fatalf("message = %q", env.Error.Message)
	}
}

func TestRoutes_MetricsMounted(t *testing.T) {
	h := testServer(config.Config{}).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestMiddleware_CORSPreflightOnChain(t *testing.T) {
	cfg := config.Config{CORSAllowedOrigins: map[string]struct{}{"https://app.example.com": {}}}
	h := testServer(cfg).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/v1/agents", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}
