package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/config"
	"github.com/documentdb/gatewaygw/internal/metrics"
)

// newTestServer builds a Server around a real backend.Manager pointed at an
// address nothing listens on. pgxpool connections are lazy, so construction
// succeeds; only operations that actually acquire a connection (Ping) fail.
func newTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()

	ep := backend.Endpoint{Host: "127.0.0.1", Port: 1, Database: "postgres", ApplicationName: "test"}
	cred := backend.Credential{Username: "test_user"}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr, err := backend.NewManager(context.Background(), ep, cred, nil, log)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(mgr.Close)

	m := metrics.New()
	s := NewServer(mgr, m, config.ListenConfig{Host: "0.0.0.0", Port: 9261})

	mr := mux.NewRouter()
	mr.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	mr.HandleFunc("/status", s.statusHandler).Methods("GET")
	mr.HandleFunc("/debug/pools", s.poolsHandler).Methods("GET")

	return s, mr
}

func TestHealthzReportsUnhealthyWhenBackendUnreachable(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 against an unreachable backend, got %d", rr.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected status=unhealthy, got %v", body)
	}
}

func TestStatusHandler(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	listen, ok := body["listen"].(map[string]interface{})
	if !ok || listen["port"] != float64(9261) {
		t.Errorf("expected listen.port=9261 in status, got %v", body["listen"])
	}
}

func TestPoolsHandlerReportsSystemAndAuthPools(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/debug/pools", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var stats []backend.Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	var sawSystem, sawAuth bool
	for _, s := range stats {
		switch s.Key {
		case "system":
			sawSystem = true
		case "auth":
			sawAuth = true
		}
	}
	if !sawSystem || !sawAuth {
		t.Errorf("expected system and auth pools in stats, got %+v", stats)
	}
}
