// Package admin exposes the gateway's operational HTTP surface: health,
// readiness, Prometheus metrics, and a pool-stats debug dump. Adapted from
// the teacher's internal/api.Server, trimmed to a single-cluster gateway
// that has no tenants to CRUD over.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/config"
	"github.com/documentdb/gatewaygw/internal/metrics"
)

// Server is the gateway's admin HTTP server: health/readiness probes,
// Prometheus scrape endpoint, and a pool-stats debug dump.
type Server struct {
	pools      *backend.Manager
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
	listenCfg  config.ListenConfig
}

// NewServer creates a new admin server.
func NewServer(pools *backend.Manager, m *metrics.Collector, lc config.ListenConfig) *Server {
	return &Server{
		pools:     pools,
		metrics:   m,
		startTime: time.Now(),
		listenCfg: lc,
	}
}

// Start starts the HTTP admin server on the given port.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/debug/pools", s.poolsHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[admin] admin surface listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[admin] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the admin server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// healthHandler pings the system pool; a failure means the backend cluster
// is unreachable and the gateway should be considered unhealthy.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.pools.System().Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"listen": map[string]interface{}{
			"host": s.listenCfg.Host,
			"port": s.listenCfg.Port,
		},
	})
}

// poolsHandler dumps live stats for every backend pool the manager owns:
// system, auth, one per distinct data credential, one per shared-pool
// max_connections bucket.
func (s *Server) poolsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pools.AllStats())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
