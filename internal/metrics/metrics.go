// Package metrics exposes the gateway's Prometheus instrumentation:
// connection/cursor/transaction counts, auth outcomes, retry attempts,
// and per-pool connection gauges.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the gateway. Generalized
// directly from the teacher's own Collector: same custom-registry-per-
// instance construction, same Gauge/Histogram/CounterVec shapes, relabeled
// from tenant/db_type to the gateway's own dimensions (pool key, command
// name, auth mechanism).
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive *prometheus.GaugeVec
	connectionsIdle   *prometheus.GaugeVec
	connectionsTotal  *prometheus.GaugeVec

	commandDuration *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec

	authAttemptsTotal *prometheus.CounterVec

	cursorsActive      prometheus.Gauge
	cursorsReapedTotal prometheus.Counter

	transactionsActive    prometheus.Gauge
	transactionsCommitted prometheus.Counter
	transactionsAborted   prometheus.Counter
	transactionsReaped    prometheus.Counter

	retriesTotal *prometheus.CounterVec

	certReloadsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics using a custom
// registry. Safe to call multiple times (e.g. in tests) — each call
// creates an independent registry that doesn't conflict with others.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "documentdb_gw_pool_connections_active",
				Help: "Number of active backend connections per pool",
			},
			[]string{"pool"},
		),
		connectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "documentdb_gw_pool_connections_idle",
				Help: "Number of idle backend connections per pool",
			},
			[]string{"pool"},
		),
		connectionsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "documentdb_gw_pool_connections_total",
				Help: "Total backend connections per pool",
			},
			[]string{"pool"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "documentdb_gw_command_duration_seconds",
				Help:    "Duration of a dispatched command, backend round trip included",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"command"},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documentdb_gw_commands_total",
				Help: "Total commands dispatched, by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documentdb_gw_auth_attempts_total",
				Help: "Authentication attempts by mechanism and outcome",
			},
			[]string{"mechanism", "outcome"},
		),
		cursorsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "documentdb_gw_cursors_active",
				Help: "Number of open cursors across all connections",
			},
		),
		cursorsReapedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documentdb_gw_cursors_reaped_total",
				Help: "Total cursors closed by the idle reaper",
			},
		),
		transactionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "documentdb_gw_transactions_active",
				Help: "Number of open multi-statement transactions",
			},
		),
		transactionsCommitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documentdb_gw_transactions_committed_total",
				Help: "Total transactions committed",
			},
		),
		transactionsAborted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documentdb_gw_transactions_aborted_total",
				Help: "Total transactions aborted, explicitly or by the reaper",
			},
		),
		transactionsReaped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documentdb_gw_transactions_reaped_total",
				Help: "Total transactions aborted by the idle reaper specifically",
			},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documentdb_gw_backend_retries_total",
				Help: "Total backend query retries, by reason",
			},
			[]string{"reason"},
		),
		certReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documentdb_gw_cert_reloads_total",
				Help: "TLS certificate reload attempts, by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsIdle,
		c.connectionsTotal,
		c.commandDuration,
		c.commandsTotal,
		c.authAttemptsTotal,
		c.cursorsActive,
		c.cursorsReapedTotal,
		c.transactionsActive,
		c.transactionsCommitted,
		c.transactionsAborted,
		c.transactionsReaped,
		c.retriesTotal,
		c.certReloadsTotal,
	)

	return c
}

// UpdatePoolStats updates the pool connection gauges for one named pool
// (e.g. "system", "auth", "data:<username>").
func (c *Collector) UpdatePoolStats(pool string, active, idle, total int32) {
	c.connectionsActive.WithLabelValues(pool).Set(float64(active))
	c.connectionsIdle.WithLabelValues(pool).Set(float64(idle))
	c.connectionsTotal.WithLabelValues(pool).Set(float64(total))
}

// RemovePool deletes every gauge series for a pool that no longer exists
// (a credential pool closed after its connections went idle too long).
func (c *Collector) RemovePool(pool string) {
	c.connectionsActive.DeleteLabelValues(pool)
	c.connectionsIdle.DeleteLabelValues(pool)
	c.connectionsTotal.DeleteLabelValues(pool)
}

// CommandCompleted records a dispatched command's duration and outcome
// ("ok" or a gwerror.Code name).
func (c *Collector) CommandCompleted(command string, d time.Duration, outcome string) {
	c.commandDuration.WithLabelValues(command).Observe(d.Seconds())
	c.commandsTotal.WithLabelValues(command, outcome).Inc()
}

// AuthAttempt records an authentication attempt outcome ("ok", "failed",
// "reauth_required") for a mechanism ("SCRAM-SHA-256" or "MONGODB-OIDC").
func (c *Collector) AuthAttempt(mechanism, outcome string) {
	c.authAttemptsTotal.WithLabelValues(mechanism, outcome).Inc()
}

// CursorOpened/CursorClosed track the live cursor gauge; CursorReaped also
// increments the reaper counter for cursors the idle sweep, not the
// client, closed.
func (c *Collector) CursorOpened() { c.cursorsActive.Inc() }
func (c *Collector) CursorClosed() { c.cursorsActive.Dec() }
func (c *Collector) CursorReaped() {
	c.cursorsActive.Dec()
	c.cursorsReapedTotal.Inc()
}

// TransactionStarted/TransactionCommitted/TransactionAborted track the
// live transaction gauge and terminal-outcome counters.
func (c *Collector) TransactionStarted()   { c.transactionsActive.Inc() }
func (c *Collector) TransactionCommitted() { c.transactionsActive.Dec(); c.transactionsCommitted.Inc() }
func (c *Collector) TransactionAborted()   { c.transactionsActive.Dec(); c.transactionsAborted.Inc() }
func (c *Collector) TransactionReaped() {
	c.transactionsActive.Dec()
	c.transactionsAborted.Inc()
	c.transactionsReaped.Inc()
}

// RetryAttempted records a backend query retry, classified by reason
// (e.g. "connection_reset", "serialization_failure").
func (c *Collector) RetryAttempted(reason string) {
	c.retriesTotal.WithLabelValues(reason).Inc()
}

// CertReload records a TLS certificate reload attempt's outcome
// ("reloaded", "unchanged", "error").
func (c *Collector) CertReload(outcome string) {
	c.certReloadsTotal.WithLabelValues(outcome).Inc()
}
