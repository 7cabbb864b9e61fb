package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestCollector creates a Collector registered with a fresh registry
// so tests don't conflict with each other or with the default registry.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	c := New()
	return c, c.Registry
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestUpdatePoolStatsAuthority(t *testing.T) {
	c, _ := newTestCollector(t)

	c.UpdatePoolStats("data:alice", 3, 5, 8)
	val := getGaugeValue(c.connectionsActive.WithLabelValues("data:alice"))
	if val != 3 {
		t.Errorf("expected active=3, got %v", val)
	}

	// A second call replaces (not increments) the value.
	c.UpdatePoolStats("data:alice", 2, 4, 6)
	val = getGaugeValue(c.connectionsActive.WithLabelValues("data:alice"))
	if val != 2 {
		t.Errorf("expected active=2 after update, got %v", val)
	}
}

func TestRemovePool(t *testing.T) {
	c, reg := newTestCollector(t)

	c.UpdatePoolStats("data:alice", 1, 2, 3)
	c.RemovePool("data:alice")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "pool" && l.GetValue() == "data:alice" {
					t.Errorf("metric %s still has data:alice label after RemovePool", f.GetName())
				}
			}
		}
	}
}

func TestCommandCompleted(t *testing.T) {
	c, reg := newTestCollector(t)

	c.CommandCompleted("find", 10*time.Millisecond, "ok")
	c.CommandCompleted("find", 20*time.Millisecond, "ok")
	c.CommandCompleted("insert", 5*time.Millisecond, "Unauthorized")

	if v := getCounterValue(c.commandsTotal.WithLabelValues("find", "ok")); v != 2 {
		t.Errorf("expected find/ok=2, got %v", v)
	}
	if v := getCounterValue(c.commandsTotal.WithLabelValues("insert", "Unauthorized")); v != 1 {
		t.Errorf("expected insert/Unauthorized=1, got %v", v)
	}

	families, _ := reg.Gather()
	var found bool
	for _, f := range families {
		if f.GetName() == "documentdb_gw_command_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("command duration metric not found")
	}
}

func TestAuthAttempt(t *testing.T) {
	c, _ := newTestCollector(t)

	c.AuthAttempt("SCRAM-SHA-256", "ok")
	c.AuthAttempt("SCRAM-SHA-256", "failed")
	c.AuthAttempt("SCRAM-SHA-256", "failed")
	c.AuthAttempt("MONGODB-OIDC", "reauth_required")

	if v := getCounterValue(c.authAttemptsTotal.WithLabelValues("SCRAM-SHA-256", "failed")); v != 2 {
		t.Errorf("expected scram failed=2, got %v", v)
	}
	if v := getCounterValue(c.authAttemptsTotal.WithLabelValues("MONGODB-OIDC", "reauth_required")); v != 1 {
		t.Errorf("expected oidc reauth_required=1, got %v", v)
	}
}

func TestCursorLifecycleGauges(t *testing.T) {
	c, _ := newTestCollector(t)

	c.CursorOpened()
	c.CursorOpened()
	c.CursorOpened()
	c.CursorClosed()
	c.CursorReaped()

	if v := getGaugeValue(c.cursorsActive); v != 1 {
		t.Errorf("expected 1 active cursor remaining, got %v", v)
	}
	if v := getCounterValue(c.cursorsReapedTotal); v != 1 {
		t.Errorf("expected 1 reaped cursor, got %v", v)
	}
}

func TestTransactionLifecycleGauges(t *testing.T) {
	c, _ := newTestCollector(t)

	c.TransactionStarted()
	c.TransactionStarted()
	c.TransactionCommitted()
	c.TransactionReaped()

	if v := getGaugeValue(c.transactionsActive); v != 0 {
		t.Errorf("expected 0 active transactions remaining, got %v", v)
	}
	if v := getCounterValue(c.transactionsCommitted); v != 1 {
		t.Errorf("expected 1 committed transaction, got %v", v)
	}
	if v := getCounterValue(c.transactionsAborted); v != 1 {
		t.Errorf("expected 1 aborted transaction (via reaper), got %v", v)
	}
	if v := getCounterValue(c.transactionsReaped); v != 1 {
		t.Errorf("expected 1 reaped transaction, got %v", v)
	}
}

func TestRetryAttempted(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RetryAttempted("connection_reset")
	c.RetryAttempted("connection_reset")
	c.RetryAttempted("serialization_failure")

	if v := getCounterValue(c.retriesTotal.WithLabelValues("connection_reset")); v != 2 {
		t.Errorf("expected connection_reset=2, got %v", v)
	}
}

func TestCertReload(t *testing.T) {
	c, _ := newTestCollector(t)

	c.CertReload("reloaded")
	c.CertReload("unchanged")
	c.CertReload("unchanged")

	if v := getCounterValue(c.certReloadsTotal.WithLabelValues("unchanged")); v != 2 {
		t.Errorf("expected unchanged=2, got %v", v)
	}
}

func TestNewDoesNotPanicOnMultipleCalls(t *testing.T) {
	// Calling New() multiple times should not panic because each creates
	// its own registry instead of using the global default.
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("New() panicked on repeated calls: %v", r)
		}
	}()

	c1 := New()
	c2 := New()

	c1.UpdatePoolStats("system", 1, 0, 1)
	c2.UpdatePoolStats("system", 2, 0, 2)

	v1 := getGaugeValue(c1.connectionsActive.WithLabelValues("system"))
	v2 := getGaugeValue(c2.connectionsActive.WithLabelValues("system"))

	if v1 != 1 {
		t.Errorf("c1 expected active=1, got %v", v1)
	}
	if v2 != 2 {
		t.Errorf("c2 expected active=2, got %v", v2)
	}
}
