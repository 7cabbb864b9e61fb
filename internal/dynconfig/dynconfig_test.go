package dynconfig

import "testing"

func TestGetBoolParsesPostgresStyleValues(t *testing.T) {
	c := New()
	c.Replace(map[string]string{"a": "on", "b": "off", "c": "garbage"})

	if !c.GetBool("a", false) {
		t.Error("expected 'on' to be true")
	}
	if c.GetBool("b", true) {
		t.Error("expected 'off' to be false")
	}
	if !c.GetBool("c", true) {
		t.Error("expected unparseable value to fall back to the default")
	}
	if c.GetBool("missing", true) != true {
		t.Error("expected missing key to fall back to the default")
	}
}

func TestGetInt32Fallback(t *testing.T) {
	c := New()
	c.Replace(map[string]string{"n": "42"})

	if v := c.GetInt32("n", 0); v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
	if v := c.GetInt32("missing", 7); v != 7 {
		t.Errorf("expected fallback 7, got %d", v)
	}
}

func TestMaxWriteBatchSizeDefault(t *testing.T) {
	c := New()
	if v := c.MaxWriteBatchSize(); v != defaultMaxWriteBatchSize {
		t.Errorf("expected default %d, got %d", defaultMaxWriteBatchSize, v)
	}
}

func TestIsReplicaClusterRequiresBothConditions(t *testing.T) {
	c := New()
	c.Replace(map[string]string{postgresRecoveryKey: "on"})
	if c.IsReplicaCluster() {
		t.Error("expected false: recovery alone is not enough without citus.use_secondary_nodes=always")
	}

	c.Replace(map[string]string{
		postgresRecoveryKey:         "on",
		"citus.use_secondary_nodes": "always",
	})
	if !c.IsReplicaCluster() {
		t.Error("expected true when both conditions hold")
	}
}

func TestIsReplicaClusterSimulateOverride(t *testing.T) {
	c := New()
	c.SetSimulateReadReplica(true)
	if !c.IsReplicaCluster() {
		t.Error("expected simulate override to force true")
	}
}

func TestIsPostgresWritable(t *testing.T) {
	c := New()
	if !c.IsPostgresWritable() {
		t.Error("expected writable by default (no recovery flag set)")
	}
	c.Replace(map[string]string{postgresRecoveryKey: "on"})
	if c.IsPostgresWritable() {
		t.Error("expected not writable while in recovery")
	}
}

func TestIsTruthyBoolHandlesBothWireFormats(t *testing.T) {
	cases := map[string]bool{
		"t":    true,
		"true": true,
		"f":    false,
		"false": false,
	}
	for in, want := range cases {
		if got := isTruthyBool([]byte(in)); got != want {
			t.Errorf("isTruthyBool(%q) = %v, want %v", in, got, want)
		}
	}
	if !isTruthyBool([]byte{1}) {
		t.Error("expected binary 0x01 to be true")
	}
	if isTruthyBool([]byte{0}) {
		t.Error("expected binary 0x00 to be false")
	}
}
