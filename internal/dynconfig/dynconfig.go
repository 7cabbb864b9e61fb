// Package dynconfig tracks the subset of cluster state that can change
// without a gateway restart: Postgres GUCs read from pg_settings, whether
// the backend is currently a read replica (pg_is_in_recovery), and the
// gateway-level flags derived from those settings. Settings come from the
// backend only; no host-level file is read or merged.
package dynconfig

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/documentdb/gatewaygw/internal/backend"
)

// postgresRecoveryKey is the well-known settings key the reload loop
// derives IsReplicaCluster/IsPostgresWritable from.
const postgresRecoveryKey = "IsPostgresInRecovery"

const defaultMaxWriteBatchSize = 100000

// Config holds the gateway's current view of dynamic configuration. All
// reads/writes go through a RWMutex guarding a single map, matching
// spec.md's "acquire a read lock... write lock" description directly.
type Config struct {
	mu       sync.RWMutex
	settings map[string]string

	simulateReadReplica bool
}

func New() *Config {
	return &Config{settings: make(map[string]string)}
}

// SetSimulateReadReplica forces IsReplicaCluster to report true
// regardless of the live recovery state, for local testing against a
// single-node Postgres that never actually enters recovery.
func (c *Config) SetSimulateReadReplica(v bool) {
	c.mu.Lock()
	c.simulateReadReplica = v
	c.mu.Unlock()
}

// Replace atomically swaps in a freshly loaded settings map.
func (c *Config) Replace(settings map[string]string) {
	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()
}

func (c *Config) GetStr(key, fallback string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.settings[key]; ok {
		return v
	}
	return fallback
}

func (c *Config) GetBool(key string, fallback bool) bool {
	c.mu.RLock()
	v, ok := c.settings[key]
	c.mu.RUnlock()
	if !ok {
		return fallback
	}
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	case "off", "false", "0", "no":
		return false
	default:
		return fallback
	}
}

func (c *Config) GetInt32(key string, fallback int32) int32 {
	c.mu.RLock()
	v, ok := c.settings[key]
	c.mu.RUnlock()
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fallback
	}
	return int32(n)
}

func (c *Config) Equals(key, value string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings[key] == value
}

// ServerVersion is the version string the gateway reports to clients in
// buildInfo responses.
func (c *Config) ServerVersion() string {
	return c.GetStr("server_version", "7.0.0")
}

func (c *Config) IndexBuildSleepMillis() int32 {
	return c.GetInt32("documentdb.index_build_sleep_milli_secs", 1000)
}

func (c *Config) SendShutdownResponses() bool {
	return c.GetBool("documentdb.send_shutdown_responses", true)
}

func (c *Config) IsReadOnlyForDiskFull() bool {
	return c.GetBool("documentdb.is_read_only_for_disk_full", false)
}

func (c *Config) ReadOnly() bool {
	return c.GetBool("documentdb.read_only", false)
}

func (c *Config) MaxWriteBatchSize() int32 {
	return c.GetInt32("documentdb.max_write_batch_size", defaultMaxWriteBatchSize)
}

func (c *Config) EnableChangeStreams() bool {
	return c.GetBool("documentdb.enable_change_streams", false)
}

// IsPostgresWritable reports whether the backend this gateway talks to is
// the primary (not a replica currently serving read-only traffic).
func (c *Config) IsPostgresWritable() bool {
	return !c.GetBool(postgresRecoveryKey, false)
}

// IsReplicaCluster reports whether writes should be rejected/redirected:
// the backend is in recovery AND Citus is configured to route reads to
// secondaries, or the operator has forced simulateReadReplica for local
// testing.
func (c *Config) IsReplicaCluster() bool {
	c.mu.RLock()
	simulate := c.simulateReadReplica
	c.mu.RUnlock()
	if simulate {
		return true
	}
	return c.GetBool(postgresRecoveryKey, false) && c.Equals("citus.use_secondary_nodes", "always")
}

// ReloadFromBackend refreshes settings from pg_settings and
// pg_is_in_recovery() via client. It is intended to be called on a
// timer; each call replaces the whole map atomically rather than
// merging, so a setting removed upstream disappears here too.
func ReloadFromBackend(ctx context.Context, client *backend.Client) (map[string]string, error) {
	result, err := client.Query(ctx, backend.TimeoutNone, 0, "SELECT name, setting FROM pg_settings")
	if err != nil {
		return nil, err
	}
	settings := make(map[string]string, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 2 {
			continue
		}
		settings[string(row[0])] = string(row[1])
	}

	recoveryResult, err := client.Query(ctx, backend.TimeoutNone, 0, "SELECT pg_is_in_recovery()")
	if err != nil {
		return nil, err
	}
	if row, rErr := recoveryResult.First(); rErr == nil && len(row) > 0 {
		if isTruthyBool(row[0]) {
			settings[postgresRecoveryKey] = "on"
		} else {
			settings[postgresRecoveryKey] = "off"
		}
	}
	return settings, nil
}

// isTruthyBool interprets a bool column value in either wire format pgx
// might hand back: text ("t"/"f", "true"/"false") or binary (a single
// 0x01/0x00 byte).
func isTruthyBool(raw []byte) bool {
	if len(raw) == 1 && (raw[0] == 0 || raw[0] == 1) {
		return raw[0] == 1
	}
	switch strings.ToLower(string(raw)) {
	case "t", "true", "1":
		return true
	default:
		return false
	}
}

// Watch runs ReloadFromBackend on interval until ctx is cancelled,
// applying each successful result and ignoring transient failures (the
// next tick will retry).
func Watch(ctx context.Context, client *backend.Client, cfg *Config, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if settings, err := ReloadFromBackend(ctx, client); err == nil {
				cfg.Replace(settings)
			}
		}
	}
}
