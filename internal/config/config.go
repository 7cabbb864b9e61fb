// Package config loads the gateway's static startup configuration: a YAML
// file with ${VAR} environment substitution, hot-reloaded via fsnotify,
// generalized directly from the teacher's own config loader.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/certs"
)

// Config is the gateway's top-level startup configuration, per spec.md's
// "Configuration" section: listen selector, backend coordinates,
// certificate options, blocked role prefixes, dynamic-config file
// location/interval, the three operational timeouts, node host name and
// application name. Missing fields take the defaults applyDefaults fills
// in after Load parses the file.
type Config struct {
	Listen              ListenConfig    `yaml:"listen"`
	Backend             BackendConfig   `yaml:"backend"`
	Certificate         CertificateConfig `yaml:"certificate"`
	BlockedRolePrefixes []string        `yaml:"blocked_role_prefixes"`
	DynamicConfig       DynamicConfigSettings `yaml:"dynamic_config"`
	Timeouts            TimeoutConfig   `yaml:"timeouts"`
	NodeHostName        string          `yaml:"node_host_name"`
	ApplicationName     string          `yaml:"application_name"`
	Catalog             backend.Catalog `yaml:"catalog"`
}

// ListenConfig defines the address the gateway accepts Mongo-wire
// connections on, plus the separate port its HTTP admin surface (health,
// metrics, pool stats) binds.
type ListenConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AdminPort int    `yaml:"admin_port"`
}

// BackendConfig names the Postgres cluster the gateway proxies to and the
// system user used for pools not scoped to a particular client credential
// (spec.md's "backend host/port/database/system-user").
type BackendConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	SystemUser      string        `yaml:"system_user"`
	SystemPassword  string        `yaml:"system_password"`
	StartupWait     time.Duration `yaml:"startup_wait"`
}

// CertificateConfig holds the TLS material the gateway presents to
// clients. Kind records the certificate's origin (e.g. "file",
// "key-vault") the way spec.md's "cert kind" field does; the gateway
// itself only acts on file-backed certificates today, so Kind is carried
// through for operator bookkeeping and future dispatch rather than
// branched on.
type CertificateConfig struct {
	Kind     string `yaml:"kind"`
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
	CAPath   string `yaml:"ca_path"`
}

// DynamicConfigSettings holds the host-level dynamic-config file path and
// how often the reload loop refreshes settings from the backend. FilePath
// is parsed but not read: dynconfig loads only Postgres-sourced settings.
type DynamicConfigSettings struct {
	FilePath        string        `yaml:"file_path"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// TimeoutConfig groups the three operational timeouts spec.md calls out
// by name: the per-command statement timeout, how long an idle
// transaction may live before the reaper aborts it, and how long an idle
// cursor may live before the reaper drops it.
type TimeoutConfig struct {
	Command     time.Duration `yaml:"command"`
	Transaction time.Duration `yaml:"transaction"`
	Cursor      time.Duration `yaml:"cursor"`
}

// Endpoint builds the backend.Endpoint this config's Backend section and
// ApplicationName describe.
func (c *Config) Endpoint() backend.Endpoint {
	return backend.Endpoint{
		Host:            c.Backend.Host,
		Port:            c.Backend.Port,
		Database:        c.Backend.Database,
		ApplicationName: c.ApplicationName,
	}
}

// SystemCredential is the backend.Credential used for the system and
// authentication pools.
func (c *Config) SystemCredential() backend.Credential {
	return backend.Credential{Username: c.Backend.SystemUser, Password: c.Backend.SystemPassword}
}

// CertOptions adapts this config's Certificate section for certs.NewProvider.
func (c *Config) CertOptions() certs.Options {
	return certs.Options{CertPath: c.Certificate.CertPath, KeyPath: c.Certificate.KeyPath, CAPath: c.Certificate.CAPath}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "0.0.0.0"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 10260
	}
	if cfg.Listen.AdminPort == 0 {
		cfg.Listen.AdminPort = 9090
	}
	if cfg.Backend.Port == 0 {
		cfg.Backend.Port = 5432
	}
	if cfg.Backend.Database == "" {
		cfg.Backend.Database = "postgres"
	}
	if cfg.Backend.StartupWait == 0 {
		cfg.Backend.StartupWait = 30 * time.Second
	}
	if cfg.DynamicConfig.RefreshInterval == 0 {
		cfg.DynamicConfig.RefreshInterval = time.Minute
	}
	if cfg.Timeouts.Command == 0 {
		cfg.Timeouts.Command = 2 * time.Minute
	}
	if cfg.Timeouts.Transaction == 0 {
		cfg.Timeouts.Transaction = time.Minute
	}
	if cfg.Timeouts.Cursor == 0 {
		cfg.Timeouts.Cursor = 10 * time.Minute
	}
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = "documentdb_gateway"
	}
	if cfg.NodeHostName == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.NodeHostName = hostname
		}
	}

	cfg.Catalog.FillDefaults()
}

func validate(cfg *Config) error {
	if cfg.Backend.Host == "" {
		return fmt.Errorf("backend: host is required")
	}
	if cfg.Backend.SystemUser == "" {
		return fmt.Errorf("backend: system_user is required")
	}
	if cfg.Certificate.CertPath == "" || cfg.Certificate.KeyPath == "" {
		return fmt.Errorf("certificate: cert_path and key_path are required")
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
