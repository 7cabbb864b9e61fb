package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validYAML() string {
	return `
listen:
  host: 0.0.0.0
  port: 10260

backend:
  host: pg-backend
  port: 5432
  database: documentdb
  system_user: citus

certificate:
  cert_path: /tmp/does-not-matter-cert.pem
  key_path: /tmp/does-not-matter-key.pem

blocked_role_prefixes:
  - admin_

dynamic_config:
  file_path: /etc/gatewayd/dynamic.json
  refresh_interval: 30s

timeouts:
  command: 45s
  transaction: 30s
  cursor: 5m

application_name: documentdb_gateway
`
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeTemp(t, validYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Port != 10260 {
		t.Errorf("expected listen port 10260, got %d", cfg.Listen.Port)
	}
	if cfg.Backend.Host != "pg-backend" {
		t.Errorf("expected backend host pg-backend, got %s", cfg.Backend.Host)
	}
	if len(cfg.BlockedRolePrefixes) != 1 || cfg.BlockedRolePrefixes[0] != "admin_" {
		t.Errorf("expected blocked_role_prefixes [admin_], got %v", cfg.BlockedRolePrefixes)
	}
	if cfg.Timeouts.Command != 45*time.Second {
		t.Errorf("expected command timeout 45s, got %v", cfg.Timeouts.Command)
	}
	if cfg.DynamicConfig.RefreshInterval != 30*time.Second {
		t.Errorf("expected dynamic config refresh interval 30s, got %v", cfg.DynamicConfig.RefreshInterval)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_SYSTEM_PASSWORD", "secret123")
	defer os.Unsetenv("TEST_SYSTEM_PASSWORD")

	yaml := `
backend:
  host: pg-backend
  system_user: citus
  system_password: ${TEST_SYSTEM_PASSWORD}

certificate:
  cert_path: /tmp/cert.pem
  key_path: /tmp/key.pem
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.SystemPassword != "secret123" {
		t.Errorf("expected password secret123, got %s", cfg.Backend.SystemPassword)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing backend host",
			yaml: `
backend:
  system_user: citus
certificate:
  cert_path: /tmp/cert.pem
  key_path: /tmp/key.pem
`,
		},
		{
			name: "missing system user",
			yaml: `
backend:
  host: pg-backend
certificate:
  cert_path: /tmp/cert.pem
  key_path: /tmp/key.pem
`,
		},
		{
			name: "missing certificate paths",
			yaml: `
backend:
  host: pg-backend
  system_user: citus
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	yaml := `
backend:
  host: pg-backend
  system_user: citus
certificate:
  cert_path: /tmp/cert.pem
  key_path: /tmp/key.pem
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.Port != 10260 {
		t.Errorf("expected default listen port 10260, got %d", cfg.Listen.Port)
	}
	if cfg.Backend.Port != 5432 {
		t.Errorf("expected default backend port 5432, got %d", cfg.Backend.Port)
	}
	if cfg.Timeouts.Command != 2*time.Minute {
		t.Errorf("expected default command timeout 2m, got %v", cfg.Timeouts.Command)
	}
	if cfg.ApplicationName != "documentdb_gateway" {
		t.Errorf("expected default application name, got %s", cfg.ApplicationName)
	}
}

func TestApplyDefaultsFillsCatalog(t *testing.T) {
	yaml := `
backend:
  host: pg-backend
  system_user: citus
certificate:
  cert_path: /tmp/cert.pem
  key_path: /tmp/key.pem
catalog:
  insert: "SELECT custom_schema.insert($1, $2)"
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Catalog.Insert != "SELECT custom_schema.insert($1, $2)" {
		t.Errorf("expected overridden insert procedure preserved, got %s", cfg.Catalog.Insert)
	}
	if cfg.Catalog.Delete == "" {
		t.Error("expected unconfigured catalog entries to be filled from defaults")
	}
}

func TestEndpointAndCredentialHelpers(t *testing.T) {
	path := writeTemp(t, validYAML())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ep := cfg.Endpoint()
	if ep.Host != "pg-backend" || ep.Database != "documentdb" || ep.ApplicationName != "documentdb_gateway" {
		t.Errorf("unexpected endpoint: %+v", ep)
	}

	cred := cfg.SystemCredential()
	if cred.Username != "citus" {
		t.Errorf("expected system credential username citus, got %s", cred.Username)
	}

	certOpts := cfg.CertOptions()
	if certOpts.CertPath == "" || certOpts.KeyPath == "" {
		t.Errorf("expected certificate options populated: %+v", certOpts)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
