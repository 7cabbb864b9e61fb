// Package certs hot-reloads the gateway's TLS server certificate so an
// operator can rotate it without a restart: a background ticker checks
// the cert/key file mtimes and rebuilds the tls.Config when either
// changes.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// refreshInterval matches the 60-second poll the gateway this was
// modeled on uses.
const refreshInterval = 60 * time.Second

// Options names the certificate files a Provider loads. CAPath is
// optional — when set, it configures client-certificate verification via
// tls.Config.ClientCAs rather than just the server's own chain.
type Options struct {
	CertPath string
	KeyPath  string
	CAPath   string
}

// Provider serves the gateway's current tls.Config and swaps it in place
// when the underlying files change, without interrupting connections
// already using the old one (each holds its own *tls.Config obtained
// from Config() at accept time).
type Provider struct {
	opts Options
	log  *slog.Logger

	current atomic.Pointer[tls.Config]

	certModTime time.Time
	keyModTime  time.Time

	stop chan struct{}
}

// NewProvider loads the initial certificate and starts the refresh loop.
func NewProvider(opts Options, log *slog.Logger) (*Provider, error) {
	p := &Provider{opts: opts, log: log, stop: make(chan struct{})}

	cfg, certMod, keyMod, err := loadTLSConfig(opts)
	if err != nil {
		return nil, err
	}
	p.current.Store(cfg)
	p.certModTime = certMod
	p.keyModTime = keyMod

	go p.refreshLoop()
	return p, nil
}

// Config returns the provider's current tls.Config. Safe to call
// concurrently; the returned value should be treated as immutable by the
// caller (a new one is swapped in rather than mutating this one in place).
func (p *Provider) Config() *tls.Config {
	return p.current.Load()
}

func (p *Provider) Close() {
	close(p.stop)
}

func (p *Provider) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.maybeReload()
		}
	}
}

func (p *Provider) maybeReload() {
	certMod, err := modTime(p.opts.CertPath)
	if err != nil {
		p.log.Error("checking certificate mtime", "error", err)
		return
	}
	keyMod, err := modTime(p.opts.KeyPath)
	if err != nil {
		p.log.Error("checking key mtime", "error", err)
		return
	}
	if !certMod.After(p.certModTime) && !keyMod.After(p.keyModTime) {
		return
	}

	p.log.Info("reloading TLS certificate since it has been modified")
	cfg, newCertMod, newKeyMod, err := loadTLSConfig(p.opts)
	if err != nil {
		p.log.Error("failed to reload TLS certificate", "error", err)
		return
	}
	p.current.Store(cfg)
	p.certModTime = newCertMod
	p.keyModTime = newKeyMod
	p.log.Info("TLS certificate reloaded")
}

func loadTLSConfig(opts Options) (*tls.Config, time.Time, time.Time, error) {
	cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("loading TLS certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if opts.CAPath != "" {
		pool, err := loadCAPool(opts.CAPath)
		if err != nil {
			return nil, time.Time{}, time.Time{}, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	certMod, err := modTime(opts.CertPath)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	keyMod, err := modTime(opts.KeyPath)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	return cfg, certMod, keyMod, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}
