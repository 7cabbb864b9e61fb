package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSelfSignedCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

func TestProviderLoadsInitialCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir)

	p, err := NewProvider(Options{CertPath: certPath, KeyPath: keyPath}, slog.Default())
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Close()

	cfg := p.Config()
	if cfg == nil || len(cfg.Certificates) != 1 {
		t.Fatalf("expected one loaded certificate, got %+v", cfg)
	}
}

func TestProviderReloadsOnModification(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir)

	p, err := NewProvider(Options{CertPath: certPath, KeyPath: keyPath}, slog.Default())
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Close()

	firstCert := p.Config().Certificates[0].Certificate[0]

	// Rewrite with a fresh cert and force the mtime forward, since some
	// filesystems have coarse mtime resolution.
	_, _ = writeSelfSignedCert(t, dir)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(certPath, future, future); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(keyPath, future, future); err != nil {
		t.Fatal(err)
	}

	p.maybeReload()

	secondCert := p.Config().Certificates[0].Certificate[0]
	if string(firstCert) == string(secondCert) {
		t.Fatal("expected maybeReload to pick up the rewritten certificate")
	}
}

func TestProviderSkipsReloadWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir)

	p, err := NewProvider(Options{CertPath: certPath, KeyPath: keyPath}, slog.Default())
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Close()

	before := p.Config()
	p.maybeReload()
	after := p.Config()
	if before != after {
		t.Fatal("expected no reload when files are unmodified")
	}
}
