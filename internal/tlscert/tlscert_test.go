package tlscert

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIssueSelfSigned(t *testing.T) {
	cert, err := IssueSelfSigned([]string{"127.0.0.1", "mc.example.com", "0.0.0.0"}, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	pair, err := tls.X509KeyPair(cert.CertPEM, cert.KeyPEM)
	if err != nil {
		t.Fatalf("issued pair invalid: %v", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse leaf: %v", err)
	}
	if len(leaf.IPAddresses) != 1 || len(leaf.DNSNames) != 1 || leaf.DNSNames[0] != "mc.example.com" {
		t.Fatalf("unexpected SANs: ips=%v dns=%v", leaf.IPAddresses, leaf.DNSNames)
	}
	if err := leaf.VerifyHostname("mc.example.com"); err != nil {
		t.Fatalf("expected hostname to verify: %v", err)
	}
	if len(cert.Fingerprint) != 64 {
		t.Fatalf("expected sha256 fingerprint, got %q", cert.Fingerprint)
	}
}

func TestEnsureSelfSignedReusesPair(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")

	certFile, keyFile, err := EnsureSelfSigned(dir, []string{"localhost"})
	if err != nil {
		t.Fatalf("failed to ensure: %v", err)
	}
	first, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatalf("cert not written: %v", err)
	}
	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected key mode 0600, got %v", info.Mode().Perm())
	}

	if _, _, err := EnsureSelfSigned(dir, []string{"localhost"}); err != nil {
		t.Fatalf("failed to ensure again: %v", err)
	}
	second, _ := os.ReadFile(certFile)
	if string(first) != string(second) {
		t.Fatalf("expected the existing certificate to be reused")
	}
}

func TestEnsureSelfSignedReplacesGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CertFileName), []byte("junk"), 0644); err != nil {
		t.Fatalf("failed to write junk: %v", err)
	}
	certFile, keyFile, err := EnsureSelfSigned(dir, nil)
	if err != nil {
		t.Fatalf("failed to ensure: %v", err)
	}
	if _, err := tls.LoadX509KeyPair(certFile, keyFile); err != nil {
		t.Fatalf("expected a valid pair: %v", err)
	}
}

func TestClientConfig(t *testing.T) {
	cfg, err := ClientConfig("", false)
	if err != nil || cfg.RootCAs != nil {
		t.Fatalf("expected system roots, got %v, %v", cfg, err)
	}

	cert, err := IssueSelfSigned([]string{"localhost"}, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}
	ca := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(ca, cert.CertPEM, 0644); err != nil {
		t.Fatalf("failed to write ca: %v", err)
	}
	cfg, err = ClientConfig(ca, false)
	if err != nil || cfg.RootCAs == nil {
		t.Fatalf("expected custom pool, got %v", err)
	}

	if _, err := ClientConfig(filepath.Join(t.TempDir(), "missing.pem"), false); err == nil {
		t.Fatalf("expected error for missing ca file")
	}
}
