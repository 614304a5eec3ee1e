// Package tlscert issues and loads the self-signed certificate used when
// TLS is enabled without operator-provided files.
package tlscert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	CertFileName = "wrapper-cert.pem"
	KeyFileName  = "wrapper-key.pem"

	defaultTTL = 365 * 24 * time.Hour
	// Certificates closer than this to expiry are reissued at startup.
	renewBefore = 30 * 24 * time.Hour
)

// Certificate is an issued certificate and its private key, PEM encoded.
type Certificate struct {
	CertPEM     []byte
	KeyPEM      []byte
	Serial      string
	Fingerprint string
	NotAfter    time.Time
}

// IssueSelfSigned creates a server certificate valid for hosts. Each host
// is added as an IP SAN or DNS SAN.
func IssueSelfSigned(hosts []string, ttl time.Duration) (*Certificate, error) {
	if ttl == 0 {
		ttl = defaultTTL
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   "mc-wrapper",
			Organization: []string{"mc-server-wrapper"},
		},
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(ttl),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, host := range hosts {
		host = strings.TrimSpace(host)
		switch {
		case host == "" || host == "0.0.0.0" || host == "::":
		case net.ParseIP(host) != nil:
			tmpl.IPAddresses = append(tmpl.IPAddresses, net.ParseIP(host))
		default:
			tmpl.DNSNames = append(tmpl.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create cert: %w", err)
	}

	h := sha256.Sum256(der)
	return &Certificate{
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		Serial:      fmt.Sprintf("%x", serialNumber),
		Fingerprint: fmt.Sprintf("%x", h[:]),
		NotAfter:    tmpl.NotAfter,
	}, nil
}

// EnsureSelfSigned returns the certificate and key paths under dir,
// issuing a new pair when none exists or the current one is about to
// expire.
func EnsureSelfSigned(dir string, hosts []string) (certFile, keyFile string, err error) {
	certFile = filepath.Join(dir, CertFileName)
	keyFile = filepath.Join(dir, KeyFileName)

	if leaf, err := loadLeaf(certFile, keyFile); err == nil {
		if time.Until(leaf.NotAfter) > renewBefore {
			return certFile, keyFile, nil
		}
		log.Printf("[TLS] Certificate %s expires %s, reissuing", certFile, leaf.NotAfter.Format(time.RFC3339))
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("[TLS] Existing certificate unusable, reissuing: %v", err)
	}

	cert, err := IssueSelfSigned(hosts, 0)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", fmt.Errorf("create tls directory: %w", err)
	}
	if err := os.WriteFile(keyFile, cert.KeyPEM, 0600); err != nil {
		return "", "", fmt.Errorf("write key: %w", err)
	}
	if err := os.WriteFile(certFile, cert.CertPEM, 0644); err != nil {
		return "", "", fmt.Errorf("write cert: %w", err)
	}

	log.Printf("[TLS] Issued self-signed certificate %s (sha256 %s, expires %s)",
		certFile, cert.Fingerprint, cert.NotAfter.Format("2006-01-02"))
	return certFile, keyFile, nil
}

func loadLeaf(certFile, keyFile string) (*x509.Certificate, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(pair.Certificate[0])
}

// ClientConfig builds a client TLS config trusting caFile, or the system
// roots when caFile is empty.
func ClientConfig(caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify,
	}
	if caFile == "" {
		return cfg, nil
	}

	caData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caData) {
		return nil, errors.New("append ca cert failed")
	}
	cfg.RootCAs = pool
	return cfg, nil
}
