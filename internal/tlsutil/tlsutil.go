// Package tlsutil builds the TLS configuration for the node's dashboard
// endpoint and can generate self-signed certificates for it.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/gridnode/internal/config"
)

const (
	caCertName = "tls_ca.crt"
	certName   = "tls.crt"
	keyName    = "tls.key"
)

// ServerConfig builds the dashboard's *tls.Config from configuration.
// It returns (nil, nil) when TLS is not enabled (no certificate configured
// and no auto-generation requested).
//
// The resulting endpoint is encrypted but not mutually authenticated: no
// client certificate is requested and no hostname checks apply. That is a
// deliberate trade-off for a monitoring surface reached by many transient
// peers; do not reuse this config for inter-node RPC.
func ServerConfig(cfg config.TLSConfig) (*tls.Config, error) {
	certPath, keyPath := cfg.Cert, cfg.Key

	if certPath == "" && cfg.AutoGenerate {
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "gridnode-tls")
		}
		certPath = filepath.Join(dir, certName)
		keyPath = filepath.Join(dir, keyName)
		if !certificatesExist(certPath, keyPath) {
			if err := generate(dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	if certPath == "" {
		return nil, nil
	}
	if keyPath == "" {
		return nil, errors.New("tls certificate configured without a key")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load certificate chain: %w", err)
	}

	tc := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.NoClientCert,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tc.ClientCAs = pool
	}
	return tc, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generate(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create certificate directory: %w", err)
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   "localhost",
		Organization: "gridnode",
		DNSNames:     []string{"localhost"},
		IPAddresses:  []string{"127.0.0.1"},
		NotAfter:     time.Now().AddDate(5, 0, 0),
		CertPath:     filepath.Join(dir, certName),
		KeyPath:      filepath.Join(dir, keyName),
		CACertPath:   filepath.Join(dir, caCertName),
	})
}
