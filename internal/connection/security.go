package connection

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/oakmoor/sparkedge/internal/infrastructure/config"
)

// tlsMinVersion is the minimum TLS version for secure connections.
const tlsMinVersion = tls.VersionTLS12

// buildTLSConfig translates the configured security mode into a TLS
// configuration. Returns (nil, nil) for plaintext mode.
//
// Modes requiring certificate files refuse the connection locally when a
// file is missing or unreadable, so a misconfigured node fails fast instead
// of hammering the broker.
func buildTLSConfig(sec config.SecurityConfig) (*tls.Config, error) {
	switch sec.Mode {
	case config.SecurityNone:
		return nil, nil

	case config.SecurityTLSInsecure:
		return &tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: true, //nolint:gosec // explicit operator opt-in, logged as a warning
		}, nil

	case config.SecurityTLSWithCA:
		pool, err := loadCAPool(sec.CAFile)
		if err != nil {
			return nil, err
		}
		return &tls.Config{
			MinVersion: tlsMinVersion,
			RootCAs:    pool,
		}, nil

	case config.SecurityTLSWithCert:
		pool, err := loadCAPool(sec.CAFile)
		if err != nil {
			return nil, err
		}
		if err := requireFile("client certificate", sec.CertFile); err != nil {
			return nil, err
		}
		if err := requireFile("client key", sec.KeyFile); err != nil {
			return nil, err
		}
		cert, err := tls.LoadX509KeyPair(sec.CertFile, sec.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client key pair: %w", err)
		}
		return &tls.Config{
			MinVersion:   tlsMinVersion,
			RootCAs:      pool,
			Certificates: []tls.Certificate{cert},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported security mode %q", sec.Mode)
	}
}

// loadCAPool reads a CA bundle into a certificate pool.
func loadCAPool(path string) (*x509.CertPool, error) {
	if err := requireFile("CA bundle", path); err != nil {
		return nil, err
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA bundle %s contains no usable certificates", path)
	}
	return pool, nil
}

// requireFile checks a configured certificate path exists.
func requireFile(what, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %s path not configured", ErrMissingCertificate, what)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMissingCertificate, what, path, err)
	}
	return nil
}
