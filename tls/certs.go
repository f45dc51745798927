package tls

import (
	"crypto/x509"
	"fmt"
	"os"
)

// LoadRootCAs builds a pool from a PEM bundle. An empty path returns nil, meaning the system pool.
func LoadRootCAs(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(buf) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
