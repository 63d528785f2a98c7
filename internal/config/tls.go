package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// ServerTLS loads the certificate pair for secure listeners. Returns nil
// when no pair is configured, so callers can fall through to insecure mode.
func (t TLSConfig) ServerTLS() (*tls.Config, error) {
	if strings.TrimSpace(t.CertFile) == "" && strings.TrimSpace(t.KeyFile) == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLS builds the verification config for secure outbound links. With
// no ca_file it trusts the system roots.
func (t TLSConfig) ClientTLS() (*tls.Config, error) {
	conf := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: strings.TrimSpace(t.ServerName),
	}
	if strings.TrimSpace(t.CAFile) == "" {
		return conf, nil
	}
	pemBytes, err := os.ReadFile(t.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("no certificates parsed from %s", t.CAFile)
	}
	conf.RootCAs = pool
	return conf, nil
}
