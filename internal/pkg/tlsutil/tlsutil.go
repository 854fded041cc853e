// Package tlsutil loads the mutual TLS material shared by the vehicle
// connector and the vehicle simulator.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names expected inside a certificate directory.
const (
	ClientCertFile = "client.crt"
	ClientKeyFile  = "client.key"
	ServerCertFile = "server.crt"
	ServerKeyFile  = "server.key"
	CAFile         = "ca.crt"
)

// ErrMaterial is wrapped by every error caused by missing or unusable
// certificate material.
var ErrMaterial = errors.New("invalid TLS material")

// ClientConfig builds a client configuration that presents client.crt and
// trusts only ca.crt.
func ClientConfig(dir string) (*tls.Config, error) {
	cert, pool, err := load(dir, ClientCertFile, ClientKeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ServerConfig builds a server configuration that requires client
// certificates signed by ca.crt.
func ServerConfig(dir string) (*tls.Config, error) {
	cert, pool, err := load(dir, ServerCertFile, ServerKeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func load(dir, certFile, keyFile string) (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, certFile), filepath.Join(dir, keyFile))
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: load key pair from %s: %v", ErrMaterial, dir, err)
	}

	caPEM, err := os.ReadFile(filepath.Join(dir, CAFile))
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: read CA bundle: %v", ErrMaterial, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return tls.Certificate{}, nil, fmt.Errorf("%w: no certificates in %s", ErrMaterial, filepath.Join(dir, CAFile))
	}
	return cert, pool, nil
}
