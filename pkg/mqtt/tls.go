package mqtt

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/saaga0h/quito/pkg/broker"
)

// TLSConfig builds a tls.Config from the options' TLS material.
// Without a CA the system roots are used. Returns nil when TLS is off.
func TLSConfig(opts broker.Options) (*tls.Config, error) {
	if !opts.TLS {
		return nil, nil
	}

	host, _, _ := strings.Cut(opts.Host, "/")
	cfg := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	m := opts.TLSMaterial
	if m == nil {
		return cfg, nil
	}

	if len(m.CA) > 0 {
		cas, err := parseCertificates(m.CA)
		if err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		for _, ca := range cas {
			pool.AddCert(ca)
		}
		cfg.RootCAs = pool
	}

	if len(m.Certificate) > 0 || len(m.PrivateKey) > 0 {
		if len(m.Certificate) == 0 || len(m.PrivateKey) == 0 {
			return nil, errors.New("both client certificate and private key are required for client authentication")
		}
		cert, err := clientCertificate(m.Certificate, m.PrivateKey, m.KeyStorePassword)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func clientCertificate(certData, keyData []byte, password string) (tls.Certificate, error) {
	chain, err := parseCertificates(certData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load client certificate: %w", err)
	}
	key, err := parsePrivateKey(keyData, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load private key: %w", err)
	}

	cert := tls.Certificate{PrivateKey: key, Leaf: chain[0]}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

// parseCertificates accepts one or more PEM CERTIFICATE blocks or raw DER
func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	block, rest := pem.Decode(data)
	if block == nil {
		certs, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, err
		}
		if len(certs) == 0 {
			return nil, errors.New("no certificate found")
		}
		return certs, nil
	}

	var certs []*x509.Certificate
	for ; block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	if len(certs) == 0 {
		return nil, errors.New("no CERTIFICATE block found")
	}
	return certs, nil
}

// parsePrivateKey accepts a PEM or DER key in PKCS#8, PKCS#1 or SEC 1 form.
// Legacy encrypted PEM blocks are decrypted with password.
func parsePrivateKey(data []byte, password string) (crypto.PrivateKey, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
		if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
			if password == "" {
				return nil, errors.New("private key is encrypted but no password was given")
			}
			decrypted, err := x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck
			if err != nil {
				return nil, fmt.Errorf("decrypt private key: %w", err)
			}
			der = decrypted
		}
	}

	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}
