package crypto

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// Certificate is an X.509 certificate together with its RSA private key.
type Certificate struct {
	Leaf *x509.Certificate
	Key  *rsa.PrivateKey
}

// Thumbprint returns the base64url SHA-1 thumbprint of the certificate, the
// value Azure AD expects in the x5t header of a client assertion.
func (c *Certificate) Thumbprint() string {
	sum := sha1.Sum(c.Leaf.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// LoadCertificate reads a PKCS#12 bundle (.pfx/.p12) or a PEM certificate.
// For PEM, keyPath may point to a separate key file; when empty the key is
// expected in the same file as the certificate.
func LoadCertificate(certPath, keyPath, password string) (*Certificate, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}

	switch strings.ToLower(filepath.Ext(certPath)) {
	case ".pfx", ".p12":
		return decodePKCS12(data, password)
	}

	keyData := data
	if keyPath != "" {
		keyData, err = os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read certificate key: %w", err)
		}
	}
	return ParsePEMCertificate(data, keyData)
}

func decodePKCS12(data []byte, password string) (*Certificate, error) {
	key, leaf, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decode pkcs12: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("pkcs12: private key is not RSA")
	}
	return &Certificate{Leaf: leaf, Key: rsaKey}, nil
}

// ParsePEMCertificate extracts the first CERTIFICATE block from certPEM and
// the first private key block from keyPEM.
func ParsePEMCertificate(certPEM, keyPEM []byte) (*Certificate, error) {
	var leaf *x509.Certificate
	for rest := certPEM; leaf == nil; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("pem: no certificate found")
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		leaf = cert
	}

	for rest := keyPEM; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("pem: no private key found")
		}
		key, err := parsePrivateKey(block)
		if err != nil {
			return nil, err
		}
		if key == nil {
			continue
		}
		return &Certificate{Leaf: leaf, Key: key}, nil
	}
}

func parsePrivateKey(block *pem.Block) (*rsa.PrivateKey, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("pem: private key is not RSA")
		}
		return rsaKey, nil
	}
	return nil, nil
}
