package credential

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2/clientcredentials"

	"verifiedid/issuer/internal/config"
	"verifiedid/issuer/pkg/crypto"
)

const (
	KindSecret      = "client_secret"
	KindCertificate = "certificate"
)

// Source authenticates the client for one client-credentials grant.
// Implementations: SecretSource and CertificateSource.
type Source interface {
	Kind() string
	// Apply sets the client authentication on grant. tokenURL is the
	// endpoint the grant is sent to, used as assertion audience.
	Apply(grant *clientcredentials.Config, tokenURL string) error
}

// NewSource picks the credential kind from configuration. A client secret
// wins over a certificate when both are configured.
func NewSource(cfg config.TokenConfig) (Source, error) {
	if cfg.ClientSecret != "" {
		return NewSecretSource(cfg.ClientSecret), nil
	}
	if cfg.CertificatePath == "" {
		return nil, errors.New("credential: neither client secret nor certificate configured")
	}
	cert, err := crypto.LoadCertificate(cfg.CertificatePath, cfg.CertificateKeyPath, cfg.CertificatePassword)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	return NewCertificateSource(cert, nil), nil
}

// SecretSource authenticates with a shared client secret.
type SecretSource struct {
	secret string
}

func NewSecretSource(secret string) *SecretSource {
	return &SecretSource{secret: secret}
}

func (*SecretSource) Kind() string { return KindSecret }

func (s *SecretSource) Apply(grant *clientcredentials.Config, _ string) error {
	grant.ClientSecret = s.secret
	return nil
}
