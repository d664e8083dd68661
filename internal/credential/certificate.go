package credential

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"

	"verifiedid/issuer/pkg/crypto"
)

const (
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	assertionLifetime   = 10 * time.Minute
)

// CertificateSource authenticates with a client assertion signed by the
// private key of a registered certificate (RFC 7523).
type CertificateSource struct {
	cert *crypto.Certificate
	now  func() time.Time
}

func NewCertificateSource(cert *crypto.Certificate, now func() time.Time) *CertificateSource {
	if now == nil {
		now = time.Now
	}
	return &CertificateSource{cert: cert, now: now}
}

func (*CertificateSource) Kind() string { return KindCertificate }

func (s *CertificateSource) Apply(grant *clientcredentials.Config, tokenURL string) error {
	assertion, err := s.Assertion(grant.ClientID, tokenURL)
	if err != nil {
		return err
	}
	grant.ClientSecret = ""
	if grant.EndpointParams == nil {
		grant.EndpointParams = url.Values{}
	}
	grant.EndpointParams.Set("client_assertion_type", clientAssertionType)
	grant.EndpointParams.Set("client_assertion", assertion)
	return nil
}

type assertionClaims struct {
	Audience  string `json:"aud"`
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	ID        string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	NotBefore int64  `json:"nbf"`
	Expiry    int64  `json:"exp"`
}

// Assertion returns a compact RS256 JWS identifying clientID to audience.
func (s *CertificateSource) Assertion(clientID, audience string) (string, error) {
	now := s.now()
	payload, err := json.Marshal(assertionClaims{
		Audience:  audience,
		Issuer:    clientID,
		Subject:   clientID,
		ID:        uuid.NewString(),
		IssuedAt:  now.Unix(),
		NotBefore: now.Unix(),
		Expiry:    now.Add(assertionLifetime).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal assertion: %w", err)
	}

	opts := (&jose.SignerOptions{}).
		WithType("JWT").
		WithHeader("x5t", s.cert.Thumbprint())
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: s.cert.Key}, opts)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return jws.CompactSerialize()
}
