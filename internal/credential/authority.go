package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/zitadel/oidc/v3/pkg/client"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"verifiedid/issuer/internal/config"
)

// Authority performs client-credentials grants against the token endpoint of
// the configured authority.
type Authority struct {
	issuer     string
	tokenURL   string
	clientID   string
	scope      string
	source     Source
	httpClient *http.Client

	mu       sync.Mutex
	resolved string
}

func NewAuthority(cfg config.TokenConfig, source Source, httpClient *http.Client) *Authority {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Authority{
		issuer:     strings.TrimSpace(cfg.AuthorityURL()),
		tokenURL:   strings.TrimSpace(cfg.TokenURL),
		clientID:   cfg.ClientID,
		scope:      cfg.Scope,
		source:     source,
		httpClient: httpClient,
	}
}

// TokenEndpoint returns the configured token URL or discovers it from the
// authority's OpenID configuration. A successful discovery is memoized.
func (a *Authority) TokenEndpoint(ctx context.Context) (string, error) {
	if a.tokenURL != "" {
		return a.tokenURL, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.resolved != "" {
		return a.resolved, nil
	}
	if a.issuer == "" {
		return "", errors.New("credential: no authority configured")
	}
	discovery, err := client.Discover(ctx, a.issuer, a.httpClient)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", a.issuer, err)
	}
	if discovery.TokenEndpoint == "" {
		return "", fmt.Errorf("discover %s: no token_endpoint", a.issuer)
	}
	a.resolved = discovery.TokenEndpoint
	return a.resolved, nil
}

// AcquireToken runs one client-credentials grant. It never retries.
func (a *Authority) AcquireToken(ctx context.Context) (*oauth2.Token, error) {
	tokenURL, err := a.TokenEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	grant := &clientcredentials.Config{
		ClientID:  a.clientID,
		TokenURL:  tokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if a.scope != "" {
		grant.Scopes = []string{a.scope}
	}
	if err := a.source.Apply(grant, tokenURL); err != nil {
		return nil, fmt.Errorf("apply %s credential: %w", a.source.Kind(), err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := grant.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client credentials grant: %w", err)
	}
	return token, nil
}

// Kind reports which credential source the authority uses.
func (a *Authority) Kind() string { return a.source.Kind() }
