package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"verifiedid/issuer/internal/repository"
	jwtpkg "verifiedid/issuer/pkg/jwt"
)

const accessTokenKey = "issuer:access_token"

// TokenAuthority performs the client-credentials grant. Implemented by
// credential.Authority.
type TokenAuthority interface {
	AcquireToken(ctx context.Context) (*oauth2.Token, error)
}

// TokenProvider hands out the bearer token for the issuance API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type TokenProviderOption func(*tokenProvider)

// WithTokenClock replaces time.Now when sizing the cache lifetime.
func WithTokenClock(now func() time.Time) TokenProviderOption {
	return func(p *tokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

type tokenProvider struct {
	store     repository.StateStore
	authority TokenAuthority
	cacheTTL  time.Duration
	margin    time.Duration
	now       func() time.Time
	logger    *zap.Logger
	group     singleflight.Group
}

// NewTokenProvider caches tokens for at most cacheTTL, and never past the
// token's own expiry minus margin.
func NewTokenProvider(
	store repository.StateStore,
	authority TokenAuthority,
	cacheTTL, margin time.Duration,
	logger *zap.Logger,
	opts ...TokenProviderOption,
) TokenProvider {
	p := &tokenProvider{
		store:     store,
		authority: authority,
		cacheTTL:  cacheTTL,
		margin:    margin,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *tokenProvider) Token(ctx context.Context) (string, error) {
	cached, err := p.store.Get(ctx, accessTokenKey)
	if err != nil {
		p.logger.Warn("read cached access token", zap.Error(err))
	}
	if len(cached) > 0 {
		return string(cached), nil
	}

	// The grant is shared by every waiter, so it must outlive the first
	// caller's cancellation. The HTTP client timeout still bounds it.
	grantCtx := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(accessTokenKey, func() (interface{}, error) {
		return p.acquire(grantCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *tokenProvider) acquire(ctx context.Context) (string, error) {
	token, err := p.authority.AcquireToken(ctx)
	if err != nil {
		p.logger.Error("access token acquisition failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	if token == nil || token.AccessToken == "" {
		p.logger.Error("access token acquisition returned an empty token")
		return "", ErrAuthFailure
	}

	ttl := p.cacheLifetime(token)
	if ttl <= 0 {
		p.logger.Warn("access token expires within the safety margin, not caching")
		return token.AccessToken, nil
	}
	if err := p.store.Set(ctx, accessTokenKey, []byte(token.AccessToken), ttl); err != nil {
		p.logger.Warn("cache access token", zap.Error(err))
	}
	p.logger.Info("access token acquired", zap.Duration("cache_ttl", ttl))
	return token.AccessToken, nil
}

func (p *tokenProvider) cacheLifetime(token *oauth2.Token) time.Duration {
	ttl := p.cacheTTL
	expiry := token.Expiry
	if expiry.IsZero() {
		if exp, err := jwtpkg.ExpiresAt(token.AccessToken); err == nil {
			expiry = exp
		}
	}
	if !expiry.IsZero() {
		if remaining := expiry.Sub(p.now()) - p.margin; remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}
