package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"verifiedid/issuer/internal/repository"
)

const manifestKey = "issuer:manifest"

// ManifestDownloader fetches the compact signed manifest token. Implemented
// by upstream.ManifestClient.
type ManifestDownloader interface {
	Download(ctx context.Context, manifestURL string) (string, error)
}

type ManifestService interface {
	// Manifest returns the decoded payload of the credential manifest.
	Manifest(ctx context.Context) (json.RawMessage, error)
}

type manifestService struct {
	store      repository.StateStore
	downloader ManifestDownloader
	url        string
	ttl        time.Duration
	logger     *zap.Logger
}

func NewManifestService(
	store repository.StateStore,
	downloader ManifestDownloader,
	manifestURL string,
	ttl time.Duration,
	logger *zap.Logger,
) ManifestService {
	return &manifestService{
		store:      store,
		downloader: downloader,
		url:        manifestURL,
		ttl:        ttl,
		logger:     logger,
	}
}

func (s *manifestService) Manifest(ctx context.Context) (json.RawMessage, error) {
	cached, err := s.store.Get(ctx, manifestKey)
	if err != nil {
		s.logger.Warn("read cached manifest", zap.Error(err))
	}
	if len(cached) > 0 {
		return cached, nil
	}

	s.logger.Info("downloading manifest", zap.String("url", s.url))
	token, err := s.downloader.Download(ctx, s.url)
	if err != nil {
		s.logger.Error("manifest download failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	payload, err := ManifestPayload(token)
	if err != nil {
		s.logger.Error("manifest token invalid", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if err := s.store.Set(ctx, manifestKey, payload, s.ttl); err != nil {
		s.logger.Warn("cache manifest", zap.Error(err))
	}
	return payload, nil
}

// ManifestPayload extracts and decodes the payload segment of a compact
// signed token and checks that it is a JSON document.
func ManifestPayload(token string) (json.RawMessage, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return nil, fmt.Errorf("manifest token has %d segments, want 3", len(segments))
	}
	payload, err := DecodeSegment(segments[1])
	if err != nil {
		return nil, fmt.Errorf("decode manifest payload: %w", err)
	}
	if !json.Valid(payload) {
		return nil, errors.New("manifest payload is not JSON")
	}
	return payload, nil
}

// DecodeSegment decodes URL-safe base64, padding with '=' to the next
// multiple of four first.
func DecodeSegment(segment string) ([]byte, error) {
	if rem := len(segment) % 4; rem > 0 {
		segment += strings.Repeat("=", 4-rem)
	}
	return base64.URLEncoding.DecodeString(segment)
}
