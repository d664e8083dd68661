package service

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	"verifiedid/issuer/internal/model"
	"verifiedid/issuer/pkg/crypto"
)

// CallbackPath is where the issuance service posts status callbacks.
const CallbackPath = "/api/issuer/issue-request-callback"

// ClientContext describes the browser that asked for an issuance.
type ClientContext struct {
	// BaseURL is the public base URL of this service, e.g. "https://issuer.example/".
	BaseURL   string
	UserAgent string
}

// IssuanceAPI creates issuance requests upstream. Implemented by
// upstream.IssuanceClient.
type IssuanceAPI interface {
	CreateIssuanceRequest(ctx context.Context, payload *model.IssuanceRequest, bearer string) (model.IssuanceResponse, error)
}

type IssuanceService interface {
	// CreateIssuance returns the upstream response plus "id" (the
	// correlation id) and, when one was generated, "pin".
	CreateIssuance(ctx context.Context, client ClientContext) (model.IssuanceResponse, error)
}

type issuanceService struct {
	template *model.IssuanceRequest
	apiKey   string
	sessions SessionService
	tokens   TokenProvider
	api      IssuanceAPI
	logger   *zap.Logger
}

func NewIssuanceService(
	template *model.IssuanceRequest,
	apiKey string,
	sessions SessionService,
	tokens TokenProvider,
	api IssuanceAPI,
	logger *zap.Logger,
) IssuanceService {
	return &issuanceService{
		template: template,
		apiKey:   apiKey,
		sessions: sessions,
		tokens:   tokens,
		api:      api,
		logger:   logger,
	}
}

func (s *issuanceService) CreateIssuance(ctx context.Context, client ClientContext) (model.IssuanceResponse, error) {
	// The session is written before anything can fail so the UI always has
	// a record to poll.
	id, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}

	payload, pin, err := s.buildRequest(id, client)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.api.CreateIssuanceRequest(ctx, payload, token)
	if err != nil {
		s.logger.Error("create issuance request failed", zap.String("state", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	s.logger.Info("issuance request created",
		zap.String("state", id),
		zap.String("request_id", resp.RequestID()),
		zap.Bool("pin", pin != ""),
	)

	out := maps.Clone(resp)
	if out == nil {
		out = model.IssuanceResponse{}
	}
	out["id"] = mustJSON(id)
	if pin != "" {
		out["pin"] = mustJSON(pin)
	}
	return out, nil
}

// buildRequest copies the template and fills in the per-request fields.
func (s *issuanceService) buildRequest(id string, client ClientContext) (*model.IssuanceRequest, string, error) {
	payload := *s.template
	payload.Claims = maps.Clone(s.template.Claims)
	payload.Pin = nil
	payload.Callback = model.Callback{
		URL:     strings.TrimRight(client.BaseURL, "/") + CallbackPath,
		State:   id,
		Headers: map[string]string{"api-key": s.apiKey},
	}

	if !PinRequired(s.template, client.UserAgent) {
		return &payload, "", nil
	}
	pin, err := crypto.GeneratePinCode(s.template.Pin.Length)
	if err != nil {
		return nil, "", err
	}
	payload.Pin = &model.Pin{Value: pin, Length: s.template.Pin.Length}
	return &payload, pin, nil
}

// PinRequired applies the pin policy: the template must ask for a pin and
// the client must not be a mobile device, where the wallet opens the request
// through a deep link and a pin adds nothing.
func PinRequired(template *model.IssuanceRequest, userAgent string) bool {
	if template.Pin == nil || template.Pin.Length <= 0 {
		return false
	}
	return !IsMobileUserAgent(userAgent)
}

// IsMobileUserAgent matches Android and iPhone markers case-insensitively.
func IsMobileUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	return strings.Contains(ua, "android") || strings.Contains(ua, "iphone")
}

func mustJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
