package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"verifiedid/issuer/internal/model"
)

const createIssuancePath = "verifiableCredentials/createIssuanceRequest"

// IssuanceClient calls the Request Service REST API.
type IssuanceClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewIssuanceClient(apiEndpoint string, httpClient *http.Client) *IssuanceClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IssuanceClient{
		endpoint:   strings.TrimRight(apiEndpoint, "/") + "/" + createIssuancePath,
		httpClient: httpClient,
	}
}

// CreateIssuanceRequest posts payload with the bearer token and returns the
// response fields verbatim. A response without requestId is an error.
func (c *IssuanceClient) CreateIssuanceRequest(ctx context.Context, payload *model.IssuanceRequest, bearer string) (model.IssuanceResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode issuance request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post issuance request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var out model.IssuanceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode issuance response: %w", err)
	}
	if out.RequestID() == "" {
		return nil, errors.New("issuance response has no requestId")
	}
	return out, nil
}
