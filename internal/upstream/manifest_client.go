package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ManifestClient downloads signed credential manifests.
type ManifestClient struct {
	httpClient *http.Client
}

func NewManifestClient(httpClient *http.Client) *ManifestClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ManifestClient{httpClient: httpClient}
}

// Download fetches manifestURL and returns its compact signed token.
func (c *ManifestClient) Download(ctx context.Context, manifestURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get manifest: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return "", err
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode manifest response: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("manifest response has no token")
	}
	return body.Token, nil
}
