package upstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseSize = 1 << 20

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// readBody reads at most maxResponseSize bytes and turns non-2xx responses
// into a *StatusError.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var parsed errorBody
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			statusErr.Code = parsed.Error.Code
			statusErr.Message = parsed.Error.Message
		}
		return nil, statusErr
	}
	return body, nil
}
