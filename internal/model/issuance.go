package model

import "encoding/json"

// IssuanceRequest is the payload sent to createIssuanceRequest.
type IssuanceRequest struct {
	IncludeQRCode bool              `json:"includeQRCode"`
	Callback      Callback          `json:"callback"`
	Authority     string            `json:"authority"`
	Registration  Registration      `json:"registration"`
	Type          string            `json:"type"`
	Manifest      string            `json:"manifest"`
	Pin           *Pin              `json:"pin,omitempty"`
	Claims        map[string]string `json:"claims,omitempty"`
}

type Callback struct {
	URL     string            `json:"url"`
	State   string            `json:"state"`
	Headers map[string]string `json:"headers,omitempty"`
}

type Registration struct {
	ClientName string `json:"clientName"`
	Purpose    string `json:"purpose,omitempty"`
}

type Pin struct {
	Value  string `json:"value"`
	Length int    `json:"length"`
}

// IssuanceResponse keeps every field of the upstream response verbatim so it
// can be passed through to the UI.
type IssuanceResponse map[string]json.RawMessage

// RequestID returns the upstream request id, or "" when absent.
func (r IssuanceResponse) RequestID() string {
	var id string
	if raw, ok := r["requestId"]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	return id
}

// CallbackEvent is the body the issuance service posts to the callback URL.
type CallbackEvent struct {
	RequestID     string         `json:"requestId"`
	RequestStatus RequestStatus  `json:"requestStatus"`
	State         string         `json:"state"`
	Error         *CallbackError `json:"error,omitempty"`
}

type CallbackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Detail returns the upstream error message, if any.
func (e CallbackEvent) Detail() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Message
}
