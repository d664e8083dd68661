package model

import "encoding/json"

type RequestStatus string

const (
	StatusRequestCreated     RequestStatus = "request_created"
	StatusRequestRetrieved   RequestStatus = "request_retrieved"
	StatusIssuanceSuccessful RequestStatus = "issuance_successful"
	StatusIssuanceError      RequestStatus = "issuance_error"
)

const (
	MessageRequestCreated     = "Waiting for QR code to be scanned"
	MessageRequestRetrieved   = "QR Code is scanned. Waiting for issuance to complete..."
	MessageIssuanceSuccessful = "Credential successfully issued"
)

// Stage orders statuses along the issuance lifecycle. Both terminal
// statuses share the last stage.
func (s RequestStatus) Stage() int {
	switch s {
	case StatusRequestCreated:
		return 0
	case StatusRequestRetrieved:
		return 1
	case StatusIssuanceSuccessful, StatusIssuanceError:
		return 2
	}
	return -1
}

// IsCallbackStatus reports whether the issuance service may send s in a callback.
func (s RequestStatus) IsCallbackStatus() bool {
	switch s {
	case StatusRequestRetrieved, StatusIssuanceSuccessful, StatusIssuanceError:
		return true
	}
	return false
}

// IssuanceSession is the record behind a correlation id. It never holds the pin.
type IssuanceSession struct {
	Status  RequestStatus `json:"status"`
	Message string        `json:"message"`
}

func (s *IssuanceSession) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalIssuanceSession(data []byte) (*IssuanceSession, error) {
	var s IssuanceSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
