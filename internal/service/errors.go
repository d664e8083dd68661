package service

import "errors"

var (
	ErrAuthFailure        = errors.New("access token acquisition failed")
	ErrUnauthorized       = errors.New("api-key wrong or missing")
	ErrUnknownCorrelation = errors.New("unknown state")
	ErrUnsupportedStatus  = errors.New("unsupported requestStatus")
	ErrStatusRegression   = errors.New("status transition goes backwards")
	ErrUpstream           = errors.New("upstream request failed")
)
