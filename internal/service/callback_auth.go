package service

import "crypto/subtle"

// CallbackAuthenticator checks the shared secret the issuance service echoes
// back in the api-key header of every callback.
type CallbackAuthenticator struct {
	apiKey []byte
}

func NewCallbackAuthenticator(apiKey string) *CallbackAuthenticator {
	return &CallbackAuthenticator{apiKey: []byte(apiKey)}
}

// Authenticate reports whether presented equals the configured key. An empty
// key on either side never authenticates.
func (a *CallbackAuthenticator) Authenticate(presented string) bool {
	if len(a.apiKey) == 0 || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare(a.apiKey, []byte(presented)) == 1
}
