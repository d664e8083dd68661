package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// MaxPinLength is the longest pin the issuance API accepts.
const MaxPinLength = 21

// GenerateRandomString produces a cryptographically random base64url string of n bytes.
func GenerateRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCorrelationID returns a 256-bit random identifier.
func GenerateCorrelationID() (string, error) {
	return GenerateRandomString(32)
}

// GeneratePinCode draws a value uniformly from [0, 10^length) and renders it
// zero-padded to exactly length digits.
func GeneratePinCode(length int) (string, error) {
	if length < 1 || length > MaxPinLength {
		return "", fmt.Errorf("pin length %d out of range 1..%d", length, MaxPinLength)
	}
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	digits := n.String()
	return strings.Repeat("0", length-len(digits)) + digits, nil
}
