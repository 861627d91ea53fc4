package orders

import (
	"crypto/rand"
	"math/big"
)

const (
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referenceLength   = 10
)

// NewReference returns a random human-facing order reference. It is also the
// transaction reference sent to the gateway.
func NewReference() (string, error) {
	max := big.NewInt(int64(len(referenceAlphabet)))
	b := make([]byte, referenceLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = referenceAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidReference reports whether s could have come from NewReference.
func ValidReference(s string) bool {
	if len(s) != referenceLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
