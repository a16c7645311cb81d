// File: internal/funnel/password.go

package funnel

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// DefaultPasswordLength is used when no length is configured.
	DefaultPasswordLength = 12

	// minPasswordLength is the floor below which requested lengths are
	// clamped. Four mandatory character classes need room plus slack.
	minPasswordLength = 8
)

// GeneratePassword creates a password adhering to common complexity rules
// using cryptographically secure RNG (crypto/rand). The result always
// contains at least one lowercase letter, one uppercase letter, one digit
// and one symbol. Ambiguous characters (l, I, O, 0, 1) are excluded so the
// operator can retype the password from the journal without guessing.
func GeneratePassword(length int) (string, error) {
	const lowerChars = "abcdefghijkmnopqrstuvwxyz"
	const upperChars = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	const numberChars = "23456789"
	const symbolChars = "!@#$%^&*()_+-="

	if length <= 0 {
		length = DefaultPasswordLength
	}
	if length < minPasswordLength {
		length = minPasswordLength
	}

	var password []byte
	var availableChars = lowerChars + upperChars + numberChars + symbolChars

	// Helper function to get a cryptographically secure random character from a charset.
	cryptoRandChar := func(charset string) (byte, error) {
		if len(charset) == 0 {
			return 0, fmt.Errorf("internal error: empty charset for password generation")
		}
		max := big.NewInt(int64(len(charset)))
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// Failure in the underlying OS entropy source.
			return 0, fmt.Errorf("crypto/rand failure: %w", err)
		}
		return charset[n.Int64()], nil
	}

	// Ensure mandatory character types are present.
	mandatorySets := []string{upperChars, numberChars, symbolChars, lowerChars}
	for _, charset := range mandatorySets {
		char, err := cryptoRandChar(charset)
		if err != nil {
			return "", err
		}
		password = append(password, char)
	}

	// Fill the rest of the password up to the requested length.
	for len(password) < length {
		char, err := cryptoRandChar(availableChars)
		if err != nil {
			return "", err
		}
		password = append(password, char)
	}

	// Secure shuffle (Fisher-Yates) to ensure mandatory characters aren't predictably located.
	for i := len(password) - 1; i > 0; i-- {
		max := big.NewInt(int64(i + 1))
		jBig, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure during shuffle: %w", err)
		}
		j := jBig.Int64()
		password[i], password[j] = password[j], password[i]
	}

	return string(password), nil
}
