package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const resetTokenBytes = 32

// NewOTP returns a uniformly random numeric code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", fmt.Errorf("otp length %d out of range", digits)
	}

	// Bytes at or above 250 are rejected so each digit stays unbiased.
	code := make([]byte, 0, digits)
	buf := make([]byte, digits*2)
	for len(code) < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == digits {
				break
			}
		}
	}
	return string(code), nil
}

// NewResetToken returns an opaque base64url token backed by 32 random bytes.
func NewResetToken() (string, error) {
	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashSecret is the digest stored in place of codes and tokens.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// NormalizeIdentifier canonicalises an email or phone for ledger keys.
// Emails compare case-insensitively, phones byte-exact after trimming.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier)
	}
	return identifier
}
