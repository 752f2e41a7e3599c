package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the secret-hashing HMAC key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "COTERIE_TOKEN_HMAC_KEY"
)

// HashSHA256Hex returns a SHA-256 hex digest of b.
func HashSHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of b using key.
func HashHMACSHA256Hex(b, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write(b)
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// Note: This does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	return raw != ""
}

// HashSecretHex hashes session secrets and invite codes for server-side storage.
// Behavior:
// - If COTERIE_TOKEN_HMAC_KEY is set (non-empty), uses HMAC-SHA256(secret, key).
// - Otherwise falls back to SHA-256(secret) for dev/back-compat.
func HashSecretHex(secret []byte) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return HashSHA256Hex(secret)
	}
	return HashHMACSHA256Hex(secret, []byte(key))
}

// HashSecretHexRequireHMAC hashes secrets in enforced-HMAC mode.
// It fails if the key is missing or too short.
func HashSecretHexRequireHMAC(secret []byte, minBytes int) (string, error) {
	key, err := HMACKeyFromEnv(minBytes)
	if err != nil {
		return "", err
	}
	return HashHMACSHA256Hex(secret, key), nil
}

// EqualHex64 compares two expected 64-char hex digests in constant time.
// Rejects if either length != 64 to keep timing stable.
func EqualHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
