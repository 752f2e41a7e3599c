// Package bearer encodes and decodes Coterie's opaque bearer tokens.
//
// A token is a fixed byte layout, not a claims container:
//
//	version (1 byte) || session id (16-byte UUID) || secret (32 bytes)
//
// base64 raw-URL encoded. Unpack is pure: it never touches storage, so
// resolution can reject malformed tokens before any lookup happens.
package bearer

import (
	"encoding/base64"

	"github.com/google/uuid"
)

const (
	// Version is the current token layout version byte.
	Version byte = 0x01

	// SecretLen is the fixed secret length in bytes.
	SecretLen = 32

	packedLen = 1 + 16 + SecretLen
)

// Mint produces an opaque bearer token for a session id and its plaintext secret.
// The secret must be exactly SecretLen bytes.
func Mint(sessionID uuid.UUID, secret []byte) (string, error) {
	if len(secret) != SecretLen {
		return "", ErrMalformedToken
	}

	packed := make([]byte, packedLen)
	packed[0] = Version
	copy(packed[1:17], sessionID[:])
	copy(packed[17:], secret)

	return base64.RawURLEncoding.EncodeToString(packed), nil
}

// Unpack decodes a bearer token into its session id and secret.
// Fails with ErrMalformedToken on bad encoding, wrong length, or unknown
// version; it cannot distinguish a forged token from a revoked one (that is
// the store's job).
func Unpack(token string) (uuid.UUID, []byte, error) {
	packed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.UUID{}, nil, ErrMalformedToken
	}
	if len(packed) != packedLen {
		return uuid.UUID{}, nil, ErrMalformedToken
	}
	if packed[0] != Version {
		return uuid.UUID{}, nil, ErrMalformedToken
	}

	var sid uuid.UUID
	copy(sid[:], packed[1:17])

	secret := make([]byte, SecretLen)
	copy(secret, packed[17:])

	return sid, secret, nil
}
