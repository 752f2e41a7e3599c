package session

import (
	"crypto/rand"

	"coterie/cmd/internal/auth/bearer"
	"coterie/cmd/security/token"
)

// newSecret generates fresh session secret material and its storage hash.
// The plaintext is handed to the client exactly once; only hashHex is
// persisted.
func newSecret() (plain []byte, hashHex string, err error) {
	plain = make([]byte, bearer.SecretLen)
	if _, err = rand.Read(plain); err != nil {
		return nil, "", err
	}

	hashHex = token.HashSecretHex(plain) // 64 hex chars

	return plain, hashHex, nil
}
