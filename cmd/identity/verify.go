package identity

import (
	"context"
	"strings"

	"coterie/cmd/security/password"
)

// Verifier checks login credentials against the user store.
//
// Anti-enumeration contract: unknown handle and wrong password both return
// ErrInvalidCredentials, and the unknown-handle path still performs one
// Argon2id verification against a throwaway hash so response timing does not
// reveal whether the handle exists.
type Verifier struct {
	store Store
	pwCfg password.Config

	dummyHash string
}

// NewVerifier constructs a Verifier. The dummy hash is derived once at
// construction so per-login cost is a single Argon2id evaluation either way.
func NewVerifier(store Store, pwCfg password.Config) (*Verifier, error) {
	if store == nil {
		return nil, OpError{Op: "identity.NewVerifier", Kind: ErrInvalidInput, Msg: "nil store"}
	}

	dummy, err := pwCfg.Hash("coterie-dummy-credential-equalizer")
	if err != nil {
		return nil, err
	}

	return &Verifier{store: store, pwCfg: pwCfg, dummyHash: dummy}, nil
}

// VerifyCredentials resolves handle+password to a User or ErrInvalidCredentials.
func (v *Verifier) VerifyCredentials(ctx context.Context, handle, pw string) (User, error) {
	const op = "identity.VerifyCredentials"

	if v == nil || v.store == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil verifier"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	handle = strings.TrimSpace(handle)
	if handle == "" || pw == "" {
		// Burn the same work as a real verification.
		_, _ = v.pwCfg.Verify(v.dummyHash, pw)
		return User{}, ErrInvalidCredentials
	}

	u, encodedHash, err := v.store.CredentialsByHandle(ctx, handle)
	if err != nil {
		if IsNotFound(err) {
			_, _ = v.pwCfg.Verify(v.dummyHash, pw)
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	ok, err := v.pwCfg.Verify(encodedHash, pw)
	if err != nil {
		// Malformed stored hash: treat as a failed login, never as a hint.
		return User{}, ErrInvalidCredentials
	}
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
