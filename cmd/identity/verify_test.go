package identity

import (
	"context"
	"errors"
	"testing"

	"coterie/cmd/security/password"
)

func testPWConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestVerifyCredentials_UniformFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(testPWConfig())

	_, err := store.CreateUser(ctx, CreateUserInput{
		Handle:      "alice",
		DisplayName: "Alice",
		Password:    "a very fine password",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	v, err := NewVerifier(store, testPWConfig())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	// Wrong password for a known handle and any password for an unknown handle
	// must be the identical error value.
	_, errKnown := v.VerifyCredentials(ctx, "alice", "wrong password")
	_, errUnknown := v.VerifyCredentials(ctx, "nobody", "wrong password")

	if !errors.Is(errKnown, ErrInvalidCredentials) {
		t.Fatalf("known handle, wrong password: expected ErrInvalidCredentials, got %v", errKnown)
	}
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown handle: expected ErrInvalidCredentials, got %v", errUnknown)
	}
}

func TestVerifyCredentials_Success(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(testPWConfig())

	created, err := store.CreateUser(ctx, CreateUserInput{
		Handle:      "bob",
		DisplayName: "Bob",
		Password:    "another fine password",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	v, err := NewVerifier(store, testPWConfig())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	u, err := v.VerifyCredentials(ctx, "BOB", "another fine password")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if u.ID != created.ID {
		t.Fatalf("resolved wrong user: got %s want %s", u.ID, created.ID)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(testPWConfig())

	cases := []struct {
		name string
		in   CreateUserInput
	}{
		{"empty handle", CreateUserInput{Handle: "", DisplayName: "X", Password: "long enough pw"}},
		{"bad handle chars", CreateUserInput{Handle: "no spaces!", DisplayName: "X", Password: "long enough pw"}},
		{"padded display name", CreateUserInput{Handle: "ok_handle", DisplayName: " X ", Password: "long enough pw"}},
		{"short password", CreateUserInput{Handle: "ok_handle", DisplayName: "X", Password: "short"}},
	}
	for _, tc := range cases {
		if _, err := store.CreateUser(ctx, tc.in); !IsInvalidInput(err) {
			t.Errorf("%s: expected invalid input, got %v", tc.name, err)
		}
	}
}

func TestCreateUser_HandleConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(testPWConfig())

	if _, err := store.CreateUser(ctx, CreateUserInput{Handle: "carol", DisplayName: "Carol", Password: "long enough pw"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Case-insensitive uniqueness.
	_, err := store.CreateUser(ctx, CreateUserInput{Handle: "Carol", DisplayName: "Carol 2", Password: "long enough pw"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
