package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Keep unit tests fast; bounds stay realistic enough for Verify.
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	enc, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash prefix: %q", enc)
	}

	ok, err := cfg.Verify(enc, "correct horse battery")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}

	ok, err = cfg.Verify(enc, "wrong password")
	if err != nil {
		t.Fatalf("Verify mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerify_RejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	cases := []string{
		"",
		"not a hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaA",
	}
	for _, enc := range cases {
		if _, err := cfg.Verify(enc, "whatever"); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("hash %q: expected ErrInvalidHash, got %v", enc, err)
		}
	}
}

func TestVerify_RejectsOversizedParams(t *testing.T) {
	t.Parallel()

	big := DefaultConfig()
	big.Params.MemoryKiB = 64 * 1024
	big.Params.Iterations = 1
	big.Params.Parallelism = 1

	enc, err := big.Hash("some long password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	small := testConfig()
	small.Params.MemoryKiB = 8 * 1024

	if _, err := small.Verify(enc, "some long password"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash for params beyond bounds, got %v", err)
	}
}

func TestValidate_Policy(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if err := cfg.Validate("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := cfg.Validate(strings.Repeat("x", cfg.Policy.MaxLength+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if err := cfg.Validate("perfectly fine"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Policy.RejectVeryWeak = true
	if err := cfg.Validate("11111111"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}
