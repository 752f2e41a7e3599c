package invite

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newService(t *testing.T) *Service {
	t.Helper()

	svc, err := NewService(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCreateAndConsume(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	inv, code, err := svc.CreateInvite(ctx, CreateInput{Now: now})
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if code == "" {
		t.Fatalf("expected a plain code")
	}
	if inv.MaxUses != 1 {
		t.Fatalf("default MaxUses = %d, want 1", inv.MaxUses)
	}

	ok, _, err := svc.ValidateCode(ctx, code, now)
	if err != nil || !ok {
		t.Fatalf("ValidateCode: ok=%v err=%v", ok, err)
	}

	got, err := svc.ConsumeCode(ctx, code, "user-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ConsumeCode: %v", err)
	}
	if got.UsedCount != 1 {
		t.Fatalf("UsedCount = %d, want 1", got.UsedCount)
	}
	if got.ConsumedBy == nil || *got.ConsumedBy != "user-1" {
		t.Fatalf("ConsumedBy = %v, want user-1", got.ConsumedBy)
	}

	// Single-use by default: the second consumption fails.
	if _, err := svc.ConsumeCode(ctx, code, "user-2", now.Add(2*time.Minute)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second consume: expected ErrNotActive, got %v", err)
	}
}

func TestConsume_UnknownCode(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	if _, err := svc.ConsumeCode(context.Background(), "no-such-code", "user-1", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidate_UnknownCodeIsJustInvalid(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ok, _, err := svc.ValidateCode(context.Background(), "no-such-code", time.Now())
	if err != nil {
		t.Fatalf("ValidateCode: %v", err)
	}
	if ok {
		t.Fatalf("unknown code should be invalid")
	}
}

func TestConsume_Expired(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, code, err := svc.CreateInvite(ctx, CreateInput{TTL: time.Hour, Now: now})
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	if _, err := svc.ConsumeCode(ctx, code, "user-1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestConsume_MultiUseBudget(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, code, err := svc.CreateInvite(ctx, CreateInput{MaxUses: 3, Now: now})
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.ConsumeCode(ctx, code, "user-1", now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
	}
	if _, err := svc.ConsumeCode(ctx, code, "user-1", now.Add(time.Hour)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("exhausted: expected ErrNotActive, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	inv, code, err := svc.CreateInvite(ctx, CreateInput{Now: now})
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	revoked, err := svc.RevokeInvite(ctx, inv.ID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("RevokeInvite: %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Fatalf("RevokedAt not set")
	}

	if _, err := svc.ConsumeCode(ctx, code, "user-1", now.Add(2*time.Minute)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("revoked: expected ErrNotActive, got %v", err)
	}

	// Repeat revocation keeps the original timestamp.
	again, err := svc.RevokeInvite(ctx, inv.ID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second RevokeInvite: %v", err)
	}
	if !again.RevokedAt.Equal(*revoked.RevokedAt) {
		t.Fatalf("revocation time moved: %s vs %s", again.RevokedAt, revoked.RevokedAt)
	}
}
