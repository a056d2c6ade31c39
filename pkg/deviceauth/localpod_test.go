package deviceauth

import (
	"context"
	"testing"
)

func TestLocalPodStore_EnrollAndVerify(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewLocalPodStore(rdb)
	ctx := context.Background()

	pod, raw, err := store.Enroll(ctx, "user-1", "dev laptop")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if raw == "" {
		t.Fatal("expected a non-empty raw token")
	}

	verified, err := store.Verify(ctx, pod.ID, raw)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verified.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", verified.UserID)
	}

	if _, err := store.Verify(ctx, pod.ID, raw+"x"); err == nil {
		t.Error("expected a wrong token to fail verification")
	}
}

func TestLocalPodStore_RevokeInvalidatesToken(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewLocalPodStore(rdb)
	ctx := context.Background()

	pod, raw, err := store.Enroll(ctx, "user-1", "dev laptop")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if err := store.Revoke(ctx, pod.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := store.Verify(ctx, pod.ID, raw); err == nil {
		t.Error("expected verification to fail after revocation")
	}
}
