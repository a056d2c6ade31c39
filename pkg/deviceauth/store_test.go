package deviceauth

import (
	"context"
	"testing"
)

func TestSessionStore_CreateListRevoke(t *testing.T) {
	rdb := newTestRedis(t)
	bl := NewBlacklist(rdb)
	store := NewSessionStore(rdb, bl)
	ctx := context.Background()

	ds1, err := store.Create(ctx, "user-1", "jti-1", DeviceInfo{DeviceType: "cli", DeviceName: "CLI A"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ds2, err := store.Create(ctx, "user-1", "jti-2", DeviceInfo{DeviceType: "browser", DeviceName: "Chrome"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sessions, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}

	if err := store.Revoke(ctx, ds1.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	revoked, _, err := store.Get(ctx, ds1.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !revoked.IsRevoked {
		t.Error("expected ds1 to be revoked")
	}

	isRevoked, err := bl.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked() error = %v", err)
	}
	if !isRevoked {
		t.Error("expected jti-1 to be blacklisted after revoking its session")
	}

	still, _, _ := store.Get(ctx, ds2.ID)
	if still.IsRevoked {
		t.Error("did not expect ds2 to be revoked")
	}
}

func TestSessionStore_RevokeAllExceptKeepsCurrent(t *testing.T) {
	rdb := newTestRedis(t)
	bl := NewBlacklist(rdb)
	store := NewSessionStore(rdb, bl)
	ctx := context.Background()

	current, _ := store.Create(ctx, "user-1", "jti-current", DeviceInfo{DeviceType: "browser"})
	other1, _ := store.Create(ctx, "user-1", "jti-other-1", DeviceInfo{DeviceType: "cli"})
	other2, _ := store.Create(ctx, "user-1", "jti-other-2", DeviceInfo{DeviceType: "vscode"})

	n, err := store.RevokeAllExcept(ctx, "user-1", current.ID)
	if err != nil {
		t.Fatalf("RevokeAllExcept() error = %v", err)
	}
	if n != 2 {
		t.Errorf("revoked count = %d, want 2", n)
	}

	keptStill, _, _ := store.Get(ctx, current.ID)
	if keptStill.IsRevoked {
		t.Error("expected the current session to survive revocation")
	}

	for _, id := range []string{other1.ID, other2.ID} {
		ds, _, _ := store.Get(ctx, id)
		if !ds.IsRevoked {
			t.Errorf("expected session %s to be revoked", id)
		}
	}

	for _, jti := range []string{"jti-other-1", "jti-other-2"} {
		revoked, err := bl.IsRevoked(ctx, jti)
		if err != nil {
			t.Fatalf("IsRevoked() error = %v", err)
		}
		if !revoked {
			t.Errorf("expected %s blacklisted", jti)
		}
	}
	revokedCurrent, err := bl.IsRevoked(ctx, "jti-current")
	if err != nil {
		t.Fatalf("IsRevoked() error = %v", err)
	}
	if revokedCurrent {
		t.Error("did not expect the current session's jti to be blacklisted")
	}
}
