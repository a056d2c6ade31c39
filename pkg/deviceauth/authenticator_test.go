package deviceauth

import (
	"context"
	"fmt"
	"testing"

	"github.com/podexhq/coordinator/pkg/realtime"
)

func TestAuthenticator_UserNamespaceAcceptsAccessToken(t *testing.T) {
	rdb := newTestRedis(t)
	tm, _ := NewTokenManager(GenerateDevSecret())
	bl := NewBlacklist(rdb)
	pods := NewLocalPodStore(rdb)
	auth := NewAuthenticator(tm, bl, pods)

	access, _, _, err := tm.IssuePair("user-1")
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	id, err := auth.Authenticate(realtime.NamespaceSession, access)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", id.UserID)
	}
}

func TestAuthenticator_RejectsRevokedAccessToken(t *testing.T) {
	rdb := newTestRedis(t)
	tm, _ := NewTokenManager(GenerateDevSecret())
	bl := NewBlacklist(rdb)
	pods := NewLocalPodStore(rdb)
	auth := NewAuthenticator(tm, bl, pods)
	ctx := context.Background()

	access, _, _, _ := tm.IssuePair("user-1")
	claims, err := tm.Validate(access)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := bl.Revoke(ctx, claims.JTI, 0); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	if _, err := auth.Authenticate(realtime.NamespaceTerminal, access); err == nil {
		t.Error("expected a revoked access token to fail authentication")
	}
}

func TestAuthenticator_RejectsRefreshTokenAtHandshake(t *testing.T) {
	rdb := newTestRedis(t)
	tm, _ := NewTokenManager(GenerateDevSecret())
	bl := NewBlacklist(rdb)
	pods := NewLocalPodStore(rdb)
	auth := NewAuthenticator(tm, bl, pods)

	_, refresh, _, _ := tm.IssuePair("user-1")
	if _, err := auth.Authenticate(realtime.NamespaceSession, refresh); err == nil {
		t.Error("expected a refresh token to be rejected at handshake auth")
	}
}

func TestAuthenticator_LocalPodNamespaceVerifiesSharedSecret(t *testing.T) {
	rdb := newTestRedis(t)
	tm, _ := NewTokenManager(GenerateDevSecret())
	bl := NewBlacklist(rdb)
	pods := NewLocalPodStore(rdb)
	auth := NewAuthenticator(tm, bl, pods)
	ctx := context.Background()

	pod, raw, err := pods.Enroll(ctx, "user-1", "dev laptop")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	id, err := auth.Authenticate(realtime.NamespaceLocalPod, fmt.Sprintf("%s.%s", pod.ID, raw))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.PodID != pod.ID || id.UserID != "user-1" {
		t.Errorf("identity = %+v", id)
	}
}

func TestAuthenticator_LocalPodNamespaceRejectsMalformedCredential(t *testing.T) {
	rdb := newTestRedis(t)
	tm, _ := NewTokenManager(GenerateDevSecret())
	bl := NewBlacklist(rdb)
	pods := NewLocalPodStore(rdb)
	auth := NewAuthenticator(tm, bl, pods)

	if _, err := auth.Authenticate(realtime.NamespaceLocalPod, "no-dot-here"); err == nil {
		t.Error("expected a credential with no pod id separator to fail")
	}
}
