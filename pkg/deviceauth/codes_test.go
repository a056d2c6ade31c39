package deviceauth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestCodeStore_DeviceGrantHappyPath(t *testing.T) {
	rdb := newTestRedis(t)
	codes := NewCodeStore(rdb)
	ctx := context.Background()

	dc, err := codes.RequestCode(ctx, DeviceInfo{DeviceType: "cli", DeviceName: "podex CLI"})
	if err != nil {
		t.Fatalf("RequestCode() error = %v", err)
	}
	if dc.DeviceCode == "" || dc.UserCode == "" {
		t.Fatal("expected non-empty device_code and user_code")
	}

	if _, err := codes.PollToken(ctx, dc.DeviceCode); !isPollError(err, ErrAuthorizationPending) {
		t.Fatalf("expected authorization_pending before approval, got %v", err)
	}

	if err := codes.AuthorizeByUserCode(ctx, dc.UserCode, "user-1", true); err != nil {
		t.Fatalf("AuthorizeByUserCode() error = %v", err)
	}

	authorized, err := codes.PollToken(ctx, dc.DeviceCode)
	if err != nil {
		t.Fatalf("PollToken() after approval error = %v", err)
	}
	if authorized.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", authorized.UserID)
	}

	// Second poll with the same device_code must return invalid_grant.
	if _, err := codes.PollToken(ctx, dc.DeviceCode); !isPollError(err, ErrInvalidGrant) {
		t.Fatalf("expected invalid_grant on repeat poll, got %v", err)
	}
}

func TestCodeStore_DeniedFlow(t *testing.T) {
	rdb := newTestRedis(t)
	codes := NewCodeStore(rdb)
	ctx := context.Background()

	dc, err := codes.RequestCode(ctx, DeviceInfo{DeviceType: "cli"})
	if err != nil {
		t.Fatalf("RequestCode() error = %v", err)
	}
	if err := codes.AuthorizeByUserCode(ctx, dc.UserCode, "user-1", false); err != nil {
		t.Fatalf("AuthorizeByUserCode() error = %v", err)
	}
	if _, err := codes.PollToken(ctx, dc.DeviceCode); !isPollError(err, ErrAccessDenied) {
		t.Fatalf("expected access_denied, got %v", err)
	}
}

func TestCodeStore_UnknownDeviceCodeIsExpired(t *testing.T) {
	rdb := newTestRedis(t)
	codes := NewCodeStore(rdb)
	if _, err := codes.PollToken(context.Background(), "no-such-code"); !isPollError(err, ErrExpiredToken) {
		t.Fatalf("expected expired_token, got %v", err)
	}
}

func TestCodeStore_AuthorizeUnknownUserCodeFails(t *testing.T) {
	rdb := newTestRedis(t)
	codes := NewCodeStore(rdb)
	if err := codes.AuthorizeByUserCode(context.Background(), "ZZZZ-ZZZZ", "user-1", true); err == nil {
		t.Error("expected authorizing an unknown user_code to fail")
	}
}

func TestDeviceAuthResponse_FormatsWireFields(t *testing.T) {
	rdb := newTestRedis(t)
	codes := NewCodeStore(rdb)
	dc, err := codes.RequestCode(context.Background(), DeviceInfo{DeviceType: "cli"})
	if err != nil {
		t.Fatalf("RequestCode() error = %v", err)
	}

	resp := DeviceAuthResponse(dc, "https://app.podex.dev/device")
	if resp.DeviceCode != dc.DeviceCode || resp.UserCode != dc.UserCode {
		t.Errorf("response = %+v", resp)
	}
	if resp.VerificationURI != "https://app.podex.dev/device" {
		t.Errorf("VerificationURI = %q", resp.VerificationURI)
	}
	if resp.Interval != int64(PollInterval.Seconds()) {
		t.Errorf("Interval = %d, want %d", resp.Interval, int64(PollInterval.Seconds()))
	}
}

func isPollError(err error, code string) bool {
	pe, ok := err.(*PollError)
	return ok && pe.Code == code
}
