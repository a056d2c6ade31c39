package deviceauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

// userCodeAlphabet excludes visually confusable characters (0, O, I, 1, L).
const userCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateDeviceCode() (string, error) {
	b := make([]byte, 40)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateUserCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	code := make([]byte, 8)
	for i, v := range b {
		code[i] = userCodeAlphabet[int(v)%len(userCodeAlphabet)]
	}
	return fmt.Sprintf("%s-%s", code[:4], code[4:]), nil
}

// CodeStore issues and resolves device codes against Redis. Device
// codes and their user_code pointer share a single TTL: neither
// outlives the flow.
type CodeStore struct {
	rdb *redis.Client
}

func NewCodeStore(rdb *redis.Client) *CodeStore {
	return &CodeStore{rdb: rdb}
}

// RequestCode issues a fresh DeviceCode for the given client metadata.
func (s *CodeStore) RequestCode(ctx context.Context, info DeviceInfo) (DeviceCode, error) {
	deviceCode, err := generateDeviceCode()
	if err != nil {
		return DeviceCode{}, coreerrors.Fatal(err, "generating device code")
	}
	userCode, err := generateUserCode()
	if err != nil {
		return DeviceCode{}, coreerrors.Fatal(err, "generating user code")
	}

	dc := DeviceCode{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		Status:     DeviceCodePending,
		ExpiresAt:  time.Now().Add(DeviceCodeTTL),
		DeviceType: info.DeviceType,
		DeviceName: info.DeviceName,
	}

	if err := s.put(ctx, dc); err != nil {
		return DeviceCode{}, err
	}
	if err := s.rdb.Set(ctx, userCodeKey(userCode), deviceCode, DeviceCodeTTL).Err(); err != nil {
		return DeviceCode{}, coreerrors.Transport(err, "indexing user code %s", userCode)
	}
	return dc, nil
}

func (s *CodeStore) put(ctx context.Context, dc DeviceCode) error {
	b, err := json.Marshal(dc)
	if err != nil {
		return coreerrors.Validation("serializing device code: %v", err)
	}
	ttl := time.Until(dc.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.rdb.Set(ctx, deviceCodeKey(dc.DeviceCode), b, ttl).Err(); err != nil {
		return coreerrors.Transport(err, "persisting device code")
	}
	return nil
}

func (s *CodeStore) get(ctx context.Context, deviceCode string) (DeviceCode, bool, error) {
	raw, err := s.rdb.Get(ctx, deviceCodeKey(deviceCode)).Bytes()
	if err == redis.Nil {
		return DeviceCode{}, false, nil
	}
	if err != nil {
		return DeviceCode{}, false, coreerrors.Transport(err, "fetching device code")
	}
	var dc DeviceCode
	if err := json.Unmarshal(raw, &dc); err != nil {
		return DeviceCode{}, false, coreerrors.Fatal(err, "corrupt device code record")
	}
	return dc, true, nil
}

// AuthorizeByUserCode resolves the user_code a human typed in the
// browser to its device_code and flips status to authorized or denied.
func (s *CodeStore) AuthorizeByUserCode(ctx context.Context, userCode, userID string, approve bool) error {
	deviceCode, err := s.rdb.Get(ctx, userCodeKey(userCode)).Result()
	if err == redis.Nil {
		return coreerrors.NotFound("user code %s not found or expired", userCode)
	}
	if err != nil {
		return coreerrors.Transport(err, "resolving user code %s", userCode)
	}

	dc, ok, err := s.get(ctx, deviceCode)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.NotFound("device code for user code %s expired", userCode)
	}
	if dc.Status != DeviceCodePending {
		return coreerrors.Conflict("device code already %s", dc.Status)
	}

	if approve {
		dc.Status = DeviceCodeAuthorized
		dc.UserID = userID
		dc.AuthorizedAt = time.Now()
	} else {
		dc.Status = DeviceCodeDenied
	}
	return s.put(ctx, dc)
}

// DeviceAuthResponse formats a freshly issued DeviceCode as the RFC
// 8628 wire response, reusing x/oauth2's own device-grant response
// struct for its field tags rather than hand-rolling a duplicate.
func DeviceAuthResponse(dc DeviceCode, verificationURI string) oauth2.DeviceAuthResponse {
	return oauth2.DeviceAuthResponse{
		DeviceCode:      dc.DeviceCode,
		UserCode:        dc.UserCode,
		VerificationURI: verificationURI,
		Expiry:          dc.ExpiresAt,
		Interval:        int64(PollInterval / time.Second),
	}
}

// Poll result codes per RFC 8628.
const (
	ErrAuthorizationPending = "authorization_pending"
	ErrSlowDown             = "slow_down"
	ErrExpiredToken         = "expired_token"
	ErrAccessDenied         = "access_denied"
	ErrInvalidGrant         = "invalid_grant"
)

// PollError is returned by PollToken while the flow has not yet
// produced tokens, or has already been consumed.
type PollError struct {
	Code string
}

func (e *PollError) Error() string { return e.Code }

// PollToken resolves a device_code to its current state, returning a
// PollError naming the RFC 8628 error code until the flow completes.
// On success, it marks the code as consumed (IssuedTokens) so a
// repeat poll with the same device_code returns invalid_grant, per
// the round-trip law.
func (s *CodeStore) PollToken(ctx context.Context, deviceCode string) (DeviceCode, error) {
	dc, ok, err := s.get(ctx, deviceCode)
	if err != nil {
		return DeviceCode{}, err
	}
	if !ok {
		return DeviceCode{}, &PollError{Code: ErrExpiredToken}
	}
	if time.Now().After(dc.ExpiresAt) {
		return DeviceCode{}, &PollError{Code: ErrExpiredToken}
	}
	if dc.IssuedTokens {
		return DeviceCode{}, &PollError{Code: ErrInvalidGrant}
	}

	switch dc.Status {
	case DeviceCodePending:
		return DeviceCode{}, &PollError{Code: ErrAuthorizationPending}
	case DeviceCodeDenied:
		return DeviceCode{}, &PollError{Code: ErrAccessDenied}
	case DeviceCodeExpired:
		return DeviceCode{}, &PollError{Code: ErrExpiredToken}
	}

	dc.IssuedTokens = true
	if err := s.put(ctx, dc); err != nil {
		return DeviceCode{}, err
	}
	return dc, nil
}
