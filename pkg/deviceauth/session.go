package deviceauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// AccessTokenTTL and RefreshTokenTTL bound the self-issued session
// JWTs. The refresh token's TTL is also the DeviceSession's lifetime.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// Claims are the claims embedded in a self-issued access or refresh
// token JWT.
type Claims struct {
	Subject string `json:"sub"`
	JTI     string `json:"jti"`
	Kind    string `json:"kind"` // "access" or "refresh"
}

// TokenManager issues and validates self-signed session JWTs using
// HMAC-SHA256, generalized from a single-purpose session token to a
// two-token (access/refresh) pair keyed by kind.
type TokenManager struct {
	signingKey []byte
}

// NewTokenManager creates a token manager. The secret must be at
// least 32 bytes.
func NewTokenManager(secret string) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenManager{signingKey: []byte(secret)}, nil
}

// GenerateDevSecret generates a random 32-byte hex-encoded secret for
// dev mode.
func GenerateDevSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// IssuePair mints an access/refresh token pair for userID, returning
// the refresh token's jti so the caller can record it on the
// DeviceSession that owns this device.
func (tm *TokenManager) IssuePair(userID string) (access, refresh, refreshJTI string, err error) {
	access, err = tm.issue(Claims{Subject: userID, JTI: uuid.NewString(), Kind: "access"}, AccessTokenTTL)
	if err != nil {
		return "", "", "", err
	}
	refreshJTI = uuid.NewString()
	refresh, err = tm.issue(Claims{Subject: userID, JTI: refreshJTI, Kind: "refresh"}, RefreshTokenTTL)
	if err != nil {
		return "", "", "", err
	}
	return access, refresh, refreshJTI, nil
}

func (tm *TokenManager) issue(claims Claims, maxAge time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: tm.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:   claims.Subject,
		ID:        claims.JTI,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(maxAge)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    "podex-coordinator",
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Validate verifies the JWT signature and expiry and returns its
// claims. It does not check the JTI blacklist; callers combine
// Validate with a Blacklist lookup.
func (tm *TokenManager) Validate(raw string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(tm.signingKey, &registered, &custom); err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: "podex-coordinator",
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	return &custom, nil
}
