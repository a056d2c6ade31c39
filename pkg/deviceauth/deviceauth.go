// Package deviceauth implements the OAuth 2.0 device authorization grant
// (RFC 8628) and the device-session/LocalPod token substrate that backs
// it: self-issued session JWTs, a revocable refresh-token-holder record
// per device, and shared-secret auth for self-hosted pod agents.
package deviceauth

import "time"

// DeviceCodeStatus is the lifecycle state of a pending device code.
type DeviceCodeStatus string

const (
	DeviceCodePending    DeviceCodeStatus = "pending"
	DeviceCodeAuthorized DeviceCodeStatus = "authorized"
	DeviceCodeDenied     DeviceCodeStatus = "denied"
	DeviceCodeExpired    DeviceCodeStatus = "expired"
)

// DeviceCodeTTL is how long an issued device code remains pollable.
const DeviceCodeTTL = 15 * time.Minute

// PollInterval is the RFC 8628 minimum interval between token polls.
const PollInterval = 5 * time.Second

// DeviceCode is the server-side record of a single device-grant flow.
type DeviceCode struct {
	DeviceCode    string           `json:"device_code"`
	UserCode      string           `json:"user_code"`
	Status        DeviceCodeStatus `json:"status"`
	ExpiresAt     time.Time        `json:"expires_at"`
	UserID        string           `json:"user_id,omitempty"`
	AuthorizedAt  time.Time        `json:"authorized_at,omitzero"`
	DeviceType    string           `json:"device_type"`
	DeviceName    string           `json:"device_name,omitempty"`
	IssuedTokens  bool             `json:"issued_tokens"`
}

// DeviceSession is a materialized refresh-token holder: one per
// authorized device, surviving until its refresh token expires or is
// revoked.
type DeviceSession struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	DeviceType      string    `json:"device_type"`
	DeviceName      string    `json:"device_name"`
	RefreshTokenJTI string    `json:"refresh_token_jti"`
	IP              string    `json:"ip,omitempty"`
	UA              string    `json:"ua,omitempty"`
	OS              string    `json:"os,omitempty"`
	Browser         string    `json:"browser,omitempty"`
	GeoCity         string    `json:"geo_city,omitempty"`
	GeoCountry      string    `json:"geo_country,omitempty"`
	LastActiveAt    time.Time `json:"last_active_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsRevoked       bool      `json:"is_revoked"`
	RevokedAt       time.Time `json:"revoked_at,omitzero"`
}

// DeviceInfo is the client metadata captured at authorization time,
// recovered from the device-grant request headers.
type DeviceInfo struct {
	DeviceType string
	DeviceName string
	UA         string
	IP         string
	OS         string
	Browser    string
	GeoCity    string
	GeoCountry string
}

// TokenPair is what poll_device_token returns exactly once per
// completed flow.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}
