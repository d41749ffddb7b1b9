// Package account contains DTOs for password, device, token and audit endpoints.
package account

import (
	"time"

	"github.com/dropDatabas3/cinelog/internal/audit"
)

// ChangePasswordRequest is the request for POST /api/account/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Device is one entry of GET /api/devices
type Device struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Current     bool       `json:"current"`
}

// DeviceListResponse is the response for GET /api/devices
type DeviceListResponse struct {
	Devices []Device `json:"devices"`
}

// RevokeAllResponse is the response for DELETE /api/devices
type RevokeAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// CreateTokenRequest is the request for POST /api/tokens
type CreateTokenRequest struct {
	Label string `json:"label"`
}

// TokenResponse is the response for POST /api/tokens. Token solo viaja en la creación.
type TokenResponse struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenListResponse is the response for GET /api/tokens
type TokenListResponse struct {
	Tokens []TokenResponse `json:"tokens"`
}

// DeleteTokenRequest is the request for DELETE /api/tokens
type DeleteTokenRequest struct {
	ID string `json:"id"`
}

// EventsResponse is the response for GET /api/security/events
type EventsResponse struct {
	Events []audit.Event `json:"events"`
}
