// Package auth contains DTOs for login, logout and session endpoints.
package auth

import "time"

// LoginRequest is the request for POST /api/auth/login
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	TOTPCode     string `json:"totp_code,omitempty"`
	RecoveryCode string `json:"recovery_code,omitempty"`
	RememberMe   bool   `json:"remember_me,omitempty"`
	TrustDevice  bool   `json:"trust_device,omitempty"`
	// Client es "web" (cookies) o "api" (token en el body).
	Client      string `json:"client,omitempty"`
	DeviceLabel string `json:"device_label,omitempty"`
}

// LoginResponse is the response for POST /api/auth/login
type LoginResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token,omitempty"`
	TokenType string    `json:"token_type,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`

	TrustedDevice          bool `json:"trusted_device"`
	UsedRecoveryCode       bool `json:"used_recovery_code,omitempty"`
	RemainingRecoveryCodes *int `json:"remaining_recovery_codes,omitempty"`
}

// MeResponse is the response for GET /api/auth/me
type MeResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	IsAdmin     bool      `json:"is_admin"`
	TOTPEnabled bool      `json:"totp_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}
