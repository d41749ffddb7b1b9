// Package mfa contains DTOs for TOTP and recovery code endpoints.
package mfa

// EnrollTOTPResponse is the response for POST /api/mfa/totp/enroll
type EnrollTOTPResponse struct {
	SecretBase32 string `json:"secret_base32"`
	OTPAuthURL   string `json:"otpauth_url"`
}

// ConfirmTOTPRequest is the request for POST /api/mfa/totp/confirm
type ConfirmTOTPRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTPResponse is the response for POST /api/mfa/totp/confirm
type ConfirmTOTPResponse struct {
	Enabled       bool     `json:"enabled"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// DisableTOTPRequest is the request for POST /api/mfa/totp/disable
type DisableTOTPRequest struct {
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
	Recovery string `json:"recovery,omitempty"`
}

// DisableTOTPResponse is the response for POST /api/mfa/totp/disable
type DisableTOTPResponse struct {
	Disabled bool `json:"disabled"`
}

// RecoveryCodesResponse is the response for POST /api/mfa/recovery/regenerate
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// StatusResponse is the response for GET /api/mfa/recovery
type StatusResponse struct {
	TOTPEnabled            bool `json:"totp_enabled"`
	RemainingRecoveryCodes int  `json:"remaining_recovery_codes"`
}
