// Package auth contiene los controllers de login, sesión y segundo factor.
package auth

import (
	"context"

	"github.com/dropDatabas3/cinelog/internal/auth"
	"github.com/dropDatabas3/cinelog/internal/domain/repository"
)

// LoginService es lo que LoginController y SessionController consumen de auth.Service.
type LoginService interface {
	Login(ctx context.Context, in auth.LoginInput, meta auth.RequestMeta) (auth.Outcome, error)
	Logout(ctx context.Context, meta auth.RequestMeta) (auth.Effects, error)
	CurrentUser(ctx context.Context, meta auth.RequestMeta) (*repository.User, error)
}

// MFAService es lo que MFAController consume de auth.Service.
type MFAService interface {
	EnrollTOTP(ctx context.Context, userID string, meta auth.RequestMeta) (auth.Enrollment, error)
	ConfirmTOTP(ctx context.Context, userID, code string, meta auth.RequestMeta) ([]string, error)
	DisableTOTP(ctx context.Context, userID string, in auth.DisableTOTPInput, meta auth.RequestMeta) error
	RegenerateRecoveryCodes(ctx context.Context, userID string) ([]string, error)
	MFAStatus(ctx context.Context, userID string) (auth.MFAStatus, error)
}

// Controllers agrupa los controllers del dominio auth.
type Controllers struct {
	Login   *LoginController
	Session *SessionController
	MFA     *MFAController
}

// NewControllers crea el agregador. *auth.Service implementa ambas interfaces.
func NewControllers(login LoginService, mfa MFAService) *Controllers {
	return &Controllers{
		Login:   NewLoginController(login),
		Session: NewSessionController(login),
		MFA:     NewMFAController(mfa),
	}
}
