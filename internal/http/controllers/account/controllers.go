// Package account contiene los controllers de cuenta: password, dispositivos de
// confianza y API tokens.
package account

import (
	"context"

	"github.com/dropDatabas3/cinelog/internal/auth"
	"github.com/dropDatabas3/cinelog/internal/domain/repository"
)

// Service es lo que estos controllers consumen de auth.Service.
type Service interface {
	ChangePassword(ctx context.Context, userID, current, next string, meta auth.RequestMeta) error

	ListDevices(ctx context.Context, userID string) ([]repository.TrustedDevice, error)
	RevokeDevice(ctx context.Context, userID, deviceID string, meta auth.RequestMeta) error
	RevokeAllDevices(ctx context.Context, userID string, meta auth.RequestMeta) (int64, auth.Effects, error)

	CreateAPIToken(ctx context.Context, userID, label string) (auth.CreatedAPIToken, error)
	ListAPITokens(ctx context.Context, userID string) ([]repository.APIToken, error)
	DeleteAPIToken(ctx context.Context, userID, id string) error
}

// Controllers agrupa los controllers de cuenta.
type Controllers struct {
	Password *PasswordController
	Devices  *DevicesController
	Tokens   *TokensController
}

func NewControllers(s Service) *Controllers {
	return &Controllers{
		Password: &PasswordController{service: s},
		Devices:  &DevicesController{service: s},
		Tokens:   &TokensController{service: s},
	}
}
