package auth

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/security/password"
)

// ChangePassword verifica el password actual, guarda el nuevo y revoca los demás
// AuthTokens del usuario. Las sesiones web de otros dispositivos caen con su token.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string, meta RequestMeta) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.account"),
		logger.Op("ChangePassword"),
		logger.UserID(userID),
	)

	if rl := s.checkLimit(ctx, "password_change", "password_change_user_"+userID, s.cfg.PasswordChangeLimit, userID, meta); rl != nil {
		return rl
	}

	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !password.Verify(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	policy := password.Policy{MinLength: s.cfg.MinPasswordLength}
	if err := policy.Validate(next); err != nil {
		return fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	h, err := password.Hash(s.cfg.PasswordParams, next)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, h); err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}

	// sobrevive el token del request: el bearer o, si no vino, el de la sesión
	var keep string
	if meta.BearerToken != "" {
		if t, err := s.authTokens.GetByHash(ctx, tokenHash(meta.BearerToken)); err == nil && t.UserID == userID {
			keep = t.ID
		}
	}
	if keep == "" {
		t, err := s.sessionToken(ctx, meta.SessionID)
		if err != nil {
			return err
		}
		if t != nil && t.UserID == userID {
			keep = t.ID
		}
	}
	n, err := s.authTokens.DeleteByUser(ctx, userID, keep)
	if err != nil {
		return fmt.Errorf("auth: revoke tokens: %w", err)
	}

	s.record(ctx, userID, repository.EventPasswordChanged, meta, map[string]any{"tokens_revoked": n})
	log.Info("password changed", logger.Int64("tokens_revoked", n))
	return nil
}

func (s *Service) ListDevices(ctx context.Context, userID string) ([]repository.TrustedDevice, error) {
	return s.devices.List(ctx, userID)
}

// RevokeDevice borra un dispositivo de confianza del usuario.
func (s *Service) RevokeDevice(ctx context.Context, userID, deviceID string, meta RequestMeta) error {
	if err := s.devices.Revoke(ctx, userID, deviceID); err != nil {
		return err
	}
	s.record(ctx, userID, repository.EventTrustedDeviceRemoved, meta, map[string]any{"device_id": deviceID})
	return nil
}

// RevokeAllDevices borra todos los dispositivos del usuario y la cookie del actual.
func (s *Service) RevokeAllDevices(ctx context.Context, userID string, meta RequestMeta) (int64, Effects, error) {
	n, err := s.devices.RevokeAll(ctx, userID)
	if err != nil {
		return 0, Effects{}, err
	}
	if n > 0 {
		s.record(ctx, userID, repository.EventTrustedDeviceRemoved, meta, map[string]any{"all": true, "count": n})
	}
	var eff Effects
	eff.addCookie(s.cfg.Cookies.Deletion(s.cfg.DeviceCookie, meta.Secure))
	return n, eff, nil
}
