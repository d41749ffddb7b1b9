package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/security/password"
	"github.com/dropDatabas3/cinelog/internal/security/totp"
	"github.com/dropDatabas3/cinelog/internal/session"
)

// Enrollment es el secreto pendiente que el usuario carga en su app de TOTP.
type Enrollment struct {
	Secret string
	URL    string
}

// EnrollTOTP genera un secreto nuevo y lo guarda sellado en la sesión hasta que
// ConfirmTOTP lo valide con un código.
func (s *Service) EnrollTOTP(ctx context.Context, userID string, meta RequestMeta) (Enrollment, error) {
	if meta.SessionID == "" {
		return Enrollment{}, ErrSessionRequired
	}
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return Enrollment{}, err
	}
	if u.HasTOTP() {
		return Enrollment{}, ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(s.cfg.TOTPIssuer, u.Email)
	if err != nil {
		return Enrollment{}, fmt.Errorf("auth: %w", err)
	}
	sealed, err := s.box.Seal(key.Secret)
	if err != nil {
		return Enrollment{}, fmt.Errorf("auth: seal totp secret: %w", err)
	}
	if err := s.sessions.Set(ctx, meta.SessionID, session.KeyPendingTOTP, sealed); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Enrollment{}, ErrSessionRequired
		}
		return Enrollment{}, fmt.Errorf("auth: session: %w", err)
	}
	return Enrollment{Secret: key.Secret, URL: key.URL}, nil
}

// ConfirmTOTP activa el secreto pendiente si code es válido y devuelve el primer
// batch de recovery codes.
func (s *Service) ConfirmTOTP(ctx context.Context, userID, code string, meta RequestMeta) ([]string, error) {
	sealed, ok, err := s.sessions.Get(ctx, meta.SessionID, session.KeyPendingTOTP)
	if err != nil {
		return nil, fmt.Errorf("auth: session: %w", err)
	}
	if !ok || sealed == "" {
		return nil, ErrNoPendingEnrollment
	}
	secret, err := s.box.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("auth: open pending totp secret: %w", err)
	}
	if !totp.Validate(secret, code, s.now()) {
		return nil, ErrInvalidTOTPCode
	}

	if err := s.users.SetTOTPSecret(ctx, userID, sealed); err != nil {
		return nil, fmt.Errorf("auth: store totp secret: %w", err)
	}
	if err := s.sessions.Unset(ctx, meta.SessionID, session.KeyPendingTOTP); err != nil {
		logger.From(ctx).Warn("pending totp not cleared", logger.Component("auth.mfa"), logger.Err(err))
	}
	s.record(ctx, userID, repository.EventTOTPEnabled, meta, nil)

	codes, err := s.recovery.Generate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: recovery codes: %w", err)
	}
	return codes, nil
}

// DisableTOTPInput exige password más un segundo factor vigente.
type DisableTOTPInput struct {
	Password     string
	TOTPCode     string
	RecoveryCode string
}

// DisableTOTP borra el secreto, los recovery codes y todos los dispositivos de confianza.
func (s *Service) DisableTOTP(ctx context.Context, userID string, in DisableTOTPInput, meta RequestMeta) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasTOTP() {
		return ErrTOTPNotEnabled
	}
	if !password.Verify(in.Password, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := s.verifySecondFactor(ctx, u, in.TOTPCode, in.RecoveryCode, "disable_totp", meta); err != nil {
		return err
	}

	if err := s.users.ClearTOTPSecret(ctx, userID); err != nil {
		return fmt.Errorf("auth: clear totp secret: %w", err)
	}
	if err := s.recovery.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("auth: delete recovery codes: %w", err)
	}
	n, err := s.devices.RevokeAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("auth: revoke devices: %w", err)
	}
	s.record(ctx, userID, repository.EventTOTPDisabled, meta, map[string]any{"devices_revoked": n})
	return nil
}

// verifySecondFactor acepta un recovery code (se consume) o un TOTP vigente, con el
// mismo orden y la misma auditoría que Login. op queda en la metadata de los eventos.
func (s *Service) verifySecondFactor(ctx context.Context, u *repository.User, code, recoveryCode, op string, meta RequestMeta) error {
	code, recoveryCode = strings.TrimSpace(code), strings.TrimSpace(recoveryCode)
	if code == "" && recoveryCode == "" {
		return ErrMissingTOTPCode
	}
	if recoveryCode != "" {
		ok, err := s.recovery.Verify(ctx, u.ID, recoveryCode)
		if err != nil {
			return fmt.Errorf("auth: recovery code: %w", err)
		}
		if ok {
			remaining, err := s.recovery.Remaining(ctx, u.ID)
			if err != nil {
				logger.From(ctx).Warn("count remaining recovery codes failed",
					logger.Component("auth.mfa"), logger.Err(err))
			}
			s.record(ctx, u.ID, repository.EventRecoveryCodeUsed, meta, map[string]any{"op": op, "remaining": remaining})
			return nil
		}
		s.record(ctx, u.ID, repository.EventLoginFailedRecoveryCode, meta, map[string]any{"op": op})
	}
	if code != "" {
		secret, err := s.openTOTPSecret(u)
		if err != nil {
			return err
		}
		if totp.Validate(secret, code, s.now()) {
			return nil
		}
		s.record(ctx, u.ID, repository.EventLoginFailedTOTP, meta, map[string]any{"op": op})
	}
	return ErrInvalidTOTPCode
}

// RegenerateRecoveryCodes invalida el batch actual y devuelve uno nuevo.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context, userID string) ([]string, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasTOTP() {
		return nil, ErrTOTPNotEnabled
	}
	codes, err := s.recovery.Generate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: recovery codes: %w", err)
	}
	return codes, nil
}

// MFAStatus resume el estado del segundo factor para la UI.
type MFAStatus struct {
	TOTPEnabled            bool
	RemainingRecoveryCodes int
}

func (s *Service) MFAStatus(ctx context.Context, userID string) (MFAStatus, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return MFAStatus{}, err
	}
	n, err := s.recovery.Remaining(ctx, userID)
	if err != nil {
		return MFAStatus{}, fmt.Errorf("auth: recovery codes: %w", err)
	}
	return MFAStatus{TOTPEnabled: u.HasTOTP(), RemainingRecoveryCodes: n}, nil
}
