package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/mfa/devices"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/observability/metrics"
	"github.com/dropDatabas3/cinelog/internal/security/password"
	"github.com/dropDatabas3/cinelog/internal/security/totp"
	tokens "github.com/dropDatabas3/cinelog/internal/security/token"
	"github.com/dropDatabas3/cinelog/internal/session"
)

// Login decide si un intento de login prospera. El error solo es no-nil ante
// fallos inesperados (storage, descifrado, generación de tokens); los rechazos
// esperados vuelven en Outcome.Failure. Cada rama escribe exactamente un evento de
// auditoría de resultado, salvo el pedido de segundo factor que no escribe ninguno.
func (s *Service) Login(ctx context.Context, in LoginInput, meta RequestMeta) (out Outcome, err error) {
	trace := []State{StateAwaitingCredentials}
	defer func() {
		if err == nil && trace[len(trace)-1] != out.State {
			trace = append(trace, out.State)
		}
		out.Trace = trace
	}()

	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Login"),
		logger.ClientIP(meta.IP),
	)

	// limpieza oportunista; no bloquea el login
	if n, err := s.devices.CleanupExpired(ctx); err != nil {
		log.Warn("trusted device cleanup failed", logger.Err(err))
	} else if n > 0 {
		log.Debug("expired trusted devices removed", logger.Count(int(n)))
	}
	if n, err := s.authTokens.DeleteExpired(ctx, s.now()); err != nil {
		log.Warn("auth token cleanup failed", logger.Err(err))
	} else if n > 0 {
		log.Debug("expired auth tokens removed", logger.Count(int(n)))
	}

	if rl := s.checkLimit(ctx, "login", "login_ip_"+meta.IP, s.cfg.LoginLimit, repository.SystemUserID, meta); rl != nil {
		log.Info("login rate limited", logger.RetryAfter(rl.RetryAfter))
		return s.reject(FailureRateLimited, rl.RetryAfter), nil
	}

	email := normalizeEmail(in.Email)
	var u *repository.User
	if email != "" {
		u, err = s.users.GetByEmail(ctx, email)
		if err != nil && !repository.IsNotFound(err) {
			return Outcome{}, fmt.Errorf("auth: load user: %w", err)
		}
	}
	if u == nil {
		// mismo costo que un password real
		_ = password.Verify(in.Password, s.dummyPasswordHash())
		s.record(ctx, repository.SystemUserID, repository.EventLoginFailedPassword, meta, map[string]any{
			"email_hash": tokens.SHA256Hex(email),
		})
		log.Debug("login rejected: unknown email")
		return s.reject(FailureInvalidCredentials, 0), nil
	}

	log = log.With(logger.UserID(u.ID))
	if !password.Verify(in.Password, u.PasswordHash) {
		s.record(ctx, u.ID, repository.EventLoginFailedPassword, meta, nil)
		log.Debug("login rejected: bad password")
		return s.reject(FailureInvalidCredentials, 0), nil
	}
	s.maybeRehash(ctx, log, u, in.Password)
	trace = append(trace, StatePasswordVerified)

	if !u.HasTOTP() {
		trace = append(trace, StateNoSecondFactor)
		s.record(ctx, u.ID, repository.EventLoginSuccess, meta, nil)
		return s.complete(ctx, log, u, in, meta, nil)
	}

	trace = append(trace, StateAwaitingSecondFactor)
	if meta.DeviceToken != "" {
		d, err := s.devices.Verify(ctx, meta.DeviceToken, u.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("auth: trusted device: %w", err)
		}
		if d != nil {
			s.record(ctx, u.ID, repository.EventLoginSuccess, meta, map[string]any{
				"trusted_device": true,
				"device_id":      d.ID,
			})
			return s.complete(ctx, log, u, in, meta, d)
		}
	}

	recoveryCode := strings.TrimSpace(in.RecoveryCode)
	code := strings.TrimSpace(in.TOTPCode)
	if recoveryCode == "" && code == "" {
		metrics.LoginOutcome(FailureMissingTOTPCode.String())
		return Outcome{
			State:   StateAwaitingSecondFactor,
			UserID:  u.ID,
			Failure: &Failure{Kind: FailureMissingTOTPCode, Message: ErrMissingTOTPCode.Error()},
		}, nil
	}

	// El recovery code se prueba primero; si falla se sigue con el TOTP.
	if recoveryCode != "" {
		ok, err := s.recovery.Verify(ctx, u.ID, recoveryCode)
		if err != nil {
			return Outcome{}, fmt.Errorf("auth: recovery code: %w", err)
		}
		if ok {
			remaining, err := s.recovery.Remaining(ctx, u.ID)
			if err != nil {
				log.Warn("count remaining recovery codes failed", logger.Err(err))
			}
			s.record(ctx, u.ID, repository.EventRecoveryCodeUsed, meta, map[string]any{"remaining": remaining})
			res, err := s.complete(ctx, log, u, in, meta, nil)
			res.UsedRecoveryCode = true
			res.RemainingRecoveryCodes = remaining
			return res, err
		}
		s.record(ctx, u.ID, repository.EventLoginFailedRecoveryCode, meta, nil)
	}

	if code != "" {
		secret, err := s.openTOTPSecret(u)
		if err != nil {
			return Outcome{}, err
		}
		if totp.Validate(secret, code, s.now()) {
			s.record(ctx, u.ID, repository.EventLoginSuccess, meta, map[string]any{"second_factor": "totp"})
			return s.complete(ctx, log, u, in, meta, nil)
		}
		s.record(ctx, u.ID, repository.EventLoginFailedTOTP, meta, nil)
	}

	log.Debug("login rejected: bad second factor")
	return s.reject(FailureInvalidTOTPCode, 0), nil
}

func (s *Service) reject(kind FailureKind, retryAfter time.Duration) Outcome {
	metrics.LoginOutcome(kind.String())
	out := Outcome{State: StateRejected, Failure: &Failure{Kind: kind, RetryAfter: retryAfter}}
	out.Failure.Message = out.Err().Error()
	return out
}

// complete emite el AuthToken, regenera la sesión y, si corresponde, recuerda el
// dispositivo. trusted es el dispositivo con el que se salteó el segundo factor.
func (s *Service) complete(ctx context.Context, log *zap.Logger, u *repository.User, in LoginInput, meta RequestMeta, trusted *repository.TrustedDevice) (Outcome, error) {
	ttl := s.cfg.TokenTTL
	if in.RememberMe {
		ttl = s.cfg.RememberMeTTL
	}
	pair, err := tokens.NewPair(tokenBytes)
	if err != nil {
		return Outcome{}, fmt.Errorf("auth: token: %w", err)
	}
	label := strings.TrimSpace(in.DeviceLabel)
	if label == "" {
		label = devices.LabelFromUserAgent(meta.UserAgent)
	}
	expiresAt := s.now().Add(ttl)
	if _, err := s.authTokens.Create(ctx, repository.CreateAuthTokenInput{
		UserID:      u.ID,
		TokenHash:   pair.Hash,
		DeviceLabel: label,
		ExpiresAt:   expiresAt,
	}); err != nil {
		return Outcome{}, fmt.Errorf("auth: store token: %w", err)
	}

	// siempre un id nuevo: evita fijación de sesión
	sid, err := s.sessions.RegenerateID(ctx, meta.SessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("auth: regenerate session: %w", err)
	}
	if err := s.sessions.Set(ctx, sid, session.KeyUserID, u.ID); err != nil {
		return Outcome{}, fmt.Errorf("auth: session: %w", err)
	}
	// la sesión vale mientras exista su AuthToken
	if err := s.sessions.Set(ctx, sid, session.KeyTokenHash, pair.Hash); err != nil {
		return Outcome{}, fmt.Errorf("auth: session: %w", err)
	}
	if err := s.sessions.Unset(ctx, sid, session.KeyPendingTOTP); err != nil {
		return Outcome{}, fmt.Errorf("auth: session: %w", err)
	}

	out := Outcome{
		State:          StateAuthenticated,
		UserID:         u.ID,
		Token:          pair.Token,
		TokenExpiresAt: expiresAt,
		SessionID:      sid,
		TrustedDevice:  trusted,
	}
	out.Effects.addCookie(s.cfg.Cookies.Build(s.cfg.SessionCookie, sid, meta.Secure, s.cfg.SessionTTL))
	if in.Client != ClientAPI {
		out.Effects.addCookie(s.cfg.Cookies.Build(s.cfg.BearerCookie, pair.Token, meta.Secure, ttl))
	}

	if in.Client == ClientWeb && in.TrustDevice && u.HasTOTP() && trusted == nil {
		created, err := s.devices.Create(ctx, u.ID, "", meta.UserAgent, meta.IP)
		if err != nil {
			return Outcome{}, fmt.Errorf("auth: trust device: %w", err)
		}
		s.record(ctx, u.ID, repository.EventTrustedDeviceAdded, meta, map[string]any{
			"device_id": created.Device.ID,
			"label":     created.Device.DeviceLabel,
		})
		out.TrustedDevice = &created.Device
		out.Effects.addCookie(s.cfg.Cookies.Build(s.cfg.DeviceCookie, created.Token, meta.Secure, s.cfg.DeviceTTL))
	}

	metrics.LoginOutcome("success")
	log.Info("login succeeded", zap.Bool("remember_me", in.RememberMe), zap.Bool("trusted_device", trusted != nil))
	return out, nil
}

// maybeRehash actualiza hashes bcrypt heredados o argon2id con parámetros viejos.
// Un fallo solo se loguea.
func (s *Service) maybeRehash(ctx context.Context, log *zap.Logger, u *repository.User, plain string) {
	if !password.NeedsRehash(s.cfg.PasswordParams, u.PasswordHash) {
		return
	}
	h, err := password.Hash(s.cfg.PasswordParams, plain)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, u.ID, h)
	}
	if err != nil {
		log.Warn("password rehash failed", logger.Err(err))
		return
	}
	log.Debug("password rehashed")
}
