package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	tokens "github.com/dropDatabas3/cinelog/internal/security/token"
	"github.com/dropDatabas3/cinelog/internal/session"
)

// Logout borra el AuthToken presentado y destruye la sesión. La cookie de
// dispositivo de confianza no se toca: sobrevive al logout.
func (s *Service) Logout(ctx context.Context, meta RequestMeta) (Effects, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.logout"), logger.Op("Logout"))

	var userID, hash string
	if meta.SessionID != "" {
		v, ok, err := s.sessions.Get(ctx, meta.SessionID, session.KeyUserID)
		if err != nil {
			return Effects{}, fmt.Errorf("auth: session: %w", err)
		}
		if ok {
			userID = v
		}
		h, _, err := s.sessions.Get(ctx, meta.SessionID, session.KeyTokenHash)
		if err != nil {
			return Effects{}, fmt.Errorf("auth: session: %w", err)
		}
		hash = h
	}
	if meta.BearerToken != "" {
		hash = tokenHash(meta.BearerToken)
	}

	if hash != "" {
		t, err := s.authTokens.GetByHash(ctx, hash)
		switch {
		case err == nil:
			if userID == "" {
				userID = t.UserID
			}
			if err := s.authTokens.Delete(ctx, t.ID); err != nil && !repository.IsNotFound(err) {
				return Effects{}, fmt.Errorf("auth: delete token: %w", err)
			}
		case !repository.IsNotFound(err):
			return Effects{}, fmt.Errorf("auth: lookup token: %w", err)
		}
	}

	if err := s.sessions.Destroy(ctx, meta.SessionID); err != nil {
		return Effects{}, fmt.Errorf("auth: destroy session: %w", err)
	}

	if userID != "" {
		s.record(ctx, userID, repository.EventLogout, meta, nil)
		log.Info("logout", logger.UserID(userID))
	}

	var eff Effects
	eff.addCookie(s.cfg.Cookies.Deletion(s.cfg.SessionCookie, meta.Secure))
	eff.addCookie(s.cfg.Cookies.Deletion(s.cfg.BearerCookie, meta.Secure))
	return eff, nil
}

// IsValidToken resuelve un bearer. Primero API tokens (no expiran), después
// AuthTokens; un AuthToken vencido se borra y se reporta inválido.
func (s *Service) IsValidToken(ctx context.Context, token string) (string, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false, nil
	}
	hash := tokenHash(token)
	v, err, _ := s.sf.Do(hash, func() (any, error) {
		return s.lookupToken(ctx, hash)
	})
	if err != nil {
		return "", false, err
	}
	uid := v.(string)
	return uid, uid != "", nil
}

func (s *Service) lookupToken(ctx context.Context, hash string) (string, error) {
	api, err := s.apiTokens.GetByHash(ctx, hash)
	switch {
	case err == nil:
		if tokens.Equal(api.TokenHash, hash) {
			return api.UserID, nil
		}
	case !repository.IsNotFound(err):
		return "", fmt.Errorf("auth: api token: %w", err)
	}

	t, err := s.authTokens.GetByHash(ctx, hash)
	if repository.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("auth: auth token: %w", err)
	}
	if !tokens.Equal(t.TokenHash, hash) {
		return "", nil
	}
	if t.Expired(s.now()) {
		if err := s.authTokens.Delete(ctx, t.ID); err != nil && !repository.IsNotFound(err) {
			return "", fmt.Errorf("auth: delete expired token: %w", err)
		}
		return "", nil
	}
	return t.UserID, nil
}

// sessionToken devuelve el AuthToken que respalda la sesión web sid. nil si la
// sesión no existe, no está logueada o su token fue revocado o venció.
func (s *Service) sessionToken(ctx context.Context, sid string) (*repository.AuthToken, error) {
	if sid == "" {
		return nil, nil
	}
	uid, ok, err := s.sessions.Get(ctx, sid, session.KeyUserID)
	if err != nil {
		return nil, fmt.Errorf("auth: session: %w", err)
	}
	if !ok || uid == "" {
		return nil, nil
	}
	hash, ok, err := s.sessions.Get(ctx, sid, session.KeyTokenHash)
	if err != nil {
		return nil, fmt.Errorf("auth: session: %w", err)
	}
	if !ok || hash == "" {
		return nil, nil
	}

	t, err := s.authTokens.GetByHash(ctx, hash)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: session token: %w", err)
	}
	if t.UserID != uid || !tokens.Equal(t.TokenHash, hash) {
		return nil, nil
	}
	if t.Expired(s.now()) {
		if err := s.authTokens.Delete(ctx, t.ID); err != nil && !repository.IsNotFound(err) {
			return nil, fmt.Errorf("auth: delete expired token: %w", err)
		}
		return nil, nil
	}
	return t, nil
}

// CurrentUserID resuelve primero la sesión y después el bearer. Una sesión cuyo
// AuthToken fue revocado (logout, cambio de password) ya no autentica.
func (s *Service) CurrentUserID(ctx context.Context, meta RequestMeta) (string, error) {
	t, err := s.sessionToken(ctx, meta.SessionID)
	if err != nil {
		return "", err
	}
	if t != nil {
		return t.UserID, nil
	}
	if meta.BearerToken != "" {
		uid, ok, err := s.IsValidToken(ctx, meta.BearerToken)
		if err != nil {
			return "", err
		}
		if ok {
			return uid, nil
		}
	}
	return "", ErrUnauthenticated
}

func (s *Service) CurrentUser(ctx context.Context, meta RequestMeta) (*repository.User, error) {
	uid, err := s.CurrentUserID(ctx, meta)
	if err != nil {
		return nil, err
	}
	return s.loadUser(ctx, uid)
}

// IsAuthenticated es la versión booleana de CurrentUserID. Un error de storage se
// loguea y cuenta como no autenticado para este chequeo.
func (s *Service) IsAuthenticated(ctx context.Context, meta RequestMeta) bool {
	_, err := s.CurrentUserID(ctx, meta)
	if err != nil && !errors.Is(err, ErrUnauthenticated) {
		logger.From(ctx).Error("authentication check failed",
			logger.Component("auth"), logger.Op("IsAuthenticated"), logger.Err(err))
	}
	return err == nil
}

// CreatedAPIToken lleva el token en claro; se muestra una sola vez.
type CreatedAPIToken struct {
	Token string
	repository.APIToken
}

// CreateAPIToken emite una credencial de larga vida para integraciones.
func (s *Service) CreateAPIToken(ctx context.Context, userID, label string) (CreatedAPIToken, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return CreatedAPIToken{}, fmt.Errorf("auth: api token label required: %w", repository.ErrInvalidInput)
	}
	pair, err := tokens.NewPair(tokenBytes)
	if err != nil {
		return CreatedAPIToken{}, fmt.Errorf("auth: token: %w", err)
	}
	t, err := s.apiTokens.Create(ctx, userID, pair.Hash, label)
	if err != nil {
		return CreatedAPIToken{}, fmt.Errorf("auth: create api token: %w", err)
	}
	logger.From(ctx).Info("api token created",
		logger.Component("auth.tokens"), logger.UserID(userID), logger.String("token_id", t.ID))
	return CreatedAPIToken{Token: pair.Token, APIToken: *t}, nil
}

func (s *Service) ListAPITokens(ctx context.Context, userID string) ([]repository.APIToken, error) {
	list, err := s.apiTokens.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: list api tokens: %w", err)
	}
	return list, nil
}

// DeleteAPIToken revoca un token del usuario; ErrNotFound si no es suyo.
func (s *Service) DeleteAPIToken(ctx context.Context, userID, id string) error {
	if err := s.apiTokens.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("auth: delete api token: %w", err)
	}
	return nil
}
