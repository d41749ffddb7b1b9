package auth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/cinelog/internal/auth"
	dto "github.com/dropDatabas3/cinelog/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/http/middlewares"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
)

// LoginController maneja POST /api/auth/login.
type LoginController struct {
	service LoginService
}

func NewLoginController(s LoginService) *LoginController {
	return &LoginController{service: s}
}

func parseClient(s string) (auth.Client, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(auth.ClientWeb):
		return auth.ClientWeb, true
	case string(auth.ClientAPI):
		return auth.ClientAPI, true
	default:
		return "", false
	}
}

// Login handles POST /api/auth/login
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.login"))

	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("email and password are required"))
		return
	}
	client, ok := parseClient(req.Client)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail(`client must be "web" or "api"`))
		return
	}

	out, err := c.service.Login(ctx, auth.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		TOTPCode:     req.TOTPCode,
		RecoveryCode: req.RecoveryCode,
		RememberMe:   req.RememberMe,
		TrustDevice:  req.TrustDevice,
		Client:       client,
		DeviceLabel:  req.DeviceLabel,
	}, middlewares.GetMeta(ctx))
	if err != nil {
		log.Error("login failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	if !out.Authenticated() {
		log.Debug("login rejected", logger.Outcome(out.Failure.Kind.String()))
		httperrors.WriteError(w, out.Err())
		return
	}

	helpers.ApplyEffects(w, out.Effects)

	resp := dto.LoginResponse{
		UserID:           out.UserID,
		ExpiresAt:        out.TokenExpiresAt,
		TrustedDevice:    out.TrustedDevice != nil,
		UsedRecoveryCode: out.UsedRecoveryCode,
	}
	// Los clientes web reciben el bearer solo como cookie HttpOnly.
	if client == auth.ClientAPI {
		resp.Token = out.Token
		resp.TokenType = "Bearer"
	}
	if out.UsedRecoveryCode {
		n := out.RemainingRecoveryCodes
		resp.RemainingRecoveryCodes = &n
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
