package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/cinelog/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/http/middlewares"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
)

// SessionController maneja logout y /me.
type SessionController struct {
	service LoginService
}

func NewSessionController(s LoginService) *SessionController {
	return &SessionController{service: s}
}

// Logout handles POST /api/auth/logout. Idempotente: sin sesión igual limpia cookies.
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eff, err := c.service.Logout(ctx, middlewares.GetMeta(ctx))
	if err != nil {
		logger.From(ctx).Error("logout failed",
			logger.Layer("controller"), logger.Op("auth.logout"), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.ApplyEffects(w, eff)
	helpers.NoContent(w)
}

// Me handles GET /api/auth/me
func (c *SessionController) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := c.service.CurrentUser(ctx, middlewares.GetMeta(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MeResponse{
		ID:          u.ID,
		Email:       u.Email,
		IsAdmin:     u.IsAdmin,
		TOTPEnabled: u.HasTOTP(),
		CreatedAt:   u.CreatedAt,
	})
}
