package auth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/cinelog/internal/auth"
	dto "github.com/dropDatabas3/cinelog/internal/http/dto/mfa"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/http/middlewares"
)

// MFAController maneja el ciclo de vida TOTP y los recovery codes.
// Todas las rutas requieren usuario autenticado (RequireAuth).
type MFAController struct {
	service MFAService
}

func NewMFAController(s MFAService) *MFAController {
	return &MFAController{service: s}
}

// Enroll handles POST /api/mfa/totp/enroll
func (c *MFAController) Enroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := c.service.EnrollTOTP(ctx, middlewares.GetUserID(ctx), middlewares.GetMeta(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.EnrollTOTPResponse{
		SecretBase32: res.Secret,
		OTPAuthURL:   res.URL,
	})
}

// Confirm handles POST /api/mfa/totp/confirm
func (c *MFAController) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.ConfirmTOTPRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("code is required"))
		return
	}

	codes, err := c.service.ConfirmTOTP(ctx, middlewares.GetUserID(ctx), req.Code, middlewares.GetMeta(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.ConfirmTOTPResponse{Enabled: true, RecoveryCodes: codes})
}

// Disable handles POST /api/mfa/totp/disable
func (c *MFAController) Disable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.DisableTOTPRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Password == "" || (strings.TrimSpace(req.Code) == "" && strings.TrimSpace(req.Recovery) == "") {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("password and code/recovery required"))
		return
	}

	err := c.service.DisableTOTP(ctx, middlewares.GetUserID(ctx), auth.DisableTOTPInput{
		Password:     req.Password,
		TOTPCode:     req.Code,
		RecoveryCode: req.Recovery,
	}, middlewares.GetMeta(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.DisableTOTPResponse{Disabled: true})
}

// RegenerateRecovery handles POST /api/mfa/recovery/regenerate. Los códigos se
// muestran una única vez.
func (c *MFAController) RegenerateRecovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	codes, err := c.service.RegenerateRecoveryCodes(ctx, middlewares.GetUserID(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.RecoveryCodesResponse{RecoveryCodes: codes})
}

// Status handles GET /api/mfa/recovery
func (c *MFAController) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := c.service.MFAStatus(ctx, middlewares.GetUserID(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.StatusResponse{
		TOTPEnabled:            st.TOTPEnabled,
		RemainingRecoveryCodes: st.RemainingRecoveryCodes,
	})
}
