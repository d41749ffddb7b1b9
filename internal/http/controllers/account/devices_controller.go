package account

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dto "github.com/dropDatabas3/cinelog/internal/http/dto/account"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/http/middlewares"
	tokens "github.com/dropDatabas3/cinelog/internal/security/token"
)

type DevicesController struct {
	service Service
}

// List handles GET /api/devices. Marca como current el dispositivo de la cookie.
func (c *DevicesController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := c.service.ListDevices(ctx, middlewares.GetUserID(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	var currentHash string
	if tok := middlewares.GetMeta(ctx).DeviceToken; tok != "" {
		currentHash = tokens.SHA256Hex(tok)
	}

	resp := dto.DeviceListResponse{Devices: make([]dto.Device, 0, len(list))}
	for _, d := range list {
		resp.Devices = append(resp.Devices, dto.Device{
			ID:          d.ID,
			Label:       d.DeviceLabel,
			Fingerprint: d.Fingerprint,
			CreatedAt:   d.CreatedAt,
			ExpiresAt:   d.ExpiresAt,
			LastUsedAt:  d.LastUsedAt,
			Current:     currentHash != "" && tokens.Equal(currentHash, d.TokenHash),
		})
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// Revoke handles DELETE /api/devices/{id}
func (c *DevicesController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("device id required"))
		return
	}
	if err := c.service.RevokeDevice(ctx, middlewares.GetUserID(ctx), id, middlewares.GetMeta(ctx)); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.NoContent(w)
}

// RevokeAll handles DELETE /api/devices. También borra la cookie de dispositivo.
func (c *DevicesController) RevokeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, eff, err := c.service.RevokeAllDevices(ctx, middlewares.GetUserID(ctx), middlewares.GetMeta(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.ApplyEffects(w, eff)
	helpers.WriteJSON(w, http.StatusOK, dto.RevokeAllResponse{Revoked: n})
}
