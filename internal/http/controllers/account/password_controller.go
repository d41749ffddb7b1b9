package account

import (
	"net/http"

	dto "github.com/dropDatabas3/cinelog/internal/http/dto/account"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/http/middlewares"
)

type PasswordController struct {
	service Service
}

// Change handles POST /api/account/password
func (c *PasswordController) Change(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.ChangePasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("current_password and new_password are required"))
		return
	}

	err := c.service.ChangePassword(ctx, middlewares.GetUserID(ctx), req.CurrentPassword, req.NewPassword, middlewares.GetMeta(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.NoContent(w)
}
