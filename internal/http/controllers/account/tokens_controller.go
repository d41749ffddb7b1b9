package account

import (
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/cinelog/internal/http/dto/account"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/http/middlewares"
)

// TokensController maneja los API tokens de integraciones (media servers).
type TokensController struct {
	service Service
}

// Create handles POST /api/tokens. El token en claro solo viaja en esta respuesta.
func (c *TokensController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.CreateTokenRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Label) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("label is required"))
		return
	}

	t, err := c.service.CreateAPIToken(ctx, middlewares.GetUserID(ctx), req.Label)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, dto.TokenResponse{
		ID:        t.ID,
		Label:     t.Label,
		Token:     t.Token,
		CreatedAt: t.CreatedAt,
	})
}

// List handles GET /api/tokens
func (c *TokensController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := c.service.ListAPITokens(ctx, middlewares.GetUserID(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	resp := dto.TokenListResponse{Tokens: make([]dto.TokenResponse, 0, len(list))}
	for _, t := range list {
		resp.Tokens = append(resp.Tokens, dto.TokenResponse{ID: t.ID, Label: t.Label, CreatedAt: t.CreatedAt})
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/tokens. El id viaja en el body o en ?id=.
func (c *TokensController) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		var req dto.DeleteTokenRequest
		if !helpers.ReadJSON(w, r, &req) {
			return
		}
		id = strings.TrimSpace(req.ID)
	}
	if id == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("id is required"))
		return
	}

	if err := c.service.DeleteAPIToken(ctx, middlewares.GetUserID(ctx), id); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.NoContent(w)
}
