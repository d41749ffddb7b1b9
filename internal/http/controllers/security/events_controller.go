// Package security expone la lectura del log de auditoría del usuario.
package security

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/cinelog/internal/audit"
	dto "github.com/dropDatabas3/cinelog/internal/http/dto/account"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/http/middlewares"
)

// EventReader es lo que el controller consume de audit.Service.
type EventReader interface {
	RecentEvents(ctx context.Context, userID string, limit int) ([]audit.Event, error)
}

type EventsController struct {
	events EventReader
}

func NewEventsController(e EventReader) *EventsController {
	return &EventsController{events: e}
}

// List handles GET /api/security/events?limit=N
func (c *EventsController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := audit.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("limit must be a positive integer"))
			return
		}
		limit = n
	}

	events, err := c.events.RecentEvents(ctx, middlewares.GetUserID(ctx), limit)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	helpers.WriteJSON(w, http.StatusOK, dto.EventsResponse{Events: events})
}
