// Package health contiene el controller para health checks.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
)

// Check es un componente a verificar (store, cache).
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type componentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type response struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components []componentStatus `json:"components"`
}

// HealthController maneja GET /healthz.
type HealthController struct {
	checks  []Check
	version string
	timeout time.Duration
}

func NewHealthController(version string, checks ...Check) *HealthController {
	return &HealthController{checks: checks, version: version, timeout: 2 * time.Second}
}

// Healthz responde 200 si todos los componentes responden, 503 si alguno falla.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	resp := response{Status: "ok", Version: c.version, Components: make([]componentStatus, 0, len(c.checks))}
	for _, chk := range c.checks {
		st := componentStatus{Name: chk.Name, Status: "ok"}
		if err := chk.Ping(ctx); err != nil {
			st.Status = "down"
			st.Error = err.Error()
			resp.Status = "unavailable"
			logger.From(ctx).Warn("health check failed",
				logger.Layer("controller"), logger.Component(chk.Name), logger.Err(err))
		}
		resp.Components = append(resp.Components, st)
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
