// Package router arma el árbol de rutas del API sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	accountctrl "github.com/dropDatabas3/cinelog/internal/http/controllers/account"
	authctrl "github.com/dropDatabas3/cinelog/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/cinelog/internal/http/controllers/health"
	securityctrl "github.com/dropDatabas3/cinelog/internal/http/controllers/security"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	mw "github.com/dropDatabas3/cinelog/internal/http/middlewares"
	"github.com/dropDatabas3/cinelog/internal/observability/metrics"
	"github.com/dropDatabas3/cinelog/internal/rate"
)

// Limits son las ventanas que se aplican en la capa HTTP. Login y cambio de
// password se limitan dentro de auth.Service.
type Limits struct {
	TOTP         rate.Limit
	Recovery     rate.Limit
	DeviceRevoke rate.Limit
}

// Deps contiene todo lo que el router necesita.
type Deps struct {
	Auth     *authctrl.Controllers
	Account  *accountctrl.Controllers
	Security *securityctrl.EventsController
	Health   *healthctrl.HealthController

	Authenticator mw.Authenticator
	Limiter       *rate.Limiter // nil desactiva los límites HTTP
	Limits        Limits
	Audit         mw.Auditor

	Cookies helpers.CookieNames
	Proxies *helpers.Proxies

	IPThrottleRPS   float64
	IPThrottleBurst int

	// Metrics sirve /metrics; nil no registra la ruta.
	Metrics http.Handler
}

// New construye el handler raíz.
// Orden: Recover → RequestID → RequestMeta → Metrics → IPThrottle → SecurityHeaders → NoStore → [Auth] → [RateLimit] → Logging
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Adapt(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithRequestMeta(d.Cookies, d.Proxies),
	)...)
	r.Use(metrics.WithMetrics)
	r.Use(mw.Adapt(mw.WithIPThrottle(d.IPThrottleRPS, d.IPThrottleBurst))...)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(mw.Adapt(
			mw.WithSecurityHeaders(d.Proxies),
			mw.WithNoStore(),
		)...)

		// Públicas
		api.Group(func(pub chi.Router) {
			pub.Use(mw.Adapt(mw.WithLogging())...)
			if d.Auth != nil {
				pub.Post("/auth/login", d.Auth.Login.Login)
				pub.Post("/auth/logout", d.Auth.Session.Logout)
			}
		})

		// Autenticadas (sesión o bearer)
		api.Group(func(priv chi.Router) {
			priv.Use(mw.Adapt(
				mw.RequireAuth(d.Authenticator),
				mw.WithLogging(),
			)...)
			registerAuthRoutes(priv, d)
			registerAccountRoutes(priv, d)
			if d.Security != nil {
				priv.Get("/security/events", d.Security.List)
			}
		})
	})

	return r
}

func (d Deps) limit(scope string, lim rate.Limit, key mw.RateKeyFunc) func(http.Handler) http.Handler {
	return mw.WithRateLimit(mw.RateLimitConfig{
		Limiter: d.Limiter,
		Scope:   scope,
		Limit:   lim,
		KeyFunc: key,
		Audit:   d.Audit,
	})
}

func registerAuthRoutes(r chi.Router, d Deps) {
	if d.Auth == nil {
		return
	}
	r.Get("/auth/me", d.Auth.Session.Me)

	m := d.Auth.MFA
	totp := d.limit("totp", d.Limits.TOTP, mw.UserRateKey("totp"))
	r.With(totp).Post("/mfa/totp/enroll", m.Enroll)
	r.With(totp).Post("/mfa/totp/confirm", m.Confirm)
	r.With(totp).Post("/mfa/totp/disable", m.Disable)

	recovery := d.limit("recovery", d.Limits.Recovery, mw.UserRateKey("recovery"))
	r.With(recovery).Post("/mfa/recovery/regenerate", m.RegenerateRecovery)
	r.Get("/mfa/recovery", m.Status)
}

func registerAccountRoutes(r chi.Router, d Deps) {
	if d.Account == nil {
		return
	}
	r.Post("/account/password", d.Account.Password.Change)

	revoke := d.limit("device_revoke", d.Limits.DeviceRevoke, mw.UserRateKey("device_revoke"))
	r.Get("/devices", d.Account.Devices.List)
	r.With(revoke).Delete("/devices", d.Account.Devices.RevokeAll)
	r.With(revoke).Delete("/devices/{id}", d.Account.Devices.Revoke)

	r.Get("/tokens", d.Account.Tokens.List)
	r.Post("/tokens", d.Account.Tokens.Create)
	r.Delete("/tokens", d.Account.Tokens.Delete)
}
