package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropDatabas3/cinelog/internal/auth"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
)

// Authenticator resuelve el usuario de un request (sesión o bearer).
type Authenticator interface {
	CurrentUserID(ctx context.Context, meta auth.RequestMeta) (string, error)
}

// RequireAuth exige una sesión o bearer válido e inyecta el user ID en el contexto.
// Requiere WithRequestMeta antes en la cadena.
func RequireAuth(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID, err := a.CurrentUserID(ctx, GetMeta(ctx))
			if err != nil {
				if !errors.Is(err, auth.ErrUnauthenticated) {
					logger.From(ctx).Error("auth lookup failed",
						logger.Layer("middleware"), logger.Op("RequireAuth"), logger.Err(err))
					httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
					return
				}
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(ctx, userID)))
		})
	}
}
