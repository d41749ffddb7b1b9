package middlewares

import (
	"context"

	"github.com/dropDatabas3/cinelog/internal/auth"
)

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	// ctxUserIDKey guarda el user ID resuelto por RequireAuth
	ctxUserIDKey ctxKey = "user_id"
	// ctxRequestIDKey guarda el request ID
	ctxRequestIDKey ctxKey = "request_id"
	// ctxMetaKey guarda el auth.RequestMeta del request
	ctxMetaKey ctxKey = "request_meta"
)

// WithUserID inyecta el user ID en el contexto
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

// WithMeta inyecta el RequestMeta en el contexto
func WithMeta(ctx context.Context, meta auth.RequestMeta) context.Context {
	return context.WithValue(ctx, ctxMetaKey, meta)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetUserID obtiene el user ID del contexto; "" si no hay usuario autenticado.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxUserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetMeta obtiene el RequestMeta. Si WithRequestMeta no corrió, retorna el valor cero.
func GetMeta(ctx context.Context) auth.RequestMeta {
	if v, ok := ctx.Value(ctxMetaKey).(auth.RequestMeta); ok {
		return v
	}
	return auth.RequestMeta{}
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return v
	}
	return ""
}
