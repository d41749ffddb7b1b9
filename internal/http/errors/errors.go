// Package errors define los errores de la API y cómo se serializan.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/cinelog/internal/auth"
	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/rate"
)

// errorResponse estructura interna para la serialización JSON.
type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// WriteError escribe una respuesta HTTP basada en el error proporcionado.
// Maneja automáticamente errores de tipo *AppError, errores de dominio y genéricos.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}
	if appErr.HTTPStatus == http.StatusTooManyRequests && appErr.RetryAfter > 0 {
		secs := rate.CeilSeconds(appErr.RetryAfter)
		resp.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// FromError convierte un error en un AppError. Los errores de dominio conocidos se
// mapean a su código; el resto termina como error interno conservando la causa.
func FromError(err error) *AppError {
	if err == nil {
		return ErrInternalServerError
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if rl, ok := auth.IsRateLimited(err); ok {
		return ErrRateLimitExceeded.WithRetryAfter(rl.RetryAfter).WithCause(err)
	}

	switch {
	case stderrors.Is(err, auth.ErrInvalidCredentials):
		return ErrInvalidCredentials.WithCause(err)
	case stderrors.Is(err, auth.ErrMissingTOTPCode):
		return ErrMFARequired.WithCause(err)
	case stderrors.Is(err, auth.ErrInvalidTOTPCode):
		return ErrInvalidMFACode.WithCause(err)
	case stderrors.Is(err, auth.ErrUnauthenticated):
		return ErrUnauthorized.WithCause(err)
	case stderrors.Is(err, auth.ErrSessionRequired):
		return ErrSessionRequired.WithCause(err)
	case stderrors.Is(err, auth.ErrWeakPassword):
		return ErrPasswordTooWeak.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, auth.ErrTOTPAlreadyEnabled):
		return ErrConflict.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, auth.ErrTOTPNotEnabled),
		stderrors.Is(err, auth.ErrNoPendingEnrollment):
		return New(http.StatusBadRequest, "MFA_NOT_ENROLLED", "La verificación en dos pasos no está configurada.").
			WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, repository.ErrInvalidInput):
		return ErrMissingFields.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, repository.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case stderrors.Is(err, repository.ErrConflict):
		return ErrConflict.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}
