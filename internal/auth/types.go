package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/rate"
)

// State es la etapa de la máquina de verificación de credenciales.
type State int

const (
	StateAwaitingCredentials State = iota
	StatePasswordVerified
	StateNoSecondFactor
	StateAwaitingSecondFactor
	StateAuthenticated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateAwaitingCredentials:
		return "awaiting_credentials"
	case StatePasswordVerified:
		return "password_verified"
	case StateNoSecondFactor:
		return "no_second_factor"
	case StateAwaitingSecondFactor:
		return "awaiting_second_factor"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Client distingue el navegador (cookies) de los clientes API (bearer en el body).
type Client string

const (
	ClientWeb Client = "web"
	ClientAPI Client = "api"
)

// LoginInput son los datos que envía el usuario.
type LoginInput struct {
	Email        string
	Password     string
	TOTPCode     string
	RecoveryCode string
	RememberMe   bool
	TrustDevice  bool
	Client       Client
	// DeviceLabel etiqueta el AuthToken; vacío se deriva del user agent.
	DeviceLabel string
}

// RequestMeta es lo que el núcleo necesita del request HTTP.
type RequestMeta struct {
	IP          string
	UserAgent   string
	Secure      bool
	BearerToken string
	DeviceToken string
	SessionID   string
}

// Effects son los cambios de respuesta que la capa HTTP debe aplicar.
type Effects struct {
	SetCookies []*http.Cookie
	Headers    http.Header
}

func (e *Effects) addCookie(c *http.Cookie) {
	e.SetCookies = append(e.SetCookies, c)
}

// FailureKind clasifica los fallos esperados de un login.
type FailureKind int

const (
	FailureInvalidCredentials FailureKind = iota + 1
	FailureMissingTOTPCode
	FailureInvalidTOTPCode
	FailureRateLimited
)

func (k FailureKind) String() string {
	switch k {
	case FailureInvalidCredentials:
		return "invalid_credentials"
	case FailureMissingTOTPCode:
		return "missing_totp_code"
	case FailureInvalidTOTPCode:
		return "invalid_totp_code"
	case FailureRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Failure es el resultado etiquetado de un login rechazado.
type Failure struct {
	Kind       FailureKind
	Message    string
	RetryAfter time.Duration
}

// Outcome es el resultado de Login. Failure es nil si el usuario quedó autenticado.
type Outcome struct {
	State   State
	Failure *Failure
	// Trace son las etapas recorridas, en orden; la última es State.
	Trace []State

	UserID string
	// Token es el bearer en claro; se muestra una sola vez.
	Token          string
	TokenExpiresAt time.Time
	SessionID      string

	// TrustedDevice es el dispositivo con el que se salteó el segundo factor, o el
	// creado en este login.
	TrustedDevice    *repository.TrustedDevice
	UsedRecoveryCode bool
	// RemainingRecoveryCodes solo se completa cuando se consumió un código.
	RemainingRecoveryCodes int

	Effects Effects
}

// Authenticated reporta si el login terminó bien.
func (o Outcome) Authenticated() bool {
	return o.Failure == nil && o.State == StateAuthenticated
}

// Err convierte el Failure en los errores tipados del paquete.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	switch o.Failure.Kind {
	case FailureInvalidCredentials:
		return ErrInvalidCredentials
	case FailureMissingTOTPCode:
		return ErrMissingTOTPCode
	case FailureInvalidTOTPCode:
		return ErrInvalidTOTPCode
	case FailureRateLimited:
		return &RateLimitError{RetryAfter: o.Failure.RetryAfter}
	default:
		return fmt.Errorf("auth: unknown failure %d", o.Failure.Kind)
	}
}

var (
	// ErrInvalidCredentials se usa tanto para email desconocido como para password incorrecto.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingTOTPCode    = errors.New("two-factor code required")
	ErrInvalidTOTPCode    = errors.New("invalid two-factor code")

	ErrUnauthenticated     = errors.New("not authenticated")
	ErrTOTPAlreadyEnabled  = errors.New("two-factor authentication already enabled")
	ErrTOTPNotEnabled      = errors.New("two-factor authentication not enabled")
	ErrNoPendingEnrollment = errors.New("no pending two-factor enrollment")
	ErrSessionRequired     = errors.New("a browser session is required")
	ErrWeakPassword        = errors.New("password does not meet policy")
)

// RateLimitError indica que el límite de la ventana se alcanzó.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", rate.CeilSeconds(e.RetryAfter))
}

// IsRateLimited extrae el *RateLimitError si err lo contiene.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
