package session

import (
	"context"
	"net/http"

	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/PicoHBK/clubnorte/internal/errors"
)

// Messages is the table of human-readable failure texts a store shows.
type Messages struct {
	InvalidCredentials string
	InvalidInput       string
	RateLimited        string
	ServerError        string
	Connection         string
	Unexpected         string

	SessionInvalid string // current-identity answered status:false
	SessionExpired string // current-identity answered 401/403
	RefreshFailed  string // any other current-identity failure
}

// DefaultMessages returns the staff-facing texts.
func DefaultMessages() Messages {
	return Messages{
		InvalidCredentials: "Credenciales incorrectas. Verifica tu email y contraseña.",
		InvalidInput:       "Datos inválidos. Revisa la información ingresada.",
		RateLimited:        "Demasiados intentos. Espera unos minutos e intenta nuevamente.",
		ServerError:        "Error del servidor. Intenta más tarde.",
		Connection:         "Error de conexión. Verifica tu conexión a internet.",
		Unexpected:         "Error inesperado al iniciar sesión.",
		SessionInvalid:     "Sesión inválida. Inicia sesión nuevamente.",
		SessionExpired:     "Tu sesión expiró. Inicia sesión nuevamente.",
		RefreshFailed:      "No se pudo verificar la sesión.",
	}
}

// ForLogin maps a login failure to its message.
func (m Messages) ForLogin(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		if rejected.Message != "" {
			return rejected.Message
		}
		return m.InvalidCredentials
	}
	if apiclient.IsNetwork(err) {
		return m.Connection
	}
	code, ok := apiclient.StatusCode(err)
	if !ok {
		return m.Unexpected
	}
	switch code {
	case http.StatusUnauthorized:
		return m.InvalidCredentials
	case http.StatusUnprocessableEntity:
		if msg := apiclient.ServerMessage(err); msg != "" {
			return msg
		}
		return m.InvalidInput
	case http.StatusTooManyRequests:
		return m.RateLimited
	case http.StatusInternalServerError:
		return m.ServerError
	}
	return m.Unexpected
}

// invalidatesSession reports failures of the current-identity call that
// prove the session is gone, with the message to show.
func (m Messages) invalidatesSession(err error) (string, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return m.SessionInvalid, true
	}
	if apiclient.IsUnauthorized(err) {
		return m.SessionExpired, true
	}
	return "", false
}

// isCancelled reports whether err only reflects the action's own context
// ending, either superseded or abandoned by the caller.
func isCancelled(actx context.Context, err error) bool {
	return actx.Err() != nil || errors.Is(err, context.Canceled)
}
