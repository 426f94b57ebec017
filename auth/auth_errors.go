package auth

import "github.com/PicoHBK/clubnorte/internal/errors"

// ValidationError is a rejected credential field. Message is shown to
// staff as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == errors.ErrInvalidInput
}

var (
	EmailRequiredErr    = &ValidationError{Field: "email", Message: "El email es obligatorio"}
	EmailFormatErr      = &ValidationError{Field: "email", Message: "El formato del email no es válido"}
	PasswordRequiredErr = &ValidationError{Field: "password", Message: "La contraseña es obligatoria"}
	TerminalIDErr       = &ValidationError{Field: "id", Message: "El punto de venta no es válido"}
)
