package apiclient

import (
	"fmt"
	"net/http"

	"github.com/PicoHBK/clubnorte/internal/errors"
)

// StatusError is returned when the server answered with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string // server-provided message, may be empty
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// NetworkError is returned when a request produced no response at all.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is lets callers match any NetworkError against errors.ErrConnection.
func (e *NetworkError) Is(target error) bool {
	return target == errors.ErrConnection
}

// StatusCode extracts the HTTP status from err, if it carries one.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// ServerMessage extracts the server-provided message from err.
func ServerMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

// IsUnauthorized reports a 401 or 403 answer.
func IsUnauthorized(err error) bool {
	code, ok := StatusCode(err)
	return ok && (code == http.StatusUnauthorized || code == http.StatusForbidden)
}

// IsNetwork reports a request that received no response.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
