package auth

import (
	"strings"
)

// Validator checks credentials before they reach the login endpoint.
// The fake API runs the same checks to answer 422.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCredentials validates staff login credentials
func (v *Validator) ValidateCredentials(c Credentials) error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return EmailRequiredErr
	}

	// Basic email format validation
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") || strings.ContainsAny(email, " \t\r\n") {
		return EmailFormatErr
	}

	if c.Password == "" {
		return PasswordRequiredErr
	}
	return nil
}

// ValidateTerminalCredentials validates point-of-sale login credentials
func (v *Validator) ValidateTerminalCredentials(c TerminalCredentials) error {
	if c.TerminalID <= 0 {
		return TerminalIDErr
	}
	if c.Password == "" {
		return PasswordRequiredErr
	}
	return nil
}
