package flow

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Validation messages shown to the user.
const (
	MsgPasswordRule      = "Password must be at least 8 characters long and include at least one letter and one number."
	MsgTokenRequired     = "Token is required"
	MsgActivationCode    = "Please enter the activation code."
	MsgCredentials       = "Email and password are required."
	MsgSignupFields      = "Full name, email and password are required."
	MsgEmailRequired     = "Please enter your email address."
	MsgEmailInvalid      = "Please enter a valid email address."
	minimumPasswordChars = 8
)

// ValidationError is a local input error caught before any backend call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// RequireFields fails with msg when any value is blank.
func RequireFields(msg string, values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return invalid(msg)
		}
	}
	return nil
}

// CheckPassword enforces at least 8 characters with at least one ASCII letter and one digit.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < minimumPasswordChars {
		return invalid(MsgPasswordRule)
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	if !letter || !digit {
		return invalid(MsgPasswordRule)
	}
	return nil
}

// CheckEmail requires a bare address such as a@b.com.
func CheckEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid(MsgEmailRequired)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid(MsgEmailInvalid)
	}
	return nil
}
