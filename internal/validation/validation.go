// Package validation checks account and profile input before it reaches
// the database.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	MinPasswordLen = 8
	MinNameLen     = 2
	MaxNameLen     = 50
	MinAge         = 3
	MaxAge         = 120
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return invalid("email", "email is required")
	case !emailRegex.MatchString(email):
		return invalid("email", "invalid email format")
	}
	return nil
}

func ValidatePassword(password string) error {
	switch {
	case password == "":
		return invalid("password", "password is required")
	case len(password) < MinPasswordLen:
		return invalid("password", "password must be at least %d characters", MinPasswordLen)
	}
	return nil
}

// ValidateName checks a display name. Length counts characters, not bytes.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	switch {
	case n == 0:
		return invalid("name", "name is required")
	case n < MinNameLen:
		return invalid("name", "name must be at least %d characters", MinNameLen)
	case n > MaxNameLen:
		return invalid("name", "name must be at most %d characters", MaxNameLen)
	}
	return nil
}

// ValidateAge checks a reader's age. Zero means not set.
func ValidateAge(age int) error {
	if age != 0 && (age < MinAge || age > MaxAge) {
		return invalid("age", "age must be between %d and %d", MinAge, MaxAge)
	}
	return nil
}

// ValidateScore rejects negative scores.
func ValidateScore(score int) error {
	if score < 0 {
		return invalid("score", "score cannot be negative")
	}
	return nil
}
