package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return len(email) <= 150 && emailRegex.MatchString(email)
}

// ValidatePassword requires 8 to 72 bytes with an upper case letter, a
// lower case letter and a digit.
func ValidatePassword(password string) bool {
	if len(password) < 8 || len(password) > maxPasswordBytes {
		return false
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	return hasUpper && hasLower && hasNumber
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeName trims a profile name and collapses inner whitespace
func SanitizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
