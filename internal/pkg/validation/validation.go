package validation

import (
	"regexp"
	"unicode"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Names: letters (any script), spaces, hyphens and apostrophes.
var fullnameRe = regexp.MustCompile(`^[\p{L}\s\-']+$`)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidPassword requires MinPasswordLength characters including a letter, a digit and a symbol.
func IsValidPassword(password string) bool {
	if len([]rune(password)) < MinPasswordLength {
		return false
	}
	hasLetter, hasDigit, hasSpecial := false, false, false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	return hasLetter && hasDigit && hasSpecial
}

func IsValidFullname(fullname string) bool {
	return fullname != "" && fullnameRe.MatchString(fullname)
}
