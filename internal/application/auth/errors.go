package auth

import (
	"errors"

	"house-marketplace/internal/domain"
)

var (
	ErrEmailPasswordRequired = errors.New("Email and password are required")
	ErrInvalidEmail          = errors.New("Invalid Email")
	ErrIncorrectPassword     = errors.New("Incorrect Password")
	ErrNotAuthenticated      = domain.ErrNotAuthenticated
	ErrEmailTaken            = errors.New("Email already registered")
)

// InputError is a sign-up field that failed validation.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}
