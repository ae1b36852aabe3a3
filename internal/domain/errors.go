package domain

import (
	"errors"
	"fmt"
)

var (
	ErrListingNotFound      = errors.New("Listing does not exist")
	ErrNotOwner             = errors.New("You cannot edit that listing")
	ErrSubmissionInProgress = errors.New("A submission is already in progress")
	ErrGeocoderUnavailable  = errors.New("Geocoding service unavailable")
	ErrNotAuthenticated     = errors.New("Not authenticated")
)

// ValidationError is a business-rule failure the user can fix. Always recovered locally.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError for field (may be empty for form-level rules).
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UploadError reports that at least one image upload in a batch failed.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a document store write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist listing (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// EventError reports that a listing write committed but its ListingEvent was not recorded.
// The listing is stored; callers must not undo side effects the document refers to.
type EventError struct {
	ListingID string
	EventType string
	Err       error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("record %s event for listing %s: %v", e.EventType, e.ListingID, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
