package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")

	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not authorized")

	ErrValidation               = errors.New("validation failed")
	ErrDuplicateReservationCode = errors.New("reservation code already in use")
	ErrInvalidTransition        = errors.New("cancelled reservations cannot be reinstated")

	ErrSeatUnavailable  = errors.New("seat no longer available")
	ErrNoSeatsAvailable = errors.New("no seats available")
	ErrStorageConflict  = errors.New("related data prevents this operation")
)

// ValidationError collects per-field messages. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (v *ValidationError) Add(field, msg string) {
	v.Fields[field] = msg
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (v *ValidationError) OrNil() error {
	if len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
