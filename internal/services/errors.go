package services

import (
	"errors"

	apperrors "github.com/openlms/quiz-statistics-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	ErrUnknownGradingPolicy = errors.New("unknown grading policy")
	ErrMissingAverage       = errors.New("score provider returned attempts but no average")
)

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool {
	var single *ValidationError
	var multi ValidationErrors
	return errors.As(err, &single) || errors.As(err, &multi)
}

// IsBadInput reports whether err should map to a client error rather than a
// server failure
func IsBadInput(err error) bool {
	return errors.Is(err, ErrUnknownGradingPolicy) || IsValidation(err)
}
