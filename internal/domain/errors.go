package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrProviderUnavailable signals that an embedding or text-generation endpoint failed or timed out.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrMalformedModelOutput signals a model response that is not valid JSON or violates the schema.
	ErrMalformedModelOutput = errors.New("malformed model output")
	// ErrValidation signals a rejected search request.
	ErrValidation = errors.New("validation failed")
	// ErrCatalog signals an underlying catalog store failure.
	ErrCatalog = errors.New("catalog unavailable")
)

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError wraps ErrValidation with field-level detail.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for the given fields.
func NewValidationError(fields ...FieldError) error {
	return &ValidationError{Fields: fields}
}
