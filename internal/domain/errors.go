package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the engines. Callers are expected to test
// these with errors.Is and map them to user-facing responses.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrAlreadyConverted     = errors.New("record already converted")
	ErrRecursionLimit       = errors.New("workflow recursion limit exceeded")
	ErrConflict             = errors.New("concurrent modification conflict")
	ErrCollaboratorTimeout  = errors.New("collaborator timed out")
	ErrWorkflowActionFailed = errors.New("workflow action failed")
)

// SchemaError reports a structurally invalid module configuration.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s", e.Message)
}

// NewSchemaError builds a SchemaError with a formatted message.
func NewSchemaError(format string, args ...any) *SchemaError {
	return &SchemaError{Message: fmt.Sprintf(format, args...)}
}

// FieldErrorKind classifies a single field validation failure.
type FieldErrorKind string

const (
	FieldErrorRequired       FieldErrorKind = "required"
	FieldErrorTypeMismatch   FieldErrorKind = "type_mismatch"
	FieldErrorConstraint     FieldErrorKind = "constraint"
	FieldErrorDuplicateValue FieldErrorKind = "duplicate_value"
	FieldErrorRule           FieldErrorKind = "rule"
	FieldErrorUnknownField   FieldErrorKind = "unknown_field"
)

// FieldError describes one validation failure on one field.
type FieldError struct {
	Field   string         `json:"field"`
	Kind    FieldErrorKind `json:"kind"`
	Message string         `json:"message"`
	Value   any            `json:"value,omitempty"`
}

// ValidationError aggregates every field error found for a payload. It is an
// expected outcome, not a hard failure; the full list is returned so callers
// can render a complete error set.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsValidationError unwraps err into a ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
