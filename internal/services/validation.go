package services

import (
	"errors"
	"sort"
	"strings"
)

var ErrValidation = errors.New("validation failed")

// ValidationError carries field-level messages. Kind is the sentinel it unwraps to.
type ValidationError struct {
	Kind   error
	Fields map[string]string
}

func newValidationError(kind error, field, message string) *ValidationError {
	return &ValidationError{Kind: kind, Fields: map[string]string{field: message}}
}

// FieldError reports a single invalid request field.
func FieldError(field, message string) *ValidationError {
	return newValidationError(nil, field, message)
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	if e.Kind == nil {
		return ErrValidation
	}
	return e.Kind
}
