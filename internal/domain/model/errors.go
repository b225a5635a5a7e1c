package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionNotFound   = errors.New("alert session not found")
	ErrSessionExists     = errors.New("alert session already exists")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrUnknownAction     = errors.New("unknown action")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when an ingested payload is rejected.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s %s", f.Field, f.Message)
	}
	return "invalid alert: " + strings.Join(parts, "; ")
}
