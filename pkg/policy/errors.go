package policy

import (
	"errors"
	"fmt"
)

// ErrInvalidMode is the sentinel matched by every *ModeError.
var ErrInvalidMode = errors.New("invalid policy mode")

// ModeError reports a mode value outside the enumerated set.
type ModeError struct {
	Value string
}

// Error implements the error interface.
func (e *ModeError) Error() string {
	return fmt.Sprintf("invalid policy mode %q: must be one of disabled, readonly, full", e.Value)
}

// Unwrap returns ErrInvalidMode.
func (e *ModeError) Unwrap() error {
	return ErrInvalidMode
}

// TemplateError reports a structurally invalid template.
type TemplateError struct {
	TemplateID string
	Field      string
	Message    string
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	if e.TemplateID != "" {
		return fmt.Sprintf("invalid template %q at %s: %s", e.TemplateID, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid template at %s: %s", e.Field, e.Message)
}
