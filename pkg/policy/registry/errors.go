package registry

import "fmt"

// RegistryError represents a rejected registry operation.
// The registry performs no I/O, so the only failures are invalid input.
type RegistryError struct {
	// PolicyID is the identifier involved in the error, if any
	PolicyID string

	// Operation is the operation that failed (e.g., "set", "update")
	Operation string

	// Message describes the error
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *RegistryError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.PolicyID != "" {
		return fmt.Sprintf("registry error for policy %q during %s: %s", e.PolicyID, e.Operation, msg)
	}
	return fmt.Sprintf("registry error during %s: %s", e.Operation, msg)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *RegistryError) Unwrap() error {
	return e.Cause
}
