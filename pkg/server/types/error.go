package types

import (
	"encoding/json"
	"errors"
	"net/http"

	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/policy/registry"
)

// ErrorResponse is the body of every error returned by the API.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a single error.
type ErrorDetail struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes.
const (
	CodeInvalidJSON      = "invalid_json"
	CodeInvalidMode      = "invalid_mode"
	CodeInvalidParameter = "invalid_parameter"
	CodeBodyTooLarge     = "body_too_large"
	CodeNotFound         = "not_found"
	CodeJournalDisabled  = "journal_disabled"
	CodeNotReady         = "not_ready"
	CodeStreamingFailed  = "streaming_unsupported"
	CodeInternal         = "internal_error"
)

// NewErrorResponse creates an error response.
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// RequestError is a client error detected while decoding a request.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// BadRequest creates a RequestError.
func BadRequest(code, message string) error {
	return &RequestError{Code: code, Message: message}
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, NewErrorResponse(code, message))
}

// HandleError maps err to a status and error envelope and writes it.
// Mode and decoding errors are client errors; anything else is a 500 whose
// message is not exposed.
func HandleError(w http.ResponseWriter, err error) {
	var (
		reqErr  *RequestError
		modeErr *policy.ModeError
		regErr  *registry.RegistryError
		maxErr  *http.MaxBytesError
		syntax  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &reqErr):
		WriteError(w, http.StatusBadRequest, reqErr.Code, reqErr.Message)
	case errors.As(err, &modeErr):
		WriteError(w, http.StatusBadRequest, CodeInvalidMode, modeErr.Error())
	case errors.As(err, &maxErr):
		WriteError(w, http.StatusRequestEntityTooLarge, CodeBodyTooLarge, err.Error())
	case errors.As(err, &syntax), errors.As(err, &typeErr):
		WriteError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
	case errors.As(err, &regErr):
		WriteError(w, http.StatusBadRequest, CodeInvalidParameter, regErr.Error())
	default:
		WriteError(w, http.StatusInternalServerError, CodeInternal, "An internal error occurred.")
	}
}
