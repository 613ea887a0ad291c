package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/server/types"
)

// decodeJSON decodes a single JSON object from the request body into v.
// Unknown fields and trailing data are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var (
			modeErr *policy.ModeError
			maxErr  *http.MaxBytesError
		)
		switch {
		case errors.As(err, &modeErr), errors.As(err, &maxErr):
			return err
		case errors.Is(err, io.EOF):
			return types.BadRequest(types.CodeInvalidJSON, "request body is empty")
		default:
			return types.BadRequest(types.CodeInvalidJSON, "invalid request body: "+err.Error())
		}
	}
	if dec.More() {
		return types.BadRequest(types.CodeInvalidJSON, "request body must contain a single JSON object")
	}
	return nil
}
