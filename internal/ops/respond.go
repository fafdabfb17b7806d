package ops

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// APIError is the JSON error envelope for the operator surface.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, errType, code, message string) {
	writeJSON(w, statusCode, APIError{
		Error: APIErrorBody{
			Message: message,
			Type:    errType,
			Code:    code,
		},
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

// decodeJSON unmarshals the request body into dest. An empty body decodes to
// the zero value, so verbs with all-optional fields work without one.
func decodeJSON(r *http.Request, dest any) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
