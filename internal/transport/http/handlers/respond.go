package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vedran77/courier/pkg/validator"
)

// errorBody is the wire shape under the "error" key. Message carries the
// human-readable text for single problems, Fields the per-field map for
// validation failures.
type errorBody struct {
	Code    string                     `json:"code"`
	Message string                     `json:"message,omitempty"`
	Fields  validator.ValidationErrors `json:"fields,omitempty"`
}

// decodeJSON decodes the request body into dst. On failure it writes the
// INVALID_JSON envelope and returns false so handlers can bail with a
// plain return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Code: "VALIDATION_ERROR", Fields: errs}})
}
