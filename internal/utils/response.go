package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every JSON failure that is not a
// per-endpoint outcome.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func NewErrorResponse(message string, fields map[string]string) ErrorResponse {
	return ErrorResponse{Error: message, Fields: fields}
}

// WriteJSON sets the content type and status and encodes data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
