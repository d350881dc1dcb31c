package api

import (
	"encoding/json"
	"net/http"
)

// Error codes used in error responses.
const (
	ErrValidation  = "validation_error"
	ErrNotFound    = "not_found"
	ErrRateLimited = "rate_limited"
	ErrUpstream    = "upstream_error"
	ErrConflict    = "conflict"
	ErrInternal    = "internal_error"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given code and message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
