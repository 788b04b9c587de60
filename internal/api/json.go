package api

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in error bodies next to the message.
const (
	codeBadRequest    = "bad_request"
	codeInvalidInput  = "invalid_input"
	codeUnknownAction = "unknown_action"
	codeNotFound      = "not_found"
	codeNotDatabase   = "not_a_database"
	codeConflict      = "conflict"
	codeUnauthorized  = "unauthorized"
	codeInternal      = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The status line is already out; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

func errorBody(code, msg string) errResponse {
	return errResponse{Error: msg, Code: code}
}
