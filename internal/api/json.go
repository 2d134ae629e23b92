package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/folio/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// errResponse is the body of every error reply. Code is stable across
// releases; Error is for humans.
type errResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// Error codes.
const (
	codeNotFound      = "not_found"
	codeConflict      = "checksum_mismatch"
	codeAlreadyExists = "already_exists"
	codeInvalidFormat = "invalid_format"
	codeInvalidBody   = "invalid_body"
	codeInvalidID     = "invalid_id"
	codeUnauthorized  = "unauthorized"
)

// domainError maps a domain error onto a status and body. ok is false for
// errors the API does not expose.
func domainError(err error) (status int, body errResponse, ok bool) {
	switch {
	case errors.Is(err, apperr.ErrChapterNotFound), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, errResponse{Error: "not found", Code: codeNotFound}, true
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, errResponse{Error: "checksum mismatch", Code: codeConflict}, true
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, errResponse{Error: "already exists", Code: codeAlreadyExists}, true
	case errors.Is(err, apperr.ErrInvalidID):
		return http.StatusBadRequest, errResponse{Error: "invalid chapter id", Code: codeInvalidID}, true
	case errors.Is(err, apperr.ErrInvalidFormat):
		return http.StatusBadRequest, errResponse{Error: err.Error(), Code: codeInvalidFormat}, true
	default:
		return 0, errResponse{}, false
	}
}
