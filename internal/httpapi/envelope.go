// Package httpapi exposes the service's narrow HTTP surface: not the
// core of the system (that is the retrieval engine), but the interop
// boundary adapters and tests talk to.
package httpapi

import (
	"encoding/json"
	"net/http"

	aerrors "github.com/hybridsearch/codesearch/internal/errors"
)

// envelope is the uniform success/data/error response body shared by
// every handler.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusForError(err), envelope{Success: false, Error: err.Error()})
}

// statusForError maps error kinds onto HTTP status codes:
// 400 validation, 404 missing dataset/collection, 422 payload schema, 503
// all downstream legs failed, 504 deadline exceeded with no partial
// progress.
func statusForError(err error) int {
	switch aerrors.GetCode(err) {
	case aerrors.ErrCodeInvalidInput, aerrors.ErrCodeInvalidQuery, aerrors.ErrCodeQueryEmpty, aerrors.ErrCodeQueryTooLong, aerrors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case aerrors.ErrCodeDimensionMismatch:
		return http.StatusUnprocessableEntity
	case aerrors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case aerrors.ErrCodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case aerrors.ErrCodeDependencyUnavailable:
		return http.StatusServiceUnavailable
	case aerrors.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case aerrors.ErrCodePersistenceFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
