package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnsupported  = "unsupported"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeValidationError writes a 400 error response for rejected input.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeRegistryError maps a device registry error onto a response. Errors
// without a sentinel are logged and reported as internal with the given
// fallback message.
func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceExists):
		writeConflict(w, "device already exists")
	case errors.Is(err, device.ErrImportNotSupported):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupported, err.Error())
	case isValidationError(err):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error(fallback,
			"error", err,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, fallback)
	}
}

// isValidationError reports whether err is a device input validation error.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidDeviceType) ||
		errors.Is(err, device.ErrInvalidTag)
}
