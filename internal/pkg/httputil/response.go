// Package httputil holds the JSON response helpers every handler uses, so
// error envelopes and status mapping stay consistent across services.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"shepherd/internal/pkg/apperr"
	"shepherd/internal/pkg/logger"
)

// ErrorResponse is the error envelope for every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with the given status. Encoding failures are logged; the
// status line has already gone out by then.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encode response", "err", err)
	}
}

func OK(w http.ResponseWriter, data any)      { JSON(w, http.StatusOK, data) }
func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, data) }
func NoContent(w http.ResponseWriter)         { w.WriteHeader(http.StatusNoContent) }

// Error writes a client error.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// InternalError logs err and writes a generic 500.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("internal error", "err", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}

// StatusOf maps an error's kind to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status its kind maps to. Errors without a
// kind are logged and never shown to the client.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		InternalError(w, err)
		return
	}
	Error(w, status, apperr.Message(err))
}

// Decode reads a JSON body into dst. On failure it writes a 400 and returns
// false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// UUID parses a path or query value named name. On failure it writes a 400
// and returns false.
func UUID(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		BadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// Upload returns the CSV body of an import request: the "file" part of a
// multipart form, or the raw body otherwise. Bodies over maxBytes fail.
func Upload(w http.ResponseWriter, r *http.Request, maxBytes int64) (io.ReadCloser, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, true
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, `expected a CSV upload in the "file" field`)
		return nil, false
	}
	return file, true
}
