package web

// errors.go provides unified error response handling for the API.
//
// Every handler funnels failures through respondError, which:
//   - Logs the technical error with the chi request ID for correlation
//   - Maps known sentinel errors to HTTP status codes
//   - Returns a JSON body with a stable error message

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/csvfile"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/importer"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/mapping"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/repository"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError logs err and writes a JSON error response with a status
// derived from the error's kind.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the log.
		msg = "internal server error"
	}
	respondErrorJSON(w, status, msg)
}

// statusFor maps known sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrJobNotFound),
		errors.Is(err, repository.ErrHistoryNotFound),
		errors.Is(err, repository.ErrImportErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, importer.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, importer.ErrMissingSupplier),
		errors.Is(err, mapping.ErrMissingKey),
		errors.Is(err, mapping.ErrMissingPrice),
		errors.Is(err, mapping.ErrUnknownTarget),
		errors.Is(err, csvfile.ErrEmptyFile),
		errors.Is(err, csvfile.ErrUnknownEncoding),
		errors.Is(err, csvfile.ErrUnknownSeparator):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// respondJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
