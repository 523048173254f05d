package common

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/containerd/errdefs"

	"github.com/stacklok/search-mirror/internal/service"
	"github.com/stacklok/search-mirror/pkg/mirror"
)

// ErrorResponse is the body of every error answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}

// WriteServiceError writes err with the status code of its category
func WriteServiceError(w http.ResponseWriter, err error) {
	WriteErrorResponse(w, err.Error(), StatusForError(err))
}

// StatusForError maps service and mirror errors onto HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrIndexNotFound), errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsFailedPrecondition(err):
		return http.StatusConflict
	case errors.Is(err, mirror.ErrClientClosed):
		return http.StatusServiceUnavailable
	case errdefs.IsUnauthorized(err), errdefs.IsPermissionDenied(err),
		errdefs.IsUnavailable(err), errdefs.IsResourceExhausted(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errdefs.IsDeadlineExceeded(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
