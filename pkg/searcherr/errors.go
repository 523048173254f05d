// Package searcherr defines the error taxonomy shared by the search client,
// the local mirror and the sync pipeline.
//
// Every error type classifies under a containerd/errdefs category, so callers
// can branch with errdefs.IsUnavailable, errdefs.IsNotFound and friends without
// depending on the concrete types declared here.
package searcherr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
)

var (
	// ErrMirrorNotActive is returned when an offline operation is requested on an
	// index that is not mirrored.
	ErrMirrorNotActive = fmt.Errorf("mirroring not activated on this index: %w", errdefs.ErrFailedPrecondition)

	// ErrMirrorDataUnavailable is returned when an offline operation is requested
	// before the mirror holds any data.
	ErrMirrorDataUnavailable = fmt.Errorf("no offline data available for this index: %w", errdefs.ErrNotFound)

	// ErrNoDataSelectionQueries is returned by a sync when the index has no data
	// selection queries configured.
	ErrNoDataSelectionQueries = fmt.Errorf("no data selection queries configured: %w", errdefs.ErrFailedPrecondition)

	// ErrCursorMismatch is returned when a browse cursor issued by one gateway is
	// handed to the other.
	ErrCursorMismatch = fmt.Errorf("browse cursor was issued by a different source: %w", errdefs.ErrInvalidArgument)

	// ErrInvalidArgument is the base for argument validation failures.
	ErrInvalidArgument = errdefs.ErrInvalidArgument
)

// TransportError reports a network level failure, including the exhaustion of
// every host of the API client.
type TransportError struct {
	Message string
	Err     error
}

// NewTransportError creates a TransportError wrapping err.
func NewTransportError(message string, err error) *TransportError {
	return &TransportError{Message: message, Err: err}
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is classifies the error as unavailable.
func (*TransportError) Is(target error) bool {
	return errors.Is(errdefs.ErrUnavailable, target)
}

// ServiceError is a non-2xx answer from the service or from the local engine.
type ServiceError struct {
	StatusCode int
	Message    string
}

// NewServiceError creates a ServiceError.
func NewServiceError(statusCode int, message string) *ServiceError {
	return &ServiceError{StatusCode: statusCode, Message: message}
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error (status %d): %s", e.StatusCode, e.Message)
}

// Is maps the status code onto an errdefs category.
func (e *ServiceError) Is(target error) bool {
	return errors.Is(categoryForStatus(e.StatusCode), target)
}

func categoryForStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return errdefs.ErrNotFound
	case code == http.StatusBadRequest:
		return errdefs.ErrInvalidArgument
	case code == http.StatusUnauthorized:
		return errdefs.ErrUnauthenticated
	case code == http.StatusForbidden:
		return errdefs.ErrPermissionDenied
	case code == http.StatusTooManyRequests:
		return errdefs.ErrResourceExhausted
	case code == http.StatusConflict:
		return errdefs.ErrConflict
	case code >= 500:
		return errdefs.ErrUnavailable
	default:
		return errdefs.ErrUnknown
	}
}

// BuildFailedError reports a non-success status from the local engine while
// rebuilding a mirror.
type BuildFailedError struct {
	StatusCode int
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("local index build failed with status %d", e.StatusCode)
}

// Is classifies the error as internal.
func (*BuildFailedError) Is(target error) bool {
	return errors.Is(errdefs.ErrInternal, target)
}

// MalformedResponseError reports a response that lacks an expected field.
type MalformedResponseError struct {
	Field string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response (%s): %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed response: missing %q", e.Field)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Is classifies the error as data loss.
func (*MalformedResponseError) Is(target error) bool {
	return errors.Is(errdefs.ErrDataLoss, target)
}

// IsTransient reports whether err is worth retrying against another host or
// later: network failures and 5xx answers.
func IsTransient(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.StatusCode >= 500
	}
	return false
}

// StatusCode extracts the status carried by err, or 0 when it has none.
func StatusCode(err error) int {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.StatusCode
	}
	var buildErr *BuildFailedError
	if errors.As(err, &buildErr) {
		return buildErr.StatusCode
	}
	return 0
}
