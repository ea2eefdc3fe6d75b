// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
)

// Error classes surfaced by the service. Each wraps an errdefs class so
// errdefs.IsNotFound and friends keep working across package boundaries.
var (
	ErrNotFound           = errdefs.ErrNotFound
	ErrInvalidInput       = errdefs.ErrInvalidArgument
	ErrAlreadyExists      = errdefs.ErrAlreadyExists
	ErrProcessingFailed   = fmt.Errorf("processing failed: %w", errdefs.ErrInternal)
	ErrStorageUnavailable = fmt.Errorf("storage unavailable: %w", errdefs.ErrUnavailable)
)

// NotFound returns an ErrNotFound carrying a description of what was missing.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// InvalidInput returns an ErrInvalidInput with a description.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// ProcessingFailed wraps cause as ErrProcessingFailed.
func ProcessingFailed(cause error) error {
	if cause == nil || errors.Is(cause, ErrProcessingFailed) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrProcessingFailed, cause)
}

// StorageUnavailable wraps cause as ErrStorageUnavailable. Errors that are
// already classified are returned unchanged.
func StorageUnavailable(cause error) error {
	if cause == nil || classified(cause) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, cause)
}

func classified(err error) bool {
	return errdefs.IsNotFound(err) ||
		errdefs.IsInvalidArgument(err) ||
		errdefs.IsAlreadyExists(err) ||
		errdefs.IsInternal(err) ||
		errdefs.IsUnavailable(err)
}

// HTTPStatus maps an error class to the status code returned at the HTTP boundary.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsAlreadyExists(err):
		return http.StatusConflict
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing text for an error. Server-side
// failures are reported generically; details stay in the logs.
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusNotFound, http.StatusBadRequest, http.StatusConflict:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "storage unavailable, please try again"
	default:
		return "failed to process request, please try again"
	}
}
