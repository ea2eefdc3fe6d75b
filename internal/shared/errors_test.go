package shared

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NotFound("conversation %q", "s1"), http.StatusNotFound},
		{"invalid", InvalidInput("message is required"), http.StatusBadRequest},
		{"exists", ErrAlreadyExists, http.StatusConflict},
		{"processing", ProcessingFailed(errors.New("boom")), http.StatusInternalServerError},
		{"storage", StorageUnavailable(errors.New("disk gone")), http.StatusServiceUnavailable},
		{"wrapped not found", fmt.Errorf("get verse: %w", NotFound("verse 9")), http.StatusNotFound},
		{"unclassified", errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestClassesWrapErrdefs(t *testing.T) {
	assert.True(t, errdefs.IsNotFound(NotFound("x")))
	assert.True(t, errdefs.IsInvalidArgument(InvalidInput("x")))
	assert.True(t, errdefs.IsInternal(ProcessingFailed(errors.New("x"))))
	assert.True(t, errdefs.IsUnavailable(StorageUnavailable(errors.New("x"))))
	assert.True(t, errors.Is(ProcessingFailed(errors.New("x")), ErrProcessingFailed))
}

func TestStorageUnavailableKeepsExistingClass(t *testing.T) {
	err := StorageUnavailable(NotFound("conversation s1"))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
	assert.False(t, errors.Is(err, ErrStorageUnavailable))
}

func TestProcessingFailedIsIdempotent(t *testing.T) {
	once := ProcessingFailed(errors.New("x"))
	assert.Equal(t, once, ProcessingFailed(once))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	err := ProcessingFailed(errors.New("api key rejected"))
	assert.NotContains(t, PublicMessage(err), "api key")
	assert.Contains(t, PublicMessage(NotFound("conversation s1")), "conversation s1")
}

func TestIsSQLiteConflictError(t *testing.T) {
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
	assert.False(t, IsSQLiteConflictError(nil))
}
