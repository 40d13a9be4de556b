package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	wrapped := fmt.Errorf("load complaint: %w", NewNotFound("complaint", nil))
	de := ToDomainError(wrapped)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
	assert.Equal(t, "complaint not found", de.Message)

	timeout := ToDomainError(fmt.Errorf("draft: %w", context.DeadlineExceeded))
	assert.Equal(t, "TIMEOUT", timeout.Code)

	internal := ToDomainError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)
	assert.Equal(t, "internal server error", internal.Message)
}

func TestUpstreamErrorUnwraps(t *testing.T) {
	cause := errors.New("rate limited")
	err := NewUpstreamError("draft writer", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, ToDomainError(err).HTTPStatus)
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("seed operator: %w", NewConflict("email already registered", nil))
	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
	assert.NoError(t, MapError(nil))
}
