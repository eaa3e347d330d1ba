package apperror_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/execbox/internal/apperror"
)

func TestErrorChainSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("running request: %w", apperror.NotFound("run", "abc123"))

	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	var appErr *apperror.AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "run not found with id abc123", appErr.Message)
}

func TestValidationCarriesField(t *testing.T) {
	err := apperror.ValidationFailed("code", "code is required")

	assert.True(t, errors.Is(err, apperror.ErrValidation))
	assert.Equal(t, "code", err.Field)
	assert.Equal(t, "code is required", err.Error())
}

func TestForbidden(t *testing.T) {
	err := apperror.Forbidden("runs belong to their owner")

	assert.True(t, errors.Is(err, apperror.ErrForbidden))
	assert.False(t, errors.Is(err, apperror.ErrNotFound))
}
