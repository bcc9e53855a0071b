package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	t.Run("Should capture message, code and details", func(t *testing.T) {
		cause := errors.New("boom")
		err := NewError(cause, CodeStepFailed, map[string]any{"stepId": "a"})

		assert.Equal(t, "boom", err.Error())
		assert.Equal(t, CodeStepFailed, err.Code)
		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("Should default message when err is nil", func(t *testing.T) {
		err := NewError(nil, CodeClaimRace, nil)
		assert.Equal(t, "unknown error", err.Error())
	})
}

func TestError_AsMap(t *testing.T) {
	t.Run("Should return nil for an empty error", func(t *testing.T) {
		var err *Error
		assert.Nil(t, err.AsMap())
	})

	t.Run("Should render fields into a map", func(t *testing.T) {
		err := NewError(errors.New("x"), CodeInvalidWorkflow, map[string]any{"field": "steps"})
		m := err.AsMap()
		require.NotNil(t, m)
		assert.Equal(t, "x", m["message"])
		assert.Equal(t, CodeInvalidWorkflow, m["code"])
	})
}
