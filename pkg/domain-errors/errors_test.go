package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("HasCode matches the outermost coded error", func(t *testing.T) {
		err := New(CodeNotAdmin, "caller is not the administrator")
		assert.True(t, HasCode(err, CodeNotAdmin))
		assert.False(t, HasCode(err, CodeUnauthorized))
	})

	t.Run("HasCode sees through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("mint: %w", New(CodeInvalidCourse, "course must not be empty"))
		assert.True(t, Is(err, CodeInvalidCourse))
		assert.Equal(t, CodeInvalidCourse, CodeOf(err))
		assert.Equal(t, "course must not be empty", Message(err))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Empty(t, Message(err))
	})

	t.Run("Wrap keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to load certificate")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to load certificate: connection reset", err.Error())
	})
}
