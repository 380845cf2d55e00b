package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handle payment: %w", &UpstreamError{Op: "get payment", StatusCode: 503, Err: errors.New("unavailable")})
	assert.True(t, IsUpstream(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Contains(t, wrapped.Error(), "status 503")

	assert.True(t, IsValidation(fmt.Errorf("x: %w", Validation("external_reference", "bad prefix %q", "foo"))))
	assert.True(t, IsNotFound(NotFound("plan", 12)))
	assert.True(t, IsConflict(&ConflictError{From: "declined", Attempted: "accept"}))

	cause := errors.New("db down")
	pf := &PartialFailure{Resource: "plan", ExternalID: "ext-1", Err: cause}
	assert.True(t, IsPartialFailure(fmt.Errorf("update plan: %w", pf)))
	assert.ErrorIs(t, pf, cause)
}

func TestConflictErrorMessage(t *testing.T) {
	err := &ConflictError{From: "completed", Attempted: "cancel"}
	assert.Equal(t, "cannot cancel a booking in status completed", err.Error())
}
