// Package apperror defines the error taxonomy shared by the booking and
// billing flows. Callers classify failures with errors.As / errors.Is.
package apperror

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when an actor may not perform an action.
var ErrForbidden = errors.New("forbidden")

// ValidationError marks malformed input. Retrying never helps.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a referenced record that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// UpstreamError wraps failures talking to the payment processor, including
// timeouts and non-2xx responses. It must always be propagated.
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConflictError reports an invalid state transition. State is unchanged.
type ConflictError struct {
	From      string
	Attempted string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot %s a booking in status %s", e.Attempted, e.From)
}

// PartialFailure reports a dual write where the external side changed but
// the local commit failed. Operator action is required.
type PartialFailure struct {
	Resource   string
	LocalID    string
	ExternalID string
	Err        error
}

func (e *PartialFailure) Error() string {
	local := e.LocalID
	if local == "" {
		local = "new"
	}
	return fmt.Sprintf("partial failure: %s %s synced externally as %q but local commit failed: %v", e.Resource, local, e.ExternalID, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

// IsUpstream reports whether err is an UpstreamError.
func IsUpstream(err error) bool {
	var v *UpstreamError
	return errors.As(err, &v)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var v *ConflictError
	return errors.As(err, &v)
}

// IsPartialFailure reports whether err is a PartialFailure.
func IsPartialFailure(err error) bool {
	var v *PartialFailure
	return errors.As(err, &v)
}
