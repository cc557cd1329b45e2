package snapshot

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindSourceUnavailable ErrorKind = "source_unavailable"
	KindInvalidImage      ErrorKind = "invalid_image"
	KindWriteFailure      ErrorKind = "write_failure"
	KindConfigurationGap  ErrorKind = "configuration_gap"
)

var (
	// ErrSourceUnavailable matches network failures, non-2xx responses and
	// timeouts that exhausted every retry.
	ErrSourceUnavailable = &Error{Kind: KindSourceUnavailable, Slot: -1, Message: "source unavailable"}

	// ErrInvalidImage matches bodies that fail size, signature or decode checks.
	ErrInvalidImage = &Error{Kind: KindInvalidImage, Slot: -1, Message: "invalid image"}

	// ErrWriteFailure matches a publish that could not complete.
	ErrWriteFailure = &Error{Kind: KindWriteFailure, Slot: -1, Message: "write failure"}

	// ErrConfigurationGap matches a slot with no configured camera.
	ErrConfigurationGap = &Error{Kind: KindConfigurationGap, Slot: -1, Message: "no camera configured"}
)

// Error is a typed pipeline error. Slot is -1 when the error is not tied to a
// grid slot.
type Error struct {
	Kind    ErrorKind
	Slot    int
	Message string
	Err     error
}

func newError(kind ErrorKind, slot int, msg string, err error) *Error {
	return &Error{Kind: kind, Slot: slot, Message: msg, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Slot >= 0 {
		prefix = fmt.Sprintf("slot %d: %s", e.Slot, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidImage) and friends match on kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Reason is a short, human-readable cause suitable for a placeholder caption.
func Reason(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}
