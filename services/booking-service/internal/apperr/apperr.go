// Package apperr holds the error kinds shared by the availability engine, the
// storage layer and the transports. Callers wrap them with an op prefix and
// classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTimezone    = errors.New("invalid timezone")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageConflict    = errors.New("storage conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrSlotUnavailable    = errors.New("slot unavailable")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidTimezone,
	ErrInvalidInput,
	ErrStorageConflict,
	ErrStorageUnavailable,
	ErrSlotUnavailable,
	ErrInvalidTransition,
}

// detailError is a kind with a caller-facing message. Op prefixes added by
// wrapping stay out of the message.
type detailError struct {
	kind error
	msg  string
}

func (e *detailError) Error() string { return e.msg }
func (e *detailError) Unwrap() error { return e.kind }

// Invalid returns an ErrInvalidInput carrying a caller-facing detail.
func Invalid(format string, args ...any) error {
	return &detailError{kind: ErrInvalidInput, msg: ErrInvalidInput.Error() + ": " + fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity string) error {
	return &detailError{kind: ErrNotFound, msg: entity + " " + ErrNotFound.Error()}
}

// Retryable reports whether a caller may retry with backoff. Only transient
// storage failures qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTimezone), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageConflict), errors.Is(err, ErrSlotUnavailable):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to return to API clients: the innermost
// detail, or the bare kind. Unclassified errors are reported generically.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal error"
	}
	var detail *detailError
	if errors.As(err, &detail) {
		return detail.msg
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal error"
}
