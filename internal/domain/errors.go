package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	ErrModelNotFound     = errors.New("model not found")
	ErrModeMismatch      = errors.New("endpoint incompatible with model mode")
	ErrNoUsableDevice    = errors.New("no launch variant has all required devices online")
	ErrInsufficientMemory = errors.New("insufficient device memory to start model")
	ErrStartTimeout      = errors.New("model did not become ready before the deadline")
	ErrBackendUnavailable = errors.New("backend is not available")
	ErrBackendError      = errors.New("backend request failed")
	ErrTierConflict      = errors.New("tier index already exists")
	ErrLastTierDeletion  = errors.New("cannot delete the last remaining tier")
	ErrPricingInvalid    = errors.New("pricing configuration invalid")
	ErrOrphanProtected   = errors.New("model is still in the catalogue, cannot drop its data")
	ErrAliasConflict     = errors.New("alias already bound to another model")
)

// Error is the typed error carried across the HTTP boundary. It wraps one of
// the sentinels above so that internal callers can still use errors.Is/As,
// while giving handlers a machine-readable Kind and a human Message.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps the error kind to an HTTP status, per the error-handling
// design: 400 for validation, 404 for not-found, 503 for unavailable/timeout,
// 500 otherwise.
func (e *Error) StatusCode() int {
	switch {
	case errors.Is(e.Err, ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(e.Err, ErrModeMismatch),
		errors.Is(e.Err, ErrTierConflict),
		errors.Is(e.Err, ErrLastTierDeletion),
		errors.Is(e.Err, ErrPricingInvalid),
		errors.Is(e.Err, ErrOrphanProtected),
		errors.Is(e.Err, ErrAliasConflict):
		return http.StatusBadRequest
	case errors.Is(e.Err, ErrNoUsableDevice),
		errors.Is(e.Err, ErrInsufficientMemory),
		errors.Is(e.Err, ErrStartTimeout),
		errors.Is(e.Err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func wrap(kind string, sentinel error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: sentinel}
}

func NotFound(format string, args ...any) *Error {
	return wrap("ModelNotFound", ErrModelNotFound, format, args...)
}

func ModeMismatch(format string, args ...any) *Error {
	return wrap("ModeMismatch", ErrModeMismatch, format, args...)
}

func NoUsableDevice(format string, args ...any) *Error {
	return wrap("NoUsableDevice", ErrNoUsableDevice, format, args...)
}

func InsufficientMemory(format string, args ...any) *Error {
	return wrap("InsufficientMemory", ErrInsufficientMemory, format, args...)
}

func StartTimeout(format string, args ...any) *Error {
	return wrap("StartTimeout", ErrStartTimeout, format, args...)
}

func BackendUnavailable(format string, args ...any) *Error {
	return wrap("BackendUnavailable", ErrBackendUnavailable, format, args...)
}

func BackendError(format string, args ...any) *Error {
	return wrap("BackendError", ErrBackendError, format, args...)
}

func TierConflict(format string, args ...any) *Error {
	return wrap("TierConflict", ErrTierConflict, format, args...)
}

func LastTierDeletion(format string, args ...any) *Error {
	return wrap("LastTierDeletion", ErrLastTierDeletion, format, args...)
}

func PricingInvalid(format string, args ...any) *Error {
	return wrap("PricingInvalid", ErrPricingInvalid, format, args...)
}

func OrphanProtected(format string, args ...any) *Error {
	return wrap("OrphanProtected", ErrOrphanProtected, format, args...)
}
