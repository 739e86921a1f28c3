package domain

import (
	"context"
	"errors"
)

// Error taxonomy. Every error returned by the managers wraps exactly one of
// the kind sentinels below so callers can branch with errors.Is or KindOf.
var (
	// ErrValidation is returned for bad input. Never retried.
	ErrValidation = errors.New("washline: validation failed")

	// ErrPermissionDenied is returned when the session lacks a capability.
	ErrPermissionDenied = errors.New("washline: permission denied")

	// ErrNetworkUnavailable marks a remote call that could not reach the store.
	// Managers never surface it; the mutation is queued instead.
	ErrNetworkUnavailable = errors.New("washline: network unavailable")

	// ErrRemoteValidation is returned when the remote store rejects the data.
	ErrRemoteValidation = errors.New("washline: remote validation failed")

	// ErrNotFound is returned when the target row does not exist.
	ErrNotFound = errors.New("washline: not found")
)

// Domain specific validation errors. All of them wrap ErrValidation.
var (
	ErrDuplicateCode       = wrapValidation("customer code already exists")
	ErrDuplicateBarcode    = wrapValidation("package barcode already exists")
	ErrCustomerHasPackages = wrapValidation("customer still has packages")
	ErrUnknownCustomer     = wrapValidation("customer does not exist")
	ErrInsufficientStock   = wrapValidation("insufficient stock")
	ErrInvalidTransition   = wrapValidation("invalid status transition")
	ErrContainerClosed     = wrapValidation("container is not active")
	ErrContainerNotEmpty   = wrapValidation("container still has packages")
)

// Lifecycle errors used by the embeddable app and the coordinator.
var (
	ErrAlreadyRunning = errors.New("washline: already running")
	ErrNotRunning     = errors.New("washline: not running")
	ErrInvalidConfig  = errors.New("washline: invalid configuration")
	ErrQueueCorrupted = errors.New("washline: persisted queue corrupted")
)

type validationError struct{ msg string }

func (e *validationError) Error() string { return "washline: " + e.msg }
func (e *validationError) Unwrap() error { return ErrValidation }

func wrapValidation(msg string) error { return &validationError{msg: msg} }

// ErrorKind classifies an error into the taxonomy above.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindPermissionDenied
	KindNetworkUnavailable
	KindRemoteValidation
	KindNotFound
	KindUnknown
)

// String returns a human-readable representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindRemoteValidation:
		return "remote_validation"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of err. Context cancellation and deadline errors
// count as NetworkUnavailable: a timed-out remote call is queued, not lost.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNetworkUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindNetworkUnavailable
	case errors.Is(err, ErrRemoteValidation):
		return KindRemoteValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// Retryable reports whether a failed remote call should be queued for replay.
func Retryable(err error) bool {
	return KindOf(err) == KindNetworkUnavailable
}
