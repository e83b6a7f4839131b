// Package errors is the error toolkit for recipebox.
//
// It re-exports github.com/cockroachdb/errors so every package gets stack traces,
// wrapping, hints and details from one import, and it defines the sentinels the
// upload pipeline and HTTP layer classify failures with.
//
//	if err := store.Create(ctx, rec); err != nil {
//	    return errors.Wrap(err, "persist recipe")
//	}
//
//	if errors.Is(err, errors.ErrNotARecipe) {
//	    // semantic rejection, not an outage
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing hints and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Sentinels. Wrap or Mark them to add context while keeping errors.Is working.
var (
	// ErrUnauthorized means the caller presented no usable identity.
	ErrUnauthorized = New("unauthorized")

	// ErrInvalidRequest means the request was malformed (bad upload, bad id).
	ErrInvalidRequest = New("invalid request")

	// ErrNotFound means the requested record does not exist for this caller.
	ErrNotFound = New("not found")

	// ErrServiceUnavailable means a collaborator could not be reached.
	ErrServiceUnavailable = New("service unavailable")

	// ErrUpstream means a collaborator answered but reported failure.
	ErrUpstream = New("upstream failure")

	// ErrNotARecipe means the verification service looked at the image and
	// decided it does not contain a recipe.
	ErrNotARecipe = New("image is not a recipe")

	// ErrValidation means a record failed validation before persistence.
	ErrValidation = New("validation failed")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequest reports whether err is or wraps ErrInvalidRequest.
func IsInvalidRequest(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsServiceUnavailable reports whether err is or wraps ErrServiceUnavailable.
func IsServiceUnavailable(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message.
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// NewValidationError creates a validation error with a formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrValidation)
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}
