package models

import (
	"errors"
	"fmt"
)

// Error kinds returned by the engine. Every expected outcome wraps one of
// these so callers can classify it with errors.Is.
var (
	ErrValidation              = errors.New("validation failed")
	ErrNotFound                = errors.New("resource does not exist")
	ErrNoSuchTransition        = errors.New("no such transition")
	ErrGuardFailure            = errors.New("transition guard failed")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidTransition       = errors.New("invalid state transition")
	ErrConflictingActiveSprint = errors.New("board already has an active sprint")
	ErrWipLimitExceeded        = errors.New("wip limit exceeded")
	ErrConcurrentModification  = errors.New("concurrent modification")
)

// SilentWrap formats as Message but unwraps to Err.
type SilentWrap struct {
	Message string
	Err     error
}

func (w SilentWrap) Error() string {
	return w.Message
}

func (w SilentWrap) Unwrap() error {
	return w.Err
}

// Wrapf returns an error that formats as the given text but unwraps as kind.
func Wrapf(kind error, format string, args ...any) error {
	if len(args) == 0 {
		return SilentWrap{Message: format, Err: kind}
	}
	return SilentWrap{Message: fmt.Sprintf(format, args...), Err: kind}
}

// NewValidationErrorf returns an error classified as ErrValidation.
func NewValidationErrorf(format string, args ...any) error {
	return Wrapf(ErrValidation, format, args...)
}

// NewNotFoundErrorf returns an error classified as ErrNotFound.
func NewNotFoundErrorf(format string, args ...any) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewForbiddenErrorf returns an error classified as ErrForbidden.
func NewForbiddenErrorf(format string, args ...any) error {
	return Wrapf(ErrForbidden, format, args...)
}

// Guard names reported by GuardFailure for the built-in rules.
// A failing requireFields rule reports the missing field key instead.
const (
	GuardComment    = "comment"
	GuardResolution = "resolution"
)

// GuardFailure reports which precondition of an existing edge was unmet.
type GuardFailure struct {
	Guard string
}

func (e *GuardFailure) Error() string {
	return fmt.Sprintf("transition guard failed: %s", e.Guard)
}

func (e *GuardFailure) Is(target error) bool {
	return target == ErrGuardFailure
}

// AsGuardFailure extracts the GuardFailure carried by err, if any.
func AsGuardFailure(err error) (*GuardFailure, bool) {
	var gf *GuardFailure
	if errors.As(err, &gf) {
		return gf, true
	}
	return nil, false
}
