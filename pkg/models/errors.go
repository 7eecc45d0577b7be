package models

import "errors"

// Failure kinds surfaced by the release workflow. Component errors wrap one of
// these so callers can classify with errors.Is.
var (
	ErrDependencyMissing   = errors.New("required dependency unavailable")
	ErrBuildFailure        = errors.New("image build failed")
	ErrAuthFailure         = errors.New("registry authentication failed")
	ErrPushFailure         = errors.New("image push failed")
	ErrRegistrationFailure = errors.New("task definition registration failed")
	ErrUpdateFailure       = errors.New("service update failed")
	ErrUnknownVersion      = errors.New("unknown version")
	ErrMissingInput        = errors.New("missing required input")
)

// KindError attaches a failure kind to an underlying cause.
type KindError struct {
	Kind error
	Op   string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns err tagged with kind, or nil when err is nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Op: op, Err: err}
}
