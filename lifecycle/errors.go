package lifecycle

import (
	"errors"
	"fmt"
)

// Error taxonomy for lifecycle operations. Controllers map these onto HTTP
// status codes; anything not wrapping one of them is an infrastructure error.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrConflict           = errors.New("conflict: another update won the race")
	ErrPreconditionFailed = errors.New("precondition failed")
)

// InvalidTransitionError reports both the attempted and the current status so
// the caller can see why the transition was refused.
type InvalidTransitionError struct {
	Entity    string // "donation" or "request"
	Attempted string
	Current   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move %s from %q to %q", e.Entity, e.Current, e.Attempted)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
