// Package chaterr defines the error taxonomy shared by the adapters
// and the chat service. Callers branch on category with the Is*
// helpers rather than matching error strings.
package chaterr

import (
	"errors"
	"fmt"
)

// ValidationError reports input rejected before any backend call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a storage failure. Conflict marks uniqueness
// violations so idempotent callers can recover by re-fetching.
type PersistenceError struct {
	Op       string
	Conflict bool
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.Conflict {
		return fmt.Sprintf("%s: conflict: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SubscriptionError reports a realtime channel that could not be
// established.
type SubscriptionError struct {
	Channel string
	Err     error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", e.Channel, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// NotFoundError covers both a missing entity and one the caller is
// not allowed to see; the two are indistinguishable on purpose.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a PersistenceError caused by a
// uniqueness violation.
func IsConflict(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Conflict
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
