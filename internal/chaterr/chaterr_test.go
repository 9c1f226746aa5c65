package chaterr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsValidation(t *testing.T) {
	err := &ValidationError{Field: "content", Reason: "must not be empty"}
	if !IsValidation(err) {
		t.Error("IsValidation should match a ValidationError")
	}
	if !IsValidation(fmt.Errorf("send: %w", err)) {
		t.Error("IsValidation should match through wrapping")
	}
	if IsValidation(errors.New("other")) {
		t.Error("IsValidation should not match an unrelated error")
	}
}

func TestIsConflict(t *testing.T) {
	conflict := &PersistenceError{Op: "create room", Conflict: true, Err: errors.New("UNIQUE constraint failed")}
	if !IsConflict(conflict) {
		t.Error("IsConflict should match a conflict PersistenceError")
	}
	plain := &PersistenceError{Op: "insert message", Err: errors.New("disk I/O error")}
	if IsConflict(plain) {
		t.Error("IsConflict should not match a non-conflict PersistenceError")
	}
	if IsNotFound(conflict) || IsValidation(conflict) {
		t.Error("categories must not overlap")
	}
}

func TestIsNotFound(t *testing.T) {
	err := &NotFoundError{Kind: "room", ID: "r1"}
	if !IsNotFound(err) {
		t.Error("IsNotFound should match a NotFoundError")
	}
	if !IsNotFound(fmt.Errorf("get: %w", err)) {
		t.Error("IsNotFound should match through wrapping")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("database is locked")
	pe := &PersistenceError{Op: "touch room", Err: cause}
	if !errors.Is(pe, cause) {
		t.Error("PersistenceError should unwrap to its cause")
	}
	se := &SubscriptionError{Channel: "change.chat_messages.r1", Err: cause}
	if !errors.Is(se, cause) {
		t.Error("SubscriptionError should unwrap to its cause")
	}
}
