package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned by stores when a write carries a stale version.
	ErrVersionConflict = errors.New("version conflict")
)

// NotFoundError reports a missing task, template or project.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ActionNotFoundError reports an action id absent from its task.
type ActionNotFoundError struct {
	TaskID   string
	ActionID string
}

func (e ActionNotFoundError) Error() string {
	return fmt.Sprintf("action %s not found in task %s", e.ActionID, e.TaskID)
}

func (e ActionNotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError reports a status change absent from the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task status transition %s -> %s", e.From, e.To)
}

// GuardNotSatisfiedError reports required actions still incomplete at submission.
type GuardNotSatisfiedError struct {
	TaskID  string
	Missing []string
}

func (e GuardNotSatisfiedError) Error() string {
	return fmt.Sprintf("task %s has incomplete required actions: %s", e.TaskID, strings.Join(e.Missing, ", "))
}

// ConflictError reports that a read-modify-write kept losing the version race.
type ConflictError struct {
	TaskID   string
	Attempts int
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("task %s modified concurrently; gave up after %d attempts", e.TaskID, e.Attempts)
}

func (e ConflictError) Is(target error) bool { return target == ErrVersionConflict }

// PersistenceError wraps an underlying store failure. The outcome of a failed
// write is unknown until the task is read again.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// ValidationError reports caller input that cannot be accepted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
