package engine

import (
	"errors"
	"fmt"
	"strings"
)

// PermissionDeniedMessage is the exact rejection text surfaced to clients
// when an actor lacks the permission a transition requires.
const PermissionDeniedMessage = "You do not have permission to execute this transition."

var (
	// ErrNoPipeline means no active pipeline applies to the entity. This is a
	// valid outcome, not a failure.
	ErrNoPipeline = errors.New("no pipeline applies to this entity")
	// ErrInvalidTransition covers both a transition whose source state does
	// not match the entity's current state and the concurrent-execution race.
	ErrInvalidTransition = errors.New("transition is not valid from the current state")
	// ErrPipelineMismatch means the transition exists but belongs to a
	// different pipeline than the entity, or is inactive.
	ErrPipelineMismatch = errors.New("transition does not belong to the entity's pipeline")
	ErrPermissionDenied = errors.New(PermissionDeniedMessage)
	ErrCommentRequired  = errors.New("a comment is required for this transition")
)

// GuardFailedError carries every guard rejection reason for the attempted
// transition.
type GuardFailedError struct {
	Reasons []string
}

func (e *GuardFailedError) Error() string {
	return "transition rejected by guards: " + strings.Join(e.Reasons, "; ")
}

// ActionFailedError reports a synchronous action failure. RolledBack tells
// the caller whether the state change was undone (on_failure=abort) or kept.
type ActionFailedError struct {
	ActionID   string
	ActionType string
	RolledBack bool
	Err        error
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("action %s (%s) failed: %v", e.ActionID, e.ActionType, e.Err)
}

func (e *ActionFailedError) Unwrap() error { return e.Err }
