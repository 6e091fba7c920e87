// Package auth holds the actor checks applied by the engine.
package auth

import (
	"fmt"

	"coinline/internal/domain"
)

// ForbiddenError indicates the actor may not perform the operation.
type ForbiddenError struct {
	ActorID string
	Reason  string
}

func (e ForbiddenError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("forbidden: %s", e.Reason)
	}
	return fmt.Sprintf("actor %s forbidden: %s", e.ActorID, e.Reason)
}

// RequireActor rejects anonymous calls.
func RequireActor(actor domain.Actor) error {
	if actor.ID == "" {
		return ForbiddenError{Reason: "actor required"}
	}
	return nil
}

func RequireAdmin(actor domain.Actor) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return ForbiddenError{ActorID: actor.ID, Reason: "admin role required"}
	}
	return nil
}

// RequireAssignee allows only the task's assignee. Admins get no bypass.
func RequireAssignee(actor domain.Actor, t domain.Task) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if t.AssigneeID == "" || actor.ID != t.AssigneeID {
		return ForbiddenError{ActorID: actor.ID, Reason: fmt.Sprintf("only the assignee of task %s may do this", t.ID)}
	}
	return nil
}

func RequireAssigneeOrAdmin(actor domain.Actor, t domain.Task) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if actor.IsAdmin() || (t.AssigneeID != "" && actor.ID == t.AssigneeID) {
		return nil
	}
	return ForbiddenError{ActorID: actor.ID, Reason: fmt.Sprintf("assignee or admin required for task %s", t.ID)}
}

func RequireCreatorOrAdmin(actor domain.Actor, t domain.Task) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if actor.IsAdmin() || actor.ID == t.CreatorID {
		return nil
	}
	return ForbiddenError{ActorID: actor.ID, Reason: fmt.Sprintf("creator or admin required for task %s", t.ID)}
}
