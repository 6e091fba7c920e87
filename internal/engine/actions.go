package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"coinline/internal/dispatch"
	"coinline/internal/domain"
	"coinline/internal/engine/auth"
	"coinline/internal/metrics"
)

// CompleteAction marks one action completed by actor and merges patch into its
// data. Completing it again overwrites the stamp and merges the new patch.
func (e *Engine) CompleteAction(ctx context.Context, taskID, actionID string, actor domain.Actor, patch domain.ActionData) (domain.Task, error) {
	_, after, err := e.mutate(ctx, "complete_action", taskID, func(t *domain.Task) error {
		if err := auth.RequireAssigneeOrAdmin(actor, *t); err != nil {
			return err
		}
		actions, err := e.ledger().Complete(t.ID, t.Actions, actionID, actor.ID, e.nowMillis(), patch)
		if err != nil {
			return err
		}
		t.Actions = actions
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.afterActionChange(ctx, after, actionID, actor, ActivityActionCompleted, "complete")
	return after, nil
}

// UncompleteAction clears the completion stamp of one action and keeps its data.
func (e *Engine) UncompleteAction(ctx context.Context, taskID, actionID string, actor domain.Actor) (domain.Task, error) {
	_, after, err := e.mutate(ctx, "uncomplete_action", taskID, func(t *domain.Task) error {
		if err := auth.RequireAssigneeOrAdmin(actor, *t); err != nil {
			return err
		}
		actions, err := e.ledger().Uncomplete(t.ID, t.Actions, actionID)
		if err != nil {
			return err
		}
		t.Actions = actions
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.afterActionChange(ctx, after, actionID, actor, ActivityActionUncompleted, "uncomplete")
	return after, nil
}

func (e *Engine) afterActionChange(ctx context.Context, t domain.Task, actionID string, actor domain.Actor, activityType, op string) {
	metrics.RecordActionOp(ctx, op)
	title := ""
	for _, a := range t.Actions {
		if a.ID == actionID {
			title = a.Title
			break
		}
	}
	e.Log.WithFields(logrus.Fields{"task_id": t.ID, "action_id": actionID, "op": op}).Debug("action updated")
	e.dispatch(ctx, dispatch.Effects{
		Activity: e.activity(ctx, t, actor.ID, activityType, "", map[string]any{"action_id": actionID, "action_title": title}),
	})
}
