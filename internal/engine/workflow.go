package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"coinline/internal/dispatch"
	"coinline/internal/domain"
	"coinline/internal/engine/auth"
	"coinline/internal/ledger"
	"coinline/internal/metrics"
)

type actorRule int

const (
	byAssignee actorRule = iota
	byAdmin
)

type transitionRule struct {
	actor actorRule
	// guarded transitions require every required action to be completed.
	guarded bool
}

func ensureTaskTransition(from, to domain.Status) (transitionRule, error) {
	switch to {
	case domain.StatusInProgress:
		if from == domain.StatusPending {
			return transitionRule{actor: byAssignee}, nil
		}
	case domain.StatusWaitingApproval:
		if from == domain.StatusPending || from == domain.StatusInProgress {
			return transitionRule{actor: byAssignee, guarded: true}, nil
		}
	case domain.StatusCompleted, domain.StatusPending:
		if from == domain.StatusWaitingApproval {
			return transitionRule{actor: byAdmin}, nil
		}
	case domain.StatusBlocked:
		if from == domain.StatusPending || from == domain.StatusInProgress || from == domain.StatusWaitingApproval {
			return transitionRule{actor: byAdmin}, nil
		}
	}
	return transitionRule{}, domain.InvalidTransitionError{From: from, To: to}
}

// Transition moves a task to another status. The transition table is checked
// first, then the actor, then the required-action guard; nothing is written
// when any of them fails.
func (e *Engine) Transition(ctx context.Context, taskID string, to domain.Status, actor domain.Actor) (domain.Task, error) {
	if !to.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	before, after, err := e.mutate(ctx, "transition", taskID, func(t *domain.Task) error {
		rule, err := ensureTaskTransition(t.Status, to)
		if err != nil {
			return err
		}
		switch rule.actor {
		case byAssignee:
			err = auth.RequireAssignee(actor, *t)
		case byAdmin:
			err = auth.RequireAdmin(actor)
		}
		if err != nil {
			return err
		}
		if rule.guarded {
			if missing := ledger.MissingRequired(t.Actions); len(missing) > 0 {
				return domain.GuardNotSatisfiedError{TaskID: t.ID, Missing: missing}
			}
		}
		if t.Status == domain.StatusWaitingApproval {
			t.PendingApprovalAnnouncementID = ""
		}
		if to == domain.StatusWaitingApproval {
			t.PendingApprovalAnnouncementID = e.NewID()
		}
		t.Status = to
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	metrics.RecordTransition(ctx, string(before.Status), string(after.Status))
	e.Log.WithFields(logrus.Fields{"task_id": taskID, "from": before.Status, "to": after.Status, "actor": actor.ID}).Info("task transitioned")
	e.dispatch(ctx, e.transitionEffects(ctx, before, after, actor))
	return after, nil
}

func (e *Engine) transitionEffects(ctx context.Context, before, after domain.Task, actor domain.Actor) dispatch.Effects {
	var fx dispatch.Effects
	switch {
	case after.Status == domain.StatusInProgress:
		fx.Chat = e.chat("", after, domain.MessageTaskStarted,
			fmt.Sprintf("%s started working on \"%s\"", actor.ID, after.Title))
		fx.Activity = e.activity(ctx, after, actor.ID, ActivityTaskStarted, after.Status, nil)

	case after.Status == domain.StatusWaitingApproval:
		fx.Chat = e.chat(after.PendingApprovalAnnouncementID, after, domain.MessageTaskSubmission,
			fmt.Sprintf("%s submitted \"%s\" for approval (%d coins on approval)", actor.ID, after.Title, after.CoinsReward))
		fx.Activity = e.activity(ctx, after, actor.ID, ActivityTaskSubmitted, after.Status, nil)
		fx.Notifications = e.notification(after.CreatorID, NotificationTaskSubmitted, "Task submitted for approval",
			fmt.Sprintf("\"%s\" is waiting for your approval", after.Title), after.ID)

	case before.Status == domain.StatusWaitingApproval && after.Status == domain.StatusCompleted:
		fx.Chat = e.chat("", after, domain.MessageTaskApproval,
			fmt.Sprintf("\"%s\" was approved; %s earned %d coins", after.Title, after.AssigneeID, after.CoinsReward))
		e.quote(ctx, fx.Chat, after, before.PendingApprovalAnnouncementID)
		fx.Activity = e.activity(ctx, after, actor.ID, ActivityTaskApproved, after.Status, map[string]any{"coins": after.CoinsReward})
		fx.Notifications = e.notification(after.AssigneeID, NotificationTaskApproved, "Task approved",
			fmt.Sprintf("\"%s\" was approved. You earned %d coins", after.Title, after.CoinsReward), after.ID)

	case before.Status == domain.StatusWaitingApproval && after.Status == domain.StatusPending:
		fx.Chat = e.chat("", after, domain.MessageTaskRejection,
			fmt.Sprintf("\"%s\" was sent back for more work", after.Title))
		e.quote(ctx, fx.Chat, after, before.PendingApprovalAnnouncementID)
		fx.Activity = e.activity(ctx, after, actor.ID, ActivityTaskRejected, after.Status, nil)
		fx.Notifications = e.notification(after.AssigneeID, NotificationTaskRejected, "Task rejected",
			fmt.Sprintf("\"%s\" needs more work before it can be approved", after.Title), after.ID)

	case after.Status == domain.StatusBlocked:
		fx.Chat = e.chat("", after, domain.MessageTaskBlocked,
			fmt.Sprintf("\"%s\" was blocked by %s", after.Title, actor.ID))
		fx.Activity = e.activity(ctx, after, actor.ID, ActivityTaskBlocked, after.Status, map[string]any{"previous_status": string(before.Status)})
		fx.Notifications = e.notification(after.AssigneeID, NotificationTaskBlocked, "Task blocked",
			fmt.Sprintf("\"%s\" has been blocked", after.Title), after.ID)
	}
	return fx
}
