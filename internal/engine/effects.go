package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"coinline/internal/domain"
)

// Activity and notification types.
const (
	ActivityTaskCreated       = "task_created"
	ActivityTaskUpdated       = "task_updated"
	ActivityTaskDeleted       = "task_deleted"
	ActivityTaskStarted       = "task_started"
	ActivityTaskSubmitted     = "task_submitted"
	ActivityTaskApproved      = "task_approved"
	ActivityTaskRejected      = "task_rejected"
	ActivityTaskBlocked       = "task_blocked"
	ActivityActionCompleted   = "action_completed"
	ActivityActionUncompleted = "action_uncompleted"
	ActivityCommentAdded      = "comment_added"
	NotificationTaskAssigned  = "task_assigned"
	NotificationTaskComment   = "task_comment"
	NotificationTaskSubmitted = "task_submitted"
	NotificationTaskApproved  = "task_approved"
	NotificationTaskRejected  = "task_rejected"
	NotificationTaskBlocked   = "task_blocked"
)

func (e *Engine) activity(ctx context.Context, t domain.Task, actorID, typ string, newStatus domain.Status, extra map[string]any) *domain.ActivityEntry {
	return &domain.ActivityEntry{
		TS:          e.nowMillis(),
		ActorID:     actorID,
		Type:        typ,
		ProjectID:   t.ProjectID,
		ProjectName: e.projectName(ctx, t.ProjectID),
		TaskID:      t.ID,
		TaskName:    t.Title,
		NewStatus:   newStatus,
		Extra:       extra,
	}
}

// projectName falls back to the id when the project is not registered.
func (e *Engine) projectName(ctx context.Context, projectID string) string {
	p, err := e.Store.GetProject(ctx, projectID)
	if err != nil || p.Name == "" {
		return projectID
	}
	return p.Name
}

// notification returns nil when there is nobody to notify.
func (e *Engine) notification(recipientID, typ, title, message, taskID string) []domain.Notification {
	if recipientID == "" {
		return nil
	}
	return []domain.Notification{{
		ID:              e.NewID(),
		RecipientID:     recipientID,
		Type:            typ,
		Title:           title,
		Message:         message,
		RelatedEntityID: taskID,
		CreatedAt:       e.nowMillis(),
	}}
}

func (e *Engine) chat(id string, t domain.Task, messageType, content string) *domain.ChatMessage {
	if id == "" {
		id = e.NewID()
	}
	return &domain.ChatMessage{
		ID:          id,
		ProjectID:   t.ProjectID,
		Author:      domain.SystemAuthor,
		Content:     content,
		Timestamp:   e.nowMillis(),
		MessageType: messageType,
	}
}

// quote attaches the submission announcement to a decision message. A missing
// announcement only drops the correlation.
func (e *Engine) quote(ctx context.Context, msg *domain.ChatMessage, t domain.Task, announcementID string) {
	log := e.Log.WithFields(logrus.Fields{"task_id": t.ID, "announcement_id": announcementID})
	if announcementID == "" {
		log.Warn("no submission announcement recorded; decision will not quote it")
		return
	}
	if e.History == nil {
		log.Warn("chat history unavailable; decision will not quote the submission")
		return
	}
	orig, err := e.History.Message(ctx, t.ProjectID, announcementID)
	if err != nil {
		log.WithError(err).Warn("submission announcement not found; decision will not quote it")
		return
	}
	msg.OriginalMessageID = orig.ID
	msg.QuotedMessage = &domain.QuotedMessage{Content: orig.Content, Author: orig.Author}
}
