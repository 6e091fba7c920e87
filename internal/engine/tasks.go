package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"coinline/internal/dispatch"
	"coinline/internal/domain"
	"coinline/internal/engine/auth"
	"coinline/internal/reward"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID              string
	ProjectID       string
	Title           string
	Description     string
	AssigneeID      string
	Priority        domain.Priority
	DifficultyLevel float64
	DueDate         *int64
	Actions         []ActionInput
	Attachments     []string
	Actor           domain.Actor
}

// ActionInput describes one action of a new task. An empty ID gets a fresh one.
type ActionInput struct {
	ID       string
	Title    string
	Type     string
	Required bool
	Data     domain.ActionData
}

// CreateTask stores a new pending task. Its coin reward is fixed here from
// the reward constants configured at this moment.
func (e *Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if err := auth.RequireActor(opts.Actor); err != nil {
		return domain.Task{}, err
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "required"}
	}
	if strings.TrimSpace(opts.ProjectID) == "" {
		return domain.Task{}, domain.ValidationError{Field: "project_id", Reason: "required"}
	}
	if opts.DifficultyLevel <= 0 {
		return domain.Task{}, domain.ValidationError{Field: "difficulty_level", Reason: "must be greater than 0"}
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", opts.Priority)}
	}
	actions := make([]domain.Action, 0, len(opts.Actions))
	for _, in := range opts.Actions {
		id := in.ID
		if id == "" {
			id = e.NewID()
		}
		actions = append(actions, domain.Action{
			ID:       id,
			Title:    in.Title,
			Type:     in.Type,
			Required: in.Required,
			Data:     in.Data.Clone(),
		})
	}
	if err := e.ledger().Validate(actions); err != nil {
		return domain.Task{}, err
	}
	id := opts.ID
	if id == "" {
		id = e.NewID()
	}
	attachments := append([]string{}, opts.Attachments...)
	now := e.nowMillis()
	t := domain.Task{
		ID:              id,
		Title:           opts.Title,
		Description:     opts.Description,
		ProjectID:       opts.ProjectID,
		AssigneeID:      opts.AssigneeID,
		CreatorID:       opts.Actor.ID,
		Status:          domain.StatusPending,
		Priority:        opts.Priority,
		DifficultyLevel: opts.DifficultyLevel,
		CoinsReward:     reward.ForTask(e.Config.Rewards, opts.DifficultyLevel),
		DueDate:         opts.DueDate,
		Actions:         actions,
		Comments:        []domain.Comment{},
		Attachments:     attachments,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.Store.InsertTask(ctx, t); err != nil {
		return domain.Task{}, domain.PersistenceError{Op: "insert task", Err: err}
	}
	e.Log.WithFields(logrus.Fields{"task_id": t.ID, "project_id": t.ProjectID, "coins": t.CoinsReward}).Info("task created")
	e.dispatch(ctx, dispatch.Effects{
		Activity: e.activity(ctx, t, opts.Actor.ID, ActivityTaskCreated, t.Status, map[string]any{"coins": t.CoinsReward}),
		Notifications: e.notification(t.AssigneeID, NotificationTaskAssigned, "New task assigned",
			fmt.Sprintf("You were assigned \"%s\" worth %d coins", t.Title, t.CoinsReward), t.ID),
	})
	return t, nil
}

// CreateTaskFromTemplate creates a task whose actions are copied from a
// template, each with a fresh id. Actions in opts are ignored.
func (e *Engine) CreateTaskFromTemplate(ctx context.Context, opts TaskCreateOptions, templateID string) (domain.Task, error) {
	tpl, err := e.GetTemplate(ctx, templateID)
	if err != nil {
		return domain.Task{}, err
	}
	opts.Actions = make([]ActionInput, 0, len(tpl.Actions))
	for _, a := range tpl.Actions {
		opts.Actions = append(opts.Actions, ActionInput{Title: a.Title, Type: a.Type, Required: a.Required, Data: a.Data})
	}
	return e.CreateTask(ctx, opts)
}

func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.loadTask(ctx, id)
}

// TaskPatch lists the editable fields of a task. Status is not among them;
// it only changes through Transition.
type TaskPatch struct {
	Title           *string
	Description     *string
	AssigneeID      *string
	Priority        *domain.Priority
	DifficultyLevel *float64
	DueDate         *int64
	ClearDueDate    bool
	Attachments     *[]string
}

func (p TaskPatch) fields() []string {
	var out []string
	if p.Title != nil {
		out = append(out, "title")
	}
	if p.Description != nil {
		out = append(out, "description")
	}
	if p.AssigneeID != nil {
		out = append(out, "assignee_id")
	}
	if p.Priority != nil {
		out = append(out, "priority")
	}
	if p.DifficultyLevel != nil {
		out = append(out, "difficulty_level")
	}
	if p.DueDate != nil || p.ClearDueDate {
		out = append(out, "due_date")
	}
	if p.Attachments != nil {
		out = append(out, "attachments")
	}
	return out
}

// UpdateTask edits task fields. The coin reward stays as computed at creation
// even when the difficulty changes.
func (e *Engine) UpdateTask(ctx context.Context, id string, patch TaskPatch, actor domain.Actor) (domain.Task, error) {
	fields := patch.fields()
	if len(fields) == 0 {
		return domain.Task{}, domain.ValidationError{Reason: "no fields to update"}
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *patch.Priority)}
	}
	if patch.DifficultyLevel != nil && *patch.DifficultyLevel <= 0 {
		return domain.Task{}, domain.ValidationError{Field: "difficulty_level", Reason: "must be greater than 0"}
	}
	before, after, err := e.mutate(ctx, "update", id, func(t *domain.Task) error {
		if err := auth.RequireCreatorOrAdmin(actor, *t); err != nil {
			return err
		}
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.AssigneeID != nil {
			t.AssigneeID = *patch.AssigneeID
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.DifficultyLevel != nil {
			t.DifficultyLevel = *patch.DifficultyLevel
		}
		if patch.ClearDueDate {
			t.DueDate = nil
		} else if patch.DueDate != nil {
			due := *patch.DueDate
			t.DueDate = &due
		}
		if patch.Attachments != nil {
			t.Attachments = append([]string{}, (*patch.Attachments)...)
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	fx := dispatch.Effects{
		Activity: e.activity(ctx, after, actor.ID, ActivityTaskUpdated, "", map[string]any{"fields": fields}),
	}
	if after.AssigneeID != before.AssigneeID {
		fx.Notifications = e.notification(after.AssigneeID, NotificationTaskAssigned, "New task assigned",
			fmt.Sprintf("You were assigned \"%s\" worth %d coins", after.Title, after.CoinsReward), after.ID)
	}
	e.dispatch(ctx, fx)
	return after, nil
}

// ListTasks returns one page of matching tasks, newest first.
func (e *Engine) ListTasks(ctx context.Context, f domain.TaskFilter) (domain.TaskPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return domain.TaskPage{}, domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return domain.TaskPage{}, domain.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", f.Priority)}
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	items, total, err := e.Store.ListTasks(ctx, f)
	if err != nil {
		return domain.TaskPage{}, domain.PersistenceError{Op: "list tasks", Err: err}
	}
	if items == nil {
		items = []domain.Task{}
	}
	return domain.TaskPage{
		Items:      items,
		TotalCount: total,
		TotalPages: (total + f.Limit - 1) / f.Limit,
		Page:       f.Page,
		Limit:      f.Limit,
	}, nil
}

// DeleteTask removes a task regardless of its status. Admin only.
func (e *Engine) DeleteTask(ctx context.Context, id string, actor domain.Actor) error {
	if err := auth.RequireAdmin(actor); err != nil {
		return err
	}
	t, err := e.loadTask(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Store.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundError{Kind: "task", ID: id}
		}
		return domain.PersistenceError{Op: "delete task", Err: err}
	}
	e.Log.WithFields(logrus.Fields{"task_id": id, "actor": actor.ID}).Info("task deleted")
	e.dispatch(ctx, dispatch.Effects{
		Activity: e.activity(ctx, t, actor.ID, ActivityTaskDeleted, "", nil),
	})
	return nil
}

// AppendComment adds a comment from any actor. The assignee is notified unless
// they wrote it.
func (e *Engine) AppendComment(ctx context.Context, taskID string, actor domain.Actor, text string) (domain.Comment, error) {
	if err := auth.RequireActor(actor); err != nil {
		return domain.Comment{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Comment{}, domain.ValidationError{Field: "text", Reason: "required"}
	}
	c := domain.Comment{ID: e.NewID(), AuthorID: actor.ID, Text: text}
	_, after, err := e.mutate(ctx, "comment", taskID, func(t *domain.Task) error {
		c.CreatedAt = e.nowMillis()
		t.Comments = append(t.Comments, c)
		return nil
	})
	if err != nil {
		return domain.Comment{}, err
	}
	fx := dispatch.Effects{
		Activity: e.activity(ctx, after, actor.ID, ActivityCommentAdded, "", map[string]any{"comment_id": c.ID}),
	}
	if after.AssigneeID != actor.ID {
		fx.Notifications = e.notification(after.AssigneeID, NotificationTaskComment, "New comment",
			fmt.Sprintf("%s commented on \"%s\"", actor.ID, after.Title), after.ID)
	}
	e.dispatch(ctx, fx)
	return c, nil
}
