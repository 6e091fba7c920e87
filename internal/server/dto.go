package server

import (
	"coinline/internal/domain"
	"coinline/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ActionRequest struct {
	ID       string            `json:"id,omitempty"`
	Title    string            `json:"title"`
	Type     string            `json:"type"`
	Required bool              `json:"required,omitempty"`
	Data     domain.ActionData `json:"data,omitempty"`
}

type CreateTaskRequest struct {
	ID              string          `json:"id,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	AssigneeID      string          `json:"assignee_id,omitempty"`
	Priority        string          `json:"priority,omitempty" enum:"low,medium,high,critical"`
	DifficultyLevel float64         `json:"difficulty_level"`
	DueDate         *int64          `json:"due_date,omitempty"`
	Actions         []ActionRequest `json:"actions,omitempty"`
	Attachments     []string        `json:"attachments,omitempty"`
	// TemplateID replaces Actions with the template's actions.
	TemplateID string `json:"template_id,omitempty"`
}

type UpdateTaskRequest struct {
	Title           *string  `json:"title,omitempty"`
	Description     *string  `json:"description,omitempty"`
	AssigneeID      *string  `json:"assignee_id,omitempty"`
	Priority        *string  `json:"priority,omitempty" enum:"low,medium,high,critical"`
	DifficultyLevel *float64 `json:"difficulty_level,omitempty"`
	DueDate         *int64   `json:"due_date,omitempty"`
	ClearDueDate    bool     `json:"clear_due_date,omitempty"`
	Attachments     []string `json:"attachments,omitempty"`
	// Status is accepted only to be refused with a pointer to /transitions.
	Status *string `json:"status,omitempty"`
}

type CompleteActionRequest struct {
	Data domain.ActionData `json:"data,omitempty"`
}

type CommentRequest struct {
	Text string `json:"text"`
}

type TransitionRequest struct {
	Status string `json:"status" enum:"pending,in_progress,waiting_approval,completed,blocked"`
}

type TemplateActionRequest struct {
	Title    string            `json:"title"`
	Type     string            `json:"type"`
	Required bool              `json:"required,omitempty"`
	Data     domain.ActionData `json:"data,omitempty"`
}

type CreateTemplateRequest struct {
	Name    string                  `json:"name"`
	Actions []TemplateActionRequest `json:"actions"`
}

// Response payloads

type ProjectList struct {
	Items []domain.Project `json:"items"`
}

type TemplateList struct {
	Items []domain.ActionTemplate `json:"items"`
}

type NotificationList struct {
	Items []domain.Notification `json:"items"`
}

type ChatList struct {
	Items []domain.ChatMessage `json:"items"`
}

type ActivityList struct {
	Items []domain.ActivityEntry `json:"items"`
}

func (r CreateTaskRequest) options(projectID string, actor domain.Actor) engine.TaskCreateOptions {
	actions := make([]engine.ActionInput, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, engine.ActionInput{ID: a.ID, Title: a.Title, Type: a.Type, Required: a.Required, Data: a.Data})
	}
	return engine.TaskCreateOptions{
		ID:              r.ID,
		ProjectID:       projectID,
		Title:           r.Title,
		Description:     r.Description,
		AssigneeID:      r.AssigneeID,
		Priority:        domain.Priority(r.Priority),
		DifficultyLevel: r.DifficultyLevel,
		DueDate:         r.DueDate,
		Actions:         actions,
		Attachments:     r.Attachments,
		Actor:           actor,
	}
}

func (r UpdateTaskRequest) patch() engine.TaskPatch {
	p := engine.TaskPatch{
		Title:           r.Title,
		Description:     r.Description,
		AssigneeID:      r.AssigneeID,
		DifficultyLevel: r.DifficultyLevel,
		DueDate:         r.DueDate,
		ClearDueDate:    r.ClearDueDate,
	}
	if r.Priority != nil {
		pr := domain.Priority(*r.Priority)
		p.Priority = &pr
	}
	if r.Attachments != nil {
		att := r.Attachments
		p.Attachments = &att
	}
	return p
}

func (r CreateTemplateRequest) actions() []domain.TemplateAction {
	out := make([]domain.TemplateAction, 0, len(r.Actions))
	for _, a := range r.Actions {
		out = append(out, domain.TemplateAction{Title: a.Title, Type: a.Type, Required: a.Required, Data: a.Data})
	}
	return out
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
