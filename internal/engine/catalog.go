package engine

import (
	"context"
	"errors"
	"strings"

	"coinline/internal/domain"
	"coinline/internal/engine/auth"
)

func (e *Engine) CreateTemplate(ctx context.Context, name string, actions []domain.TemplateAction, actor domain.Actor) (domain.ActionTemplate, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return domain.ActionTemplate{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.ActionTemplate{}, domain.ValidationError{Field: "name", Reason: "required"}
	}
	if len(actions) == 0 {
		return domain.ActionTemplate{}, domain.ValidationError{Field: "actions", Reason: "at least one action required"}
	}
	l := e.ledger()
	for _, a := range actions {
		if strings.TrimSpace(a.Title) == "" {
			return domain.ActionTemplate{}, domain.ValidationError{Field: "actions.title", Reason: "required"}
		}
		if err := l.ValidateType(a.Type); err != nil {
			return domain.ActionTemplate{}, err
		}
		if err := l.ValidateData(a.Type, a.Data); err != nil {
			return domain.ActionTemplate{}, err
		}
	}
	tpl := domain.ActionTemplate{
		ID:        e.NewID(),
		Name:      name,
		Actions:   actions,
		CreatedAt: e.nowMillis(),
	}
	if err := e.Store.InsertTemplate(ctx, tpl); err != nil {
		return domain.ActionTemplate{}, domain.PersistenceError{Op: "insert template", Err: err}
	}
	return tpl, nil
}

func (e *Engine) GetTemplate(ctx context.Context, id string) (domain.ActionTemplate, error) {
	tpl, err := e.Store.GetTemplate(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return tpl, domain.NotFoundError{Kind: "template", ID: id}
	}
	if err != nil {
		return tpl, domain.PersistenceError{Op: "get template", Err: err}
	}
	return tpl, nil
}

func (e *Engine) ListTemplates(ctx context.Context) ([]domain.ActionTemplate, error) {
	res, err := e.Store.ListTemplates(ctx)
	if err != nil {
		return nil, domain.PersistenceError{Op: "list templates", Err: err}
	}
	return res, nil
}

// CreateProject registers a project so activity entries can carry its name.
func (e *Engine) CreateProject(ctx context.Context, id, name, description string, actor domain.Actor) (domain.Project, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.Project{}, domain.ValidationError{Field: "name", Reason: "required"}
	}
	if id == "" {
		id = e.NewID()
	}
	if _, err := e.Store.GetProject(ctx, id); err == nil {
		return domain.Project{}, domain.ValidationError{Field: "id", Reason: "project " + id + " already exists"}
	}
	p := domain.Project{ID: id, Name: name, Description: description, CreatedAt: e.nowMillis()}
	if err := e.Store.InsertProject(ctx, p); err != nil {
		return domain.Project{}, domain.PersistenceError{Op: "insert project", Err: err}
	}
	return p, nil
}

func (e *Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := e.Store.GetProject(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return p, domain.NotFoundError{Kind: "project", ID: id}
	}
	if err != nil {
		return p, domain.PersistenceError{Op: "get project", Err: err}
	}
	return p, nil
}

func (e *Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	res, err := e.Store.ListProjects(ctx)
	if err != nil {
		return nil, domain.PersistenceError{Op: "list projects", Err: err}
	}
	return res, nil
}
