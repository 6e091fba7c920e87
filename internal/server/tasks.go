package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"coinline/internal/domain"
	"coinline/internal/engine"
)

var taskErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

type taskPath struct {
	ID string `path:"id"`
}

type taskResponse struct {
	Body domain.Task `json:"body"`
}

func registerProjects(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, input.Body.ID, input.Body.Name, input.Body.Description, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProjectList `json:"body"`
	}, error) {
		items, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectList `json:"body"`
		}{Body: ProjectList{Items: emptyIfNil(items)}}, nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*taskResponse, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := input.Body.options(input.ProjectID, actor)
		var (
			t   domain.Task
			err error
		)
		if input.Body.TemplateID != "" {
			t, err = e.CreateTaskFromTemplate(ctx, opts, input.Body.TemplateID)
		} else {
			t, err = e.CreateTask(ctx, opts)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &taskResponse{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		AssigneeID string `query:"assignee_id"`
		Status     string `query:"status"`
		Priority   string `query:"priority"`
		Page       int    `query:"page"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body domain.TaskPage `json:"body"`
	}, error) {
		page, err := e.ListTasks(ctx, domain.TaskFilter{
			ProjectID:  input.ProjectID,
			AssigneeID: input.AssigneeID,
			Status:     domain.Status(input.Status),
			Priority:   domain.Priority(input.Priority),
			Page:       input.Page,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskPath) (*taskResponse, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskResponse{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task fields",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*taskResponse, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Status != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status changes go through POST /tasks/{id}/transitions", map[string]any{"field": "status"})
		}
		t, err := e.UpdateTask(ctx, input.ID, input.Body.patch(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskResponse{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.ID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/transitions",
		Summary:     "Move task to another status",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TransitionRequest `json:"body"`
	}) (*taskResponse, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Transition(ctx, input.ID, domain.Status(input.Body.Status), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskResponse{Body: t}, nil
	})
}

func registerTaskActions(api huma.API, e *engine.Engine) {
	type actionPath struct {
		ID       string `path:"id"`
		ActionID string `path:"action_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "complete-action",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/actions/{action_id}/complete",
		Summary:     "Complete action",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID       string                 `path:"id"`
		ActionID string                 `path:"action_id"`
		Body     *CompleteActionRequest `json:"body" required:"false"`
	}) (*taskResponse, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var data domain.ActionData
		if input.Body != nil {
			data = input.Body.Data
		}
		t, err := e.CompleteAction(ctx, input.ID, input.ActionID, actor, data)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskResponse{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "uncomplete-action",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/actions/{action_id}/uncomplete",
		Summary:     "Uncomplete action",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *actionPath) (*taskResponse, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UncompleteAction(ctx, input.ID, input.ActionID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskResponse{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/comments",
		Summary:       "Append comment",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body CommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AppendComment(ctx, input.ID, actor, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})
}
