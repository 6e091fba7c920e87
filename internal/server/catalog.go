package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"coinline/internal/app"
	"coinline/internal/domain"
	"coinline/internal/engine"
)

const defaultFeedLimit = 50

func registerTemplates(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create action template",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTemplateRequest `json:"body"`
	}) (*struct {
		Body domain.ActionTemplate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tpl, err := e.CreateTemplate(ctx, input.Body.Name, input.Body.actions(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionTemplate `json:"body"`
		}{Body: tpl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List action templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TemplateList `json:"body"`
	}, error) {
		items, err := e.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateList `json:"body"`
		}{Body: TemplateList{Items: emptyIfNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get action template",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.ActionTemplate `json:"body"`
	}, error) {
		tpl, err := e.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionTemplate `json:"body"`
		}{Body: tpl}, nil
	})
}

type feedQuery struct {
	ProjectID string `path:"project_id"`
	Limit     int    `query:"limit"`
}

func feedLimit(n int) int {
	if n <= 0 {
		return defaultFeedLimit
	}
	return n
}

func registerFeeds(api huma.API, feeds app.Feeds) {
	huma.Register(api, huma.Operation{
		OperationID: "list-chat",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/chat",
		Summary:     "System chat messages, newest first",
	}, func(ctx context.Context, input *feedQuery) (*struct {
		Body ChatList `json:"body"`
	}, error) {
		items, err := feeds.ListChat(ctx, input.ProjectID, feedLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatList `json:"body"`
		}{Body: ChatList{Items: emptyIfNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/activity",
		Summary:     "Activity entries, oldest first",
	}, func(ctx context.Context, input *feedQuery) (*struct {
		Body ActivityList `json:"body"`
	}, error) {
		items, err := feeds.ListActivity(ctx, input.ProjectID, feedLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityList `json:"body"`
		}{Body: ActivityList{Items: emptyIfNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-notifications",
		Method:      http.MethodGet,
		Path:        "/me/notifications",
		Summary:     "Notifications for the caller",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body NotificationList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := feeds.ListNotifications(ctx, actor.ID, feedLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NotificationList `json:"body"`
		}{Body: NotificationList{Items: emptyIfNil(items)}}, nil
	})
}
