package coinlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Coinline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set; servers
	// accept it only in development mode.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Action is one checklist entry of a task.
type Action struct {
	ID          string         `json:"id,omitempty"`
	Title       string         `json:"title"`
	Type        string         `json:"type"`
	Required    bool           `json:"required,omitempty"`
	Completed   bool           `json:"completed,omitempty"`
	CompletedAt *int64         `json:"completed_at,omitempty"`
	CompletedBy *string        `json:"completed_by,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID              string   `json:"id"`
	ProjectID       string   `json:"project_id"`
	Title           string   `json:"title"`
	AssigneeID      string   `json:"assignee_id,omitempty"`
	CreatorID       string   `json:"creator_id"`
	Status          string   `json:"status"`
	Priority        string   `json:"priority"`
	DifficultyLevel float64  `json:"difficulty_level"`
	CoinsReward     int64    `json:"coins_reward"`
	Actions         []Action `json:"actions"`
	Version         int64    `json:"version"`
}

// NewTask is the payload of CreateTask.
type NewTask struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	AssigneeID      string   `json:"assignee_id,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	DifficultyLevel float64  `json:"difficulty_level"`
	Actions         []Action `json:"actions,omitempty"`
	TemplateID      string   `json:"template_id,omitempty"`
}

type Comment struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task in project.
func (c *Client) CreateTask(ctx context.Context, projectID string, t NewTask) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v1/projects/%s/tasks", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, t, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, c.taskPath(id, ""), nil, &resp)
	return resp, err
}

// CompleteAction marks an action completed and merges data into it.
func (c *Client) CompleteAction(ctx context.Context, taskID, actionID string, data map[string]any) (Task, error) {
	var body any
	if len(data) > 0 {
		body = map[string]any{"data": data}
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "actions/"+url.PathEscape(actionID)+"/complete"), body, &resp)
	return resp, err
}

func (c *Client) UncompleteAction(ctx context.Context, taskID, actionID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "actions/"+url.PathEscape(actionID)+"/uncomplete"), nil, &resp)
	return resp, err
}

// Transition moves a task to status (in_progress, waiting_approval,
// completed, pending or blocked).
func (c *Client) Transition(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "transitions"), map[string]string{"status": status}, &resp)
	return resp, err
}

func (c *Client) AddComment(ctx context.Context, taskID, text string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "comments"), map[string]string{"text": text}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) taskPath(id, sub string) string {
	p := "v1/tasks/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + strings.TrimLeft(sub, "/")
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
