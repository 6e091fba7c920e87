package domain

type Status string

const (
	StatusPending         Status = "pending"
	StatusInProgress      Status = "in_progress"
	StatusWaitingApproval Status = "waiting_approval"
	StatusCompleted       Status = "completed"
	StatusBlocked         Status = "blocked"
)

// Valid reports whether s is one of the known task statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusWaitingApproval, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Project struct {
	ID          string `json:"id" bson:"_id"`
	Name        string `json:"name" bson:"name"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	CreatedAt   int64  `json:"created_at" bson:"created_at"`
}

// Task is the unit of assigned work. Timestamps are milliseconds since epoch.
type Task struct {
	ID              string    `json:"id" bson:"_id"`
	Title           string    `json:"title" bson:"title"`
	Description     string    `json:"description,omitempty" bson:"description,omitempty"`
	ProjectID       string    `json:"project_id" bson:"project_id"`
	AssigneeID      string    `json:"assignee_id,omitempty" bson:"assignee_id,omitempty"`
	CreatorID       string    `json:"creator_id" bson:"creator_id"`
	Status          Status    `json:"status" bson:"status" enum:"pending,in_progress,waiting_approval,completed,blocked"`
	Priority        Priority  `json:"priority" bson:"priority" enum:"low,medium,high,critical"`
	DifficultyLevel float64   `json:"difficulty_level" bson:"difficulty_level"`
	CoinsReward     int64     `json:"coins_reward" bson:"coins_reward"`
	DueDate         *int64    `json:"due_date,omitempty" bson:"due_date,omitempty"`
	Actions         []Action  `json:"actions" bson:"actions"`
	Comments        []Comment `json:"comments" bson:"comments"`
	Attachments     []string  `json:"attachments" bson:"attachments"`

	// PendingApprovalAnnouncementID is the chat message announcing the current
	// submission. Set on entering waiting_approval, cleared on leaving it.
	PendingApprovalAnnouncementID string `json:"pending_approval_announcement_id,omitempty" bson:"pending_approval_announcement_id,omitempty"`

	Version   int64 `json:"version" bson:"version"`
	CreatedAt int64 `json:"created_at" bson:"created_at"`
	UpdatedAt int64 `json:"updated_at" bson:"updated_at"`
}

type Action struct {
	ID          string     `json:"id" bson:"id"`
	Title       string     `json:"title" bson:"title"`
	Type        string     `json:"type" bson:"type"`
	Required    bool       `json:"required" bson:"required"`
	Completed   bool       `json:"completed" bson:"completed"`
	CompletedAt *int64     `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CompletedBy *string    `json:"completed_by,omitempty" bson:"completed_by,omitempty"`
	Data        ActionData `json:"data,omitempty" bson:"data,omitempty"`
}

// ActionData is the per-action payload. Keys and value kinds are governed by
// the schema of the action's type.
type ActionData map[string]any

type Comment struct {
	ID        string `json:"id" bson:"id"`
	AuthorID  string `json:"author_id" bson:"author_id"`
	Text      string `json:"text" bson:"text"`
	CreatedAt int64  `json:"created_at" bson:"created_at"`
}

type ActionTemplate struct {
	ID        string           `json:"id" bson:"_id"`
	Name      string           `json:"name" bson:"name"`
	Actions   []TemplateAction `json:"actions" bson:"actions"`
	CreatedAt int64            `json:"created_at" bson:"created_at"`
}

type TemplateAction struct {
	Title    string     `json:"title" bson:"title"`
	Type     string     `json:"type" bson:"type"`
	Required bool       `json:"required" bson:"required"`
	Data     ActionData `json:"data,omitempty" bson:"data,omitempty"`
}

type Notification struct {
	ID              string `json:"id" bson:"_id"`
	RecipientID     string `json:"recipient_id" bson:"recipient_id"`
	Type            string `json:"type" bson:"type"`
	Title           string `json:"title" bson:"title"`
	Message         string `json:"message" bson:"message"`
	RelatedEntityID string `json:"related_entity_id,omitempty" bson:"related_entity_id,omitempty"`
	CreatedAt       int64  `json:"created_at" bson:"created_at"`
	Read            bool   `json:"read" bson:"read"`
}

type ActivityEntry struct {
	ID          int64          `json:"id,omitempty" bson:"-"`
	TS          int64          `json:"ts" bson:"ts"`
	ActorID     string         `json:"actor_id" bson:"actor_id"`
	Type        string         `json:"type" bson:"type"`
	ProjectID   string         `json:"project_id" bson:"project_id"`
	ProjectName string         `json:"project_name" bson:"project_name"`
	TaskID      string         `json:"task_id" bson:"task_id"`
	TaskName    string         `json:"task_name" bson:"task_name"`
	NewStatus   Status         `json:"new_status,omitempty" bson:"new_status,omitempty"`
	Extra       map[string]any `json:"extra,omitempty" bson:"extra,omitempty"`
}

const SystemAuthor = "system"

const (
	MessageTaskSubmission = "task_submission"
	MessageTaskApproval   = "task_approval"
	MessageTaskRejection  = "task_rejection"
	MessageTaskBlocked    = "task_blocked"
	MessageTaskStarted    = "task_started"
)

type ChatMessage struct {
	ID                string         `json:"id" bson:"_id"`
	ProjectID         string         `json:"project_id" bson:"project_id"`
	Author            string         `json:"author" bson:"author"`
	Content           string         `json:"content" bson:"content"`
	Timestamp         int64          `json:"timestamp" bson:"timestamp"`
	MessageType       string         `json:"message_type" bson:"message_type"`
	QuotedMessage     *QuotedMessage `json:"quoted_message,omitempty" bson:"quoted_message,omitempty"`
	OriginalMessageID string         `json:"original_message_id,omitempty" bson:"original_message_id,omitempty"`
}

type QuotedMessage struct {
	Content string `json:"content" bson:"content"`
	Author  string `json:"author" bson:"author"`
}

// Actor is the caller of an operation as resolved by the transport layer.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

const RoleAdmin = "admin"

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool { return a.HasRole(RoleAdmin) }

type TaskFilter struct {
	ProjectID  string
	AssigneeID string
	Status     Status
	Priority   Priority
	Page       int
	Limit      int
}

type TaskPage struct {
	Items      []Task `json:"items"`
	TotalCount int    `json:"total_count"`
	TotalPages int    `json:"total_pages"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
}
