package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"coinline/internal/config"
	"coinline/internal/dispatch"
	"coinline/internal/domain"
	"coinline/internal/ledger"
	"coinline/internal/metrics"
)

// TaskStore persists task documents. UpdateTask is a compare-and-set on the
// stored version: it must fail with domain.ErrVersionConflict when the stored
// version differs from expected, and domain.ErrNotFound when the task is gone.
type TaskStore interface {
	InsertTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, id string) (domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task, expected int64) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, int, error)
}

type TemplateStore interface {
	InsertTemplate(ctx context.Context, tpl domain.ActionTemplate) error
	GetTemplate(ctx context.Context, id string) (domain.ActionTemplate, error)
	ListTemplates(ctx context.Context) ([]domain.ActionTemplate, error)
}

type ProjectStore interface {
	InsertProject(ctx context.Context, p domain.Project) error
	GetProject(ctx context.Context, id string) (domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
}

type Store interface {
	TaskStore
	TemplateStore
	ProjectStore
}

type Deps struct {
	Store      Store
	Dispatcher *dispatch.Dispatcher
	History    dispatch.ChatHistory
	Config     *config.Config
	Log        logrus.FieldLogger
	Now        func() time.Time
	NewID      func() string
}

// Engine runs every task operation: it loads the task, applies the rules,
// writes it back under a version check and then dispatches side effects.
type Engine struct {
	Store      Store
	Dispatcher *dispatch.Dispatcher
	History    dispatch.ChatHistory
	Config     *config.Config
	Log        logrus.FieldLogger
	Now        func() time.Time
	NewID      func() string
}

func New(d Deps) *Engine {
	e := &Engine{
		Store:      d.Store,
		Dispatcher: d.Dispatcher,
		History:    d.History,
		Config:     d.Config,
		Log:        d.Log,
		Now:        d.Now,
		NewID:      d.NewID,
	}
	if e.Config == nil {
		e.Config = config.Default()
	}
	if e.Log == nil {
		e.Log = logrus.StandardLogger()
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.NewID == nil {
		e.NewID = uuid.NewString
	}
	return e
}

func (e *Engine) nowMillis() int64 {
	return e.Now().UnixMilli()
}

func (e *Engine) ledger() ledger.Ledger {
	return ledger.New(e.Config.Actions.Types)
}

// mutate runs a read-modify-write of one task. apply works on a private copy
// and is re-run against a fresh read whenever another writer got in first.
// It returns the task as read and as written by the successful attempt.
func (e *Engine) mutate(ctx context.Context, op, taskID string, apply func(t *domain.Task) error) (domain.Task, domain.Task, error) {
	attempts := e.Config.MaxAttempts()
	for i := 1; i <= attempts; i++ {
		cur, err := e.loadTask(ctx, taskID)
		if err != nil {
			return domain.Task{}, domain.Task{}, err
		}
		next := cur.Clone()
		if err := apply(&next); err != nil {
			return domain.Task{}, domain.Task{}, err
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = e.nowMillis()
		err = e.Store.UpdateTask(ctx, next, cur.Version)
		switch {
		case err == nil:
			return cur, next, nil
		case errors.Is(err, domain.ErrVersionConflict):
			metrics.RecordConflict(ctx, op)
			e.Log.WithFields(logrus.Fields{"task_id": taskID, "op": op, "attempt": i}).Debug("version conflict, retrying")
		case errors.Is(err, domain.ErrNotFound):
			return domain.Task{}, domain.Task{}, domain.NotFoundError{Kind: "task", ID: taskID}
		default:
			return domain.Task{}, domain.Task{}, domain.PersistenceError{Op: "update task", Err: err}
		}
	}
	e.Log.WithFields(logrus.Fields{"task_id": taskID, "op": op, "attempts": attempts}).Warn("giving up after repeated version conflicts")
	return domain.Task{}, domain.Task{}, domain.ConflictError{TaskID: taskID, Attempts: attempts}
}

func (e *Engine) loadTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Store.GetTask(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Task{}, domain.NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return domain.Task{}, domain.PersistenceError{Op: "get task", Err: err}
	}
	return t, nil
}

func (e *Engine) dispatch(ctx context.Context, fx dispatch.Effects) {
	e.Dispatcher.Dispatch(ctx, fx)
}
