package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coinline/internal/config"
	"coinline/internal/db"
	"coinline/internal/dispatch"
	"coinline/internal/domain"
	"coinline/internal/engine"
	"coinline/internal/engine/auth"
	"coinline/internal/events"
	"coinline/internal/logging"
	"coinline/internal/migrate"
	"coinline/internal/repo"
)

var (
	admin    = domain.Actor{ID: "boss", Roles: []string{domain.RoleAdmin}}
	worker   = domain.Actor{ID: "worker"}
	stranger = domain.Actor{ID: "stranger"}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	Engine *engine.Engine
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Clock  *clock
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	w := events.Writer{DB: conn}
	cfg := config.Default()
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	log := logging.Discard()
	eng := engine.New(engine.Deps{
		Store: r,
		Dispatcher: &dispatch.Dispatcher{
			Notifiers:  []dispatch.Notifier{r},
			Recorders:  []dispatch.ActivityRecorder{w},
			Announcers: []dispatch.ChatAnnouncer{r},
			Log:        log,
		},
		History: r,
		Config:  cfg,
		Log:     log,
		Now:     clk.Now,
	})
	return testEnv{Engine: eng, Repo: r, Events: w, Config: cfg, Clock: clk, Ctx: ctx}
}

func (env testEnv) createTask(t *testing.T) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:       "garden",
		Title:           "Plant tomatoes",
		AssigneeID:      worker.ID,
		DifficultyLevel: 3,
		Actions: []engine.ActionInput{
			{ID: "dig", Title: "Dig holes", Type: "checkbox", Required: true},
			{ID: "measure", Title: "Measure spacing", Type: "measurement", Required: true},
			{ID: "photo", Title: "Photo", Type: "photo"},
		},
		Actor: admin,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env testEnv) completeRequired(t *testing.T, id string) {
	t.Helper()
	if _, err := env.Engine.CompleteAction(env.Ctx, id, "dig", worker, nil); err != nil {
		t.Fatalf("complete dig: %v", err)
	}
	if _, err := env.Engine.CompleteAction(env.Ctx, id, "measure", worker, domain.ActionData{"value": 30, "unit": "cm"}); err != nil {
		t.Fatalf("complete measure: %v", err)
	}
}

func TestCreateTaskComputesRewardOnce(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if task.CoinsReward != 45 {
		t.Fatalf("expected 45 coins, got %d", task.CoinsReward)
	}
	if task.Status != domain.StatusPending || task.Version != 1 || task.CreatorID != admin.ID {
		t.Fatalf("unexpected new task %+v", task)
	}

	env.Config.Rewards.ComplexityMultiplier = 2
	diff := 10.0
	updated, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskPatch{DifficultyLevel: &diff}, admin)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CoinsReward != 45 {
		t.Fatalf("reward must not be recomputed, got %d", updated.CoinsReward)
	}
	again, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: "garden", Title: "Water", DifficultyLevel: 3, Actor: admin})
	if err != nil {
		t.Fatal(err)
	}
	if again.CoinsReward != 60 {
		t.Fatalf("new task should use current config, got %d", again.CoinsReward)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.TaskCreateOptions{
		{ProjectID: "p", DifficultyLevel: 1, Actor: admin},
		{Title: "x", DifficultyLevel: 1, Actor: admin},
		{ProjectID: "p", Title: "x", DifficultyLevel: 0, Actor: admin},
		{ProjectID: "p", Title: "x", DifficultyLevel: 1, Priority: "urgent", Actor: admin},
		{ProjectID: "p", Title: "x", DifficultyLevel: 1, Actor: admin, Actions: []engine.ActionInput{{Title: "a", Type: "video"}}},
		{ProjectID: "p", Title: "x", DifficultyLevel: 1, Actor: admin, Actions: []engine.ActionInput{{ID: "a", Type: "checkbox"}, {ID: "a", Type: "checkbox"}}},
	}
	for i, opts := range cases {
		_, err := env.Engine.CreateTask(env.Ctx, opts)
		var ve domain.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("case %d: expected ValidationError, got %v", i, err)
		}
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: "p", Title: "x", DifficultyLevel: 1}); !isForbidden(err) {
		t.Fatalf("anonymous create should be forbidden, got %v", err)
	}
}

func TestSubmitGuard(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if _, err := env.Engine.CompleteAction(env.Ctx, task.ID, "dig", worker, nil); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, worker)
	var guard domain.GuardNotSatisfiedError
	if !errors.As(err, &guard) {
		t.Fatalf("expected guard error, got %v", err)
	}
	if len(guard.Missing) != 1 || guard.Missing[0] != "measure" {
		t.Fatalf("unexpected missing list %v", guard.Missing)
	}
	stored, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if stored.Status != domain.StatusPending || stored.Version != 2 {
		t.Fatalf("failed transition must not write: %+v", stored)
	}

	if _, err := env.Engine.CompleteAction(env.Ctx, task.ID, "measure", worker, domain.ActionData{"value": 1}); err != nil {
		t.Fatal(err)
	}
	submitted, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, worker)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != domain.StatusWaitingApproval || submitted.PendingApprovalAnnouncementID == "" {
		t.Fatalf("unexpected submitted task %+v", submitted)
	}
}

func TestTransitionCheckOrder(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)

	// actor check precedes the guard
	if _, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, stranger); !isForbidden(err) {
		t.Fatalf("expected forbidden before guard, got %v", err)
	}
	if _, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, admin); !isForbidden(err) {
		t.Fatalf("admin must not submit on behalf of assignee, got %v", err)
	}
	// transition validity precedes the actor check
	var inv domain.InvalidTransitionError
	if _, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusCompleted, stranger); !errors.As(err, &inv) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusBlocked, worker); !isForbidden(err) {
		t.Fatalf("only admins block, got %v", err)
	}
	var ve domain.ValidationError
	if _, err := env.Engine.Transition(env.Ctx, task.ID, "archived", admin); !errors.As(err, &ve) {
		t.Fatalf("unknown status should be a validation error, got %v", err)
	}
}

func TestApprovalFlowEmitsCorrelatedEffects(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProject(env.Ctx, "garden", "Community Garden", "", admin); err != nil {
		t.Fatalf("create project: %v", err)
	}
	task := env.createTask(t)
	started, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusInProgress, worker)
	if err != nil || started.Status != domain.StatusInProgress {
		t.Fatalf("start: %v", err)
	}
	env.completeRequired(t, task.ID)
	submitted, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, worker)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	approved, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusCompleted, admin)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.PendingApprovalAnnouncementID != "" {
		t.Fatalf("announcement id should be cleared after approval")
	}

	chat, err := env.Repo.ListChat(env.Ctx, "garden", 0)
	if err != nil {
		t.Fatal(err)
	}
	byType := map[string]domain.ChatMessage{}
	for _, m := range chat {
		if m.Author != domain.SystemAuthor {
			t.Fatalf("chat author should be system, got %s", m.Author)
		}
		byType[m.MessageType] = m
	}
	if len(chat) != 3 {
		t.Fatalf("expected started, submission and approval messages, got %d", len(chat))
	}
	sub := byType[domain.MessageTaskSubmission]
	if sub.ID != submitted.PendingApprovalAnnouncementID {
		t.Fatalf("submission message id %s should equal announcement id %s", sub.ID, submitted.PendingApprovalAnnouncementID)
	}
	appr := byType[domain.MessageTaskApproval]
	if appr.OriginalMessageID != sub.ID || appr.QuotedMessage == nil || appr.QuotedMessage.Content != sub.Content {
		t.Fatalf("approval not correlated with submission: %+v", appr)
	}

	acts, err := env.Events.List(env.Ctx, events.Filter{TaskID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	var approvedEntry *domain.ActivityEntry
	for i := range acts {
		if acts[i].Type == engine.ActivityTaskApproved {
			approvedEntry = &acts[i]
		}
	}
	if approvedEntry == nil || approvedEntry.Extra["coins"] != float64(45) || approvedEntry.ProjectName != "Community Garden" {
		t.Fatalf("unexpected approval activity %+v", approvedEntry)
	}

	notes, _ := env.Repo.ListNotifications(env.Ctx, worker.ID, 0)
	if !hasNotification(notes, engine.NotificationTaskApproved) || !hasNotification(notes, engine.NotificationTaskAssigned) {
		t.Fatalf("assignee notifications missing: %+v", notes)
	}
	creatorNotes, _ := env.Repo.ListNotifications(env.Ctx, admin.ID, 0)
	if !hasNotification(creatorNotes, engine.NotificationTaskSubmitted) {
		t.Fatalf("creator should be told about the submission: %+v", creatorNotes)
	}
}

func TestRejectThenResubmit(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	env.completeRequired(t, task.ID)
	first, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, worker)
	if err != nil {
		t.Fatal(err)
	}
	rejected, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusPending, admin)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.StatusPending || rejected.PendingApprovalAnnouncementID != "" {
		t.Fatalf("unexpected rejected task %+v", rejected)
	}
	second, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, worker)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.PendingApprovalAnnouncementID == first.PendingApprovalAnnouncementID {
		t.Fatalf("each submission needs its own announcement")
	}
	chat, _ := env.Repo.ListChat(env.Ctx, "garden", 0)
	for _, m := range chat {
		if m.MessageType == domain.MessageTaskRejection && m.OriginalMessageID != first.PendingApprovalAnnouncementID {
			t.Fatalf("rejection should quote the first submission, got %q", m.OriginalMessageID)
		}
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	env.completeRequired(t, task.ID)
	if _, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, worker); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusCompleted, admin); err != nil {
		t.Fatal(err)
	}
	for _, to := range []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusWaitingApproval, domain.StatusBlocked, domain.StatusCompleted} {
		var inv domain.InvalidTransitionError
		if _, err := env.Engine.Transition(env.Ctx, task.ID, to, admin); !errors.As(err, &inv) {
			t.Fatalf("completed -> %s should be invalid, got %v", to, err)
		}
	}
}

func TestBlockFromAnyOpenStatus(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	blocked, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusBlocked, admin)
	if err != nil || blocked.Status != domain.StatusBlocked {
		t.Fatalf("block: %v", err)
	}
	var inv domain.InvalidTransitionError
	if _, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusInProgress, worker); !errors.As(err, &inv) {
		t.Fatalf("blocked is terminal, got %v", err)
	}
	notes, _ := env.Repo.ListNotifications(env.Ctx, worker.ID, 0)
	if !hasNotification(notes, engine.NotificationTaskBlocked) {
		t.Fatalf("assignee should be told about the block")
	}
}

func TestCompleteUncompleteRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	done, err := env.Engine.CompleteAction(env.Ctx, task.ID, "measure", worker, domain.ActionData{"value": 12})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	a := done.Actions[1]
	if !a.Completed || *a.CompletedBy != worker.ID || *a.CompletedAt != env.Clock.Now().UnixMilli() {
		t.Fatalf("unexpected completed action %+v", a)
	}
	undone, err := env.Engine.UncompleteAction(env.Ctx, task.ID, "measure", worker)
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	u := undone.Actions[1]
	if u.Completed || u.CompletedAt != nil || u.CompletedBy != nil || u.Data["value"] != float64(12) {
		t.Fatalf("unexpected uncompleted action %+v", u)
	}
	if undone.Version != 3 {
		t.Fatalf("expected version 3, got %d", undone.Version)
	}
	if _, err := env.Engine.CompleteAction(env.Ctx, task.ID, "dig", stranger, nil); !isForbidden(err) {
		t.Fatalf("stranger must not complete actions, got %v", err)
	}
	if _, err := env.Engine.CompleteAction(env.Ctx, task.ID, "dig", admin, nil); err != nil {
		t.Fatalf("admin may complete actions: %v", err)
	}
}

func TestRecompleteIsNotIdempotent(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	first, err := env.Engine.CompleteAction(env.Ctx, task.ID, "measure", worker, domain.ActionData{"value": 1})
	if err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(time.Minute)
	second, err := env.Engine.CompleteAction(env.Ctx, task.ID, "measure", admin, domain.ActionData{"value": 2})
	if err != nil {
		t.Fatal(err)
	}
	a1, a2 := first.Actions[1], second.Actions[1]
	if *a2.CompletedAt-*a1.CompletedAt != time.Minute.Milliseconds() {
		t.Fatalf("completed_at should move forward by a minute: %d -> %d", *a1.CompletedAt, *a2.CompletedAt)
	}
	if *a2.CompletedBy != admin.ID || a2.Data["value"] != 2 {
		t.Fatalf("re-completion should overwrite stamp and data: %+v", a2)
	}
}

func TestUnknownActionLeavesTaskUntouched(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	_, err := env.Engine.CompleteAction(env.Ctx, task.ID, "nope", worker, nil)
	var nf domain.ActionNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ActionNotFoundError, got %v", err)
	}
	stored, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if stored.Version != task.Version {
		t.Fatalf("version moved on failed mutation")
	}
	if !sameActions(t, stored.Actions, task.Actions) {
		t.Fatalf("actions changed")
	}
	if _, err := env.Engine.CompleteAction(env.Ctx, "ghost", "dig", worker, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing task, got %v", err)
	}
}

func TestPatchSchemaEnforced(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	var ve domain.ValidationError
	if _, err := env.Engine.CompleteAction(env.Ctx, task.ID, "measure", worker, domain.ActionData{"value": "thirty"}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := env.Engine.CompleteAction(env.Ctx, task.ID, "measure", worker, domain.ActionData{"color": "red"}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown key, got %v", err)
	}
}

func TestUpdateTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	newAssignee := "helper"
	title := "Plant cherry tomatoes"
	updated, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskPatch{Title: &title, AssigneeID: &newAssignee}, admin)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.AssigneeID != newAssignee || updated.Status != task.Status {
		t.Fatalf("unexpected update %+v", updated)
	}
	notes, _ := env.Repo.ListNotifications(env.Ctx, newAssignee, 0)
	if !hasNotification(notes, engine.NotificationTaskAssigned) {
		t.Fatalf("new assignee should be notified")
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskPatch{Title: &title}, stranger); !isForbidden(err) {
		t.Fatalf("stranger must not update, got %v", err)
	}
	var ve domain.ValidationError
	if _, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskPatch{}, admin); !errors.As(err, &ve) {
		t.Fatalf("empty patch should fail validation, got %v", err)
	}
}

func TestListTasksPaging(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.Clock.Advance(time.Second)
		env.createTask(t)
	}
	page, err := env.Engine.ListTasks(env.Ctx, domain.TaskFilter{ProjectID: "garden", Limit: 2, Page: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalCount != 5 || page.TotalPages != 3 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	empty, err := env.Engine.ListTasks(env.Ctx, domain.TaskFilter{ProjectID: "orchard"})
	if err != nil || empty.Items == nil || empty.TotalPages != 0 || empty.Limit != 20 {
		t.Fatalf("unexpected empty page %+v %v", empty, err)
	}
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, worker); !isForbidden(err) {
		t.Fatalf("only admins delete, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, admin); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var nf domain.NotFoundError
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, admin); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	acts, _ := env.Events.List(env.Ctx, events.Filter{TaskID: task.ID, Type: engine.ActivityTaskDeleted})
	if len(acts) != 1 {
		t.Fatalf("expected one delete activity, got %d", len(acts))
	}
}

func TestCommentsNotifyAssignee(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if _, err := env.Engine.AppendComment(env.Ctx, task.ID, admin, "looks good"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := env.Engine.AppendComment(env.Ctx, task.ID, worker, "thanks"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	stored, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if len(stored.Comments) != 2 || stored.Comments[0].Text != "looks good" || stored.Comments[1].AuthorID != worker.ID {
		t.Fatalf("unexpected comments %+v", stored.Comments)
	}
	notes, _ := env.Repo.ListNotifications(env.Ctx, worker.ID, 0)
	count := 0
	for _, n := range notes {
		if n.Type == engine.NotificationTaskComment {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("assignee should get exactly one comment notification, got %d", count)
	}
}

func TestCreateTaskFromTemplate(t *testing.T) {
	env := newTestEnv(t)
	tpl, err := env.Engine.CreateTemplate(env.Ctx, "Planting", []domain.TemplateAction{
		{Title: "Dig", Type: "checkbox", Required: true},
		{Title: "Photo", Type: "photo", Data: domain.ActionData{"caption": "bed"}},
	}, admin)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	opts := engine.TaskCreateOptions{ProjectID: "garden", Title: "Bed 4", AssigneeID: worker.ID, DifficultyLevel: 1, Actor: admin}
	a, err := env.Engine.CreateTaskFromTemplate(env.Ctx, opts, tpl.ID)
	if err != nil {
		t.Fatalf("from template: %v", err)
	}
	b, err := env.Engine.CreateTaskFromTemplate(env.Ctx, opts, tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Actions) != 2 || a.Actions[0].Completed || a.Actions[1].Data["caption"] != "bed" {
		t.Fatalf("unexpected actions %+v", a.Actions)
	}
	if a.Actions[0].ID == b.Actions[0].ID {
		t.Fatalf("template actions must get fresh ids per task")
	}
	var nf domain.NotFoundError
	if _, err := env.Engine.CreateTaskFromTemplate(env.Ctx, opts, "missing"); !errors.As(err, &nf) || nf.Kind != "template" {
		t.Fatalf("expected template not found, got %v", err)
	}
	if _, err := env.Engine.CreateTemplate(env.Ctx, "x", []domain.TemplateAction{{Title: "a", Type: "checkbox"}}, worker); !isForbidden(err) {
		t.Fatalf("only admins create templates, got %v", err)
	}
}

// interleavingStore runs hook once, right before the first UpdateTask call.
type interleavingStore struct {
	engine.Store
	once      sync.Once
	hook      func()
	conflicts int
}

func (s *interleavingStore) UpdateTask(ctx context.Context, t domain.Task, expected int64) error {
	s.once.Do(s.hook)
	err := s.Store.UpdateTask(ctx, t, expected)
	if errors.Is(err, domain.ErrVersionConflict) {
		s.conflicts++
	}
	return err
}

func TestConcurrentCompletionsBothLand(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)

	store := &interleavingStore{Store: env.Repo}
	store.hook = func() {
		// writer A commits while writer B holds a stale read
		if _, err := env.Engine.CompleteAction(env.Ctx, task.ID, "dig", worker, nil); err != nil {
			t.Errorf("writer A: %v", err)
		}
	}
	writerB := engine.New(engine.Deps{Store: store, Config: env.Config, Log: logging.Discard(), Now: env.Clock.Now})
	final, err := writerB.CompleteAction(env.Ctx, task.ID, "measure", worker, domain.ActionData{"value": 5})
	if err != nil {
		t.Fatalf("writer B: %v", err)
	}
	if store.conflicts != 1 {
		t.Fatalf("writer B should have conflicted once, got %d", store.conflicts)
	}
	if final.Version != 3 {
		t.Fatalf("expected version 3, got %d", final.Version)
	}
	stored, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if !stored.Actions[0].Completed || !stored.Actions[1].Completed {
		t.Fatalf("a completion was lost: %+v", stored.Actions)
	}
}

type alwaysConflicting struct {
	engine.Store
}

func (alwaysConflicting) UpdateTask(context.Context, domain.Task, int64) error {
	return domain.ErrVersionConflict
}

func TestConflictErrorAfterRetries(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	eng := engine.New(engine.Deps{Store: alwaysConflicting{env.Repo}, Config: env.Config, Log: logging.Discard()})
	_, err := eng.CompleteAction(env.Ctx, task.ID, "dig", worker, nil)
	var ce domain.ConflictError
	if !errors.As(err, &ce) || ce.Attempts != 3 || ce.TaskID != task.ID {
		t.Fatalf("expected ConflictError after 3 attempts, got %v", err)
	}
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("ConflictError should match ErrVersionConflict")
	}
}

type missingHistory struct{}

func (missingHistory) Message(context.Context, string, string) (domain.ChatMessage, error) {
	return domain.ChatMessage{}, domain.ErrNotFound
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, domain.Notification) error {
	return errors.New("mail server down")
}

func TestApprovalSurvivesMissingAnnouncementAndSinkFailure(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	env.completeRequired(t, task.ID)
	if _, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusWaitingApproval, worker); err != nil {
		t.Fatal(err)
	}
	env.Engine.History = missingHistory{}
	env.Engine.Dispatcher.Notifiers = []dispatch.Notifier{failingNotifier{}}
	approved, err := env.Engine.Transition(env.Ctx, task.ID, domain.StatusCompleted, admin)
	if err != nil {
		t.Fatalf("approval should commit: %v", err)
	}
	if approved.Status != domain.StatusCompleted {
		t.Fatalf("unexpected status %s", approved.Status)
	}
	chat, _ := env.Repo.ListChat(env.Ctx, "garden", 0)
	for _, m := range chat {
		if m.MessageType == domain.MessageTaskApproval && (m.OriginalMessageID != "" || m.QuotedMessage != nil) {
			t.Fatalf("correlation should be dropped: %+v", m)
		}
	}
}

func isForbidden(err error) bool {
	var fe auth.ForbiddenError
	return errors.As(err, &fe)
}

func hasNotification(notes []domain.Notification, typ string) bool {
	for _, n := range notes {
		if n.Type == typ {
			return true
		}
	}
	return false
}
