package events

import (
	"context"
	"testing"

	"coinline/internal/db"
	"coinline/internal/domain"
	"coinline/internal/migrate"
)

func TestRecordAndList(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	w := Writer{DB: conn}
	entries := []domain.ActivityEntry{
		{TS: 1, ActorID: "u1", Type: "task_created", ProjectID: "p1", ProjectName: "Garden", TaskID: "t1", TaskName: "Weed"},
		{TS: 2, ActorID: "admin", Type: "task_approved", ProjectID: "p1", ProjectName: "Garden", TaskID: "t1", TaskName: "Weed",
			NewStatus: domain.StatusCompleted, Extra: map[string]any{"coins": 45}},
		{TS: 3, ActorID: "u2", Type: "task_created", ProjectID: "p2", ProjectName: "p2", TaskID: "t2", TaskName: "Paint"},
	}
	for _, e := range entries {
		if err := w.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, err := w.List(ctx, Filter{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Type != "task_created" || got[1].Type != "task_approved" {
		t.Fatalf("unexpected entries %+v", got)
	}
	if got[1].NewStatus != domain.StatusCompleted || got[1].Extra["coins"] != float64(45) {
		t.Fatalf("status/extra not round-tripped: %+v", got[1])
	}
	after, err := w.List(ctx, Filter{AfterID: got[1].ID})
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(after) != 1 || after[0].TaskID != "t2" {
		t.Fatalf("expected only t2 after cursor, got %+v", after)
	}
}

func TestListActivityFeed(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	w := Writer{DB: conn}
	for i := int64(1); i <= 60; i++ {
		if err := w.Record(ctx, domain.ActivityEntry{TS: i, ActorID: "u1", Type: "task_created", ProjectID: "p1", TaskID: "t1"}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := w.ListActivity(ctx, "p1", 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("expected 50 entries, got %d", len(got))
	}
	if got[0].TS != 11 || got[49].TS != 60 {
		t.Fatalf("feed should hold the latest 50 oldest first, got first=%d last=%d", got[0].TS, got[49].TS)
	}
	head, err := w.List(ctx, Filter{ProjectID: "p1", Limit: 2})
	if err != nil {
		t.Fatalf("list head: %v", err)
	}
	if len(head) != 2 || head[0].TS != 1 || head[1].TS != 2 {
		t.Fatalf("unexpected head %+v", head)
	}
	next, err := w.List(ctx, Filter{ProjectID: "p1", AfterID: head[1].ID, Limit: 1})
	if err != nil {
		t.Fatalf("list after cursor: %v", err)
	}
	if len(next) != 1 || next[0].TS != 3 {
		t.Fatalf("unexpected page after cursor %+v", next)
	}
}
