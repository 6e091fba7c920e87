package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"coinline/internal/config"
	"coinline/internal/domain"
	"coinline/internal/engine"
)

func TestOpenDefaultsToSQLite(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()
	a, err := Open(ctx, workspace)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close(ctx)
	if _, err := os.Stat(filepath.Join(workspace, ".coinline", "coinline.db")); err != nil {
		t.Fatalf("database not created: %v", err)
	}

	admin := domain.Actor{ID: "boss", Roles: []string{domain.RoleAdmin}}
	task, err := a.Engine.CreateTask(ctx, engine.TaskCreateOptions{
		ProjectID: "garden", Title: "Weed", AssigneeID: "kid", DifficultyLevel: 2, Actor: admin,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.CoinsReward != 30 {
		t.Fatalf("expected 30 coins, got %d", task.CoinsReward)
	}
	notes, err := a.Feeds.ListNotifications(ctx, "kid", 10)
	if err != nil || len(notes) != 1 {
		t.Fatalf("expected one notification, got %v %v", notes, err)
	}
	acts, err := a.Feeds.ListActivity(ctx, "garden", 10)
	if err != nil || len(acts) != 1 || acts[0].Type != engine.ActivityTaskCreated {
		t.Fatalf("unexpected activity %v %v", acts, err)
	}
}

func TestOpenWithConfigRejectsInvalid(t *testing.T) {
	cfg := config.Default()
	cfg.Rewards.CompletionBase = -1
	if _, err := OpenWithConfig(context.Background(), t.TempDir(), cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}
