// Package app assembles the engine, its store and its side-effect sinks from
// the workspace configuration. The CLI and the HTTP server both start here.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"coinline/internal/config"
	"coinline/internal/db"
	"coinline/internal/dispatch"
	"coinline/internal/domain"
	"coinline/internal/engine"
	"coinline/internal/events"
	"coinline/internal/logging"
	"coinline/internal/migrate"
	"coinline/internal/mongostore"
	"coinline/internal/repo"
)

// Feeds are the read sides of the side-effect sinks.
type Feeds interface {
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	ListChat(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error)
	ListActivity(ctx context.Context, projectID string, limit int) ([]domain.ActivityEntry, error)
}

type App struct {
	Config     *config.Config
	Log        *logrus.Logger
	Engine     *engine.Engine
	Dispatcher *dispatch.Dispatcher
	Feeds      Feeds

	close func(context.Context) error
}

// backend is one persistence driver with every port the engine and the
// dispatcher need.
type backend struct {
	store     engine.Store
	notifier  dispatch.Notifier
	recorder  dispatch.ActivityRecorder
	announcer dispatch.ChatAnnouncer
	history   dispatch.ChatHistory
	feeds     Feeds
	close     func(context.Context) error
}

// Open loads coinline.yml from workspace (defaults when absent) and wires the
// application.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	return OpenWithConfig(ctx, workspace, cfg)
}

func OpenWithConfig(ctx context.Context, workspace string, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	var b backend
	switch cfg.StoreDriver() {
	case config.DriverMongo:
		b, err = openMongo(ctx, cfg.Store)
	default:
		b, err = openSQLite(ctx, workspace)
	}
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"driver": cfg.StoreDriver(), "workspace": workspace}).Debug("store opened")
	return assemble(cfg, log, b), nil
}

func assemble(cfg *config.Config, log *logrus.Logger, b backend) *App {
	recorders := []dispatch.ActivityRecorder{b.recorder}
	if hooks := dispatch.NewWebhookSink(cfg.Webhooks, log); hooks != nil {
		recorders = append(recorders, hooks)
	}
	d := &dispatch.Dispatcher{
		Notifiers:  []dispatch.Notifier{b.notifier},
		Recorders:  recorders,
		Announcers: []dispatch.ChatAnnouncer{b.announcer},
		Log:        log,
		Async:      cfg.Dispatch.Async,
	}
	eng := engine.New(engine.Deps{
		Store:      b.store,
		Dispatcher: d,
		History:    b.history,
		Config:     cfg,
		Log:        log,
	})
	return &App{Config: cfg, Log: log, Engine: eng, Dispatcher: d, Feeds: b.feeds, close: b.close}
}

// Close waits for in-flight side effects and releases the store.
func (a *App) Close(ctx context.Context) error {
	a.Dispatcher.Wait()
	if a.close == nil {
		return nil
	}
	return a.close(ctx)
}

// sqliteFeeds reads notifications and chat from the repo and activity from
// the append-only log.
type sqliteFeeds struct {
	repo.Repo
	events.Writer
}

func openSQLite(ctx context.Context, workspace string) (backend, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return backend{}, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return backend{}, fmt.Errorf("migrate: %w", err)
	}
	return sqliteBackend(conn), nil
}

func sqliteBackend(conn *sql.DB) backend {
	r := repo.Repo{DB: conn}
	w := events.Writer{DB: conn}
	return backend{
		store:     r,
		notifier:  r,
		recorder:  w,
		announcer: r,
		history:   r,
		feeds:     sqliteFeeds{Repo: r, Writer: w},
		close:     func(context.Context) error { return conn.Close() },
	}
}

func openMongo(ctx context.Context, cfg config.Store) (backend, error) {
	s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return backend{}, err
	}
	return backend{
		store:     s,
		notifier:  s,
		recorder:  s,
		announcer: s,
		history:   s,
		feeds:     s,
		close:     s.Close,
	}, nil
}
