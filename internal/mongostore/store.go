// Package mongostore keeps tasks and their side-effect sinks in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coinline/internal/domain"
)

type Store struct {
	client        *mongo.Client
	tasks         *mongo.Collection
	templates     *mongo.Collection
	projects      *mongo.Collection
	notifications *mongo.Collection
	chat          *mongo.Collection
	activities    *mongo.Collection
}

// Connect dials uri, pings the server and ensures indexes on database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = "coinline"
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := New(client.Database(database))
	s.client = client
	if err := s.EnsureIndexes(cctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an already connected database.
func New(db *mongo.Database) *Store {
	opts := collectionOptions()
	return &Store{
		tasks:         db.Collection("tasks", opts),
		templates:     db.Collection("action_templates", opts),
		projects:      db.Collection("projects", opts),
		notifications: db.Collection("notifications", opts),
		chat:          db.Collection("chat_messages", opts),
		activities:    db.Collection("activities", opts),
	}
}

// collectionOptions decodes nested documents under `any` (action data,
// activity extras) as maps so they encode back to JSON objects.
func collectionOptions() *options.CollectionOptions {
	return options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := []struct {
		coll *mongo.Collection
		keys bson.D
	}{
		{s.tasks, bson.D{{Key: "project_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{s.tasks, bson.D{{Key: "assignee_id", Value: 1}}},
		{s.notifications, bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{s.chat, bson.D{{Key: "project_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{s.activities, bson.D{{Key: "project_id", Value: 1}, {Key: "ts", Value: 1}}},
	}
	for _, spec := range specs {
		if _, err := spec.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: spec.keys}); err != nil {
			return fmt.Errorf("create index on %s: %w", spec.coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := s.tasks.InsertOne(ctx, t)
	return err
}

func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return t, domain.ErrNotFound
	}
	return t, err
}

// UpdateTask replaces the document only while its stored version equals expected.
func (s *Store) UpdateTask(ctx context.Context, t domain.Task, expected int64) error {
	res, err := s.tasks.ReplaceOne(ctx, versionFilter(t.ID, expected), t)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.tasks.CountDocuments(ctx, bson.M{"_id": t.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrVersionConflict
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, int, error) {
	filter := taskFilter(f)
	total, err := s.tasks.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := s.tasks.Find(ctx, filter, pageOptions(f))
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	var res []domain.Task
	if err := cur.All(ctx, &res); err != nil {
		return nil, 0, fmt.Errorf("decode tasks: %w", err)
	}
	return res, int(total), nil
}

func (s *Store) InsertTemplate(ctx context.Context, tpl domain.ActionTemplate) error {
	_, err := s.templates.InsertOne(ctx, tpl)
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (domain.ActionTemplate, error) {
	var tpl domain.ActionTemplate
	err := s.templates.FindOne(ctx, bson.M{"_id": id}).Decode(&tpl)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return tpl, domain.ErrNotFound
	}
	return tpl, err
}

func (s *Store) ListTemplates(ctx context.Context) ([]domain.ActionTemplate, error) {
	cur, err := s.templates.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var res []domain.ActionTemplate
	if err := cur.All(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := s.projects.InsertOne(ctx, p)
	return err
}

func (s *Store) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return p, domain.ErrNotFound
	}
	return p, err
}

func (s *Store) ListProjects(ctx context.Context) ([]domain.Project, error) {
	cur, err := s.projects.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var res []domain.Project
	if err := cur.All(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}
