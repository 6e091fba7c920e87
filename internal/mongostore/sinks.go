package mongostore

import (
	"context"
	"errors"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coinline/internal/domain"
)

func (s *Store) Notify(ctx context.Context, n domain.Notification) error {
	_, err := s.notifications.InsertOne(ctx, n)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.notifications.Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var res []domain.Notification
	if err := cur.All(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) Announce(ctx context.Context, m domain.ChatMessage) error {
	_, err := s.chat.InsertOne(ctx, m)
	return err
}

func (s *Store) Message(ctx context.Context, projectID, messageID string) (domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := s.chat.FindOne(ctx, bson.M{"_id": messageID, "project_id": projectID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return m, domain.ErrNotFound
	}
	return m, err
}

func (s *Store) ListChat(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.chat.Find(ctx, bson.M{"project_id": projectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var res []domain.ChatMessage
	if err := cur.All(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Record appends an activity entry.
func (s *Store) Record(ctx context.Context, e domain.ActivityEntry) error {
	_, err := s.activities.InsertOne(ctx, e)
	return err
}

// ListActivity returns the latest limit entries of a project, oldest first.
func (s *Store) ListActivity(ctx context.Context, projectID string, limit int) ([]domain.ActivityEntry, error) {
	cur, err := s.activities.Find(ctx, bson.M{"project_id": projectID}, tailOptions(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var res []domain.ActivityEntry
	if err := cur.All(ctx, &res); err != nil {
		return nil, err
	}
	slices.Reverse(res)
	return res, nil
}
