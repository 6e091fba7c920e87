package repo

import (
	"context"

	"coinline/internal/domain"
)

// Notify stores n in the recipient's inbox.
func (r Repo) Notify(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,recipient_id,type,title,message,related_entity_id,created_at,read) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.RecipientID, n.Type, n.Title, n.Message, nullable(n.RelatedEntityID), n.CreatedAt, boolInt(n.Read))
	return err
}

func (r Repo) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	query := `SELECT id,recipient_id,type,title,message,COALESCE(related_entity_id,''),created_at,read FROM notifications WHERE recipient_id=? ORDER BY created_at DESC, rowid DESC`
	args := []any{recipientID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.RelatedEntityID, &n.CreatedAt, &read); err != nil {
			return nil, err
		}
		n.Read = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
