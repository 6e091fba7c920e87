package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"coinline/internal/domain"
)

// Announce appends a system message to the project chat.
func (r Repo) Announce(ctx context.Context, m domain.ChatMessage) error {
	var quoted any
	if m.QuotedMessage != nil {
		data, err := json.Marshal(m.QuotedMessage)
		if err != nil {
			return fmt.Errorf("marshal quoted message: %w", err)
		}
		quoted = string(data)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO chat_messages(id,project_id,author,content,timestamp,message_type,quoted_json,original_message_id) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, m.Author, m.Content, m.Timestamp, m.MessageType, quoted, nullable(m.OriginalMessageID))
	return err
}

// Message looks up one chat message of a project.
func (r Repo) Message(ctx context.Context, projectID, messageID string) (domain.ChatMessage, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,project_id,author,content,timestamp,message_type,quoted_json,original_message_id FROM chat_messages WHERE project_id=? AND id=?`, projectID, messageID)
	m, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListChat(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	query := `SELECT id,project_id,author,content,timestamp,message_type,quoted_json,original_message_id FROM chat_messages WHERE project_id=? ORDER BY timestamp DESC, rowid DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChatMessage
	for rows.Next() {
		m, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (domain.ChatMessage, error) {
	var m domain.ChatMessage
	var quoted, original sql.NullString
	if err := s.Scan(&m.ID, &m.ProjectID, &m.Author, &m.Content, &m.Timestamp, &m.MessageType, &quoted, &original); err != nil {
		return m, err
	}
	if quoted.Valid {
		var q domain.QuotedMessage
		if err := json.Unmarshal([]byte(quoted.String), &q); err != nil {
			return m, fmt.Errorf("decode quoted message: %w", err)
		}
		m.QuotedMessage = &q
	}
	if original.Valid {
		m.OriginalMessageID = original.String
	}
	return m, nil
}
