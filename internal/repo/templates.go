package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"coinline/internal/domain"
)

func (r Repo) InsertTemplate(ctx context.Context, tpl domain.ActionTemplate) error {
	doc, err := json.Marshal(tpl.Actions)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO action_templates(id,name,doc_json,created_at) VALUES (?,?,?,?)`,
		tpl.ID, tpl.Name, string(doc), tpl.CreatedAt)
	return err
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.ActionTemplate, error) {
	var tpl domain.ActionTemplate
	var doc string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,doc_json,created_at FROM action_templates WHERE id=?`, id).
		Scan(&tpl.ID, &tpl.Name, &doc, &tpl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tpl, ErrNotFound
	}
	if err != nil {
		return tpl, err
	}
	if err := json.Unmarshal([]byte(doc), &tpl.Actions); err != nil {
		return tpl, fmt.Errorf("decode template %s: %w", id, err)
	}
	return tpl, nil
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.ActionTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,doc_json,created_at FROM action_templates ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActionTemplate
	for rows.Next() {
		var tpl domain.ActionTemplate
		var doc string
		if err := rows.Scan(&tpl.ID, &tpl.Name, &doc, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(doc), &tpl.Actions); err != nil {
			return nil, fmt.Errorf("decode template %s: %w", tpl.ID, err)
		}
		res = append(res, tpl)
	}
	return res, rows.Err()
}
