package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"coinline/internal/domain"
)

// Tasks are stored as JSON documents. The filterable fields and the version
// are mirrored into columns.

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO tasks(id,project_id,assignee_id,creator_id,status,priority,version,doc_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullable(t.AssigneeID), t.CreatorID, string(t.Status), string(t.Priority), t.Version, string(doc), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var doc string
	var version int64
	err := r.DB.QueryRowContext(ctx, `SELECT doc_json,version FROM tasks WHERE id=?`, id).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	return decodeTask(doc, version)
}

// UpdateTask writes t only if the stored version still equals expected. t is
// stored with whatever Version it carries.
func (r Repo) UpdateTask(ctx context.Context, t domain.Task, expected int64) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET assignee_id=?, status=?, priority=?, version=?, doc_json=?, updated_at=? WHERE id=? AND version=?`,
		nullable(t.AssigneeID), string(t.Status), string(t.Priority), t.Version, string(doc), t.UpdatedAt, t.ID, expected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists int
	err = r.DB.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id=?`, t.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns one page of tasks matching f, newest first, and the total
// number of matches. f.Page and f.Limit must already be normalised.
func (r Repo) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, int, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, string(f.Priority))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT doc_json,version FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var doc string
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, 0, err
		}
		t, err := decodeTask(doc, version)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, t)
	}
	return res, total, rows.Err()
}

func decodeTask(doc string, version int64) (domain.Task, error) {
	var t domain.Task
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return t, fmt.Errorf("decode task: %w", err)
	}
	t.Version = version
	return t, nil
}
