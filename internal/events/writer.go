// Package events is the append-only activity log.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"coinline/internal/domain"
)

type Writer struct {
	DB *sql.DB
}

// Record appends one activity entry. Entries are never updated or removed.
func (w Writer) Record(ctx context.Context, e domain.ActivityEntry) error {
	var extra any
	if len(e.Extra) > 0 {
		data, err := json.Marshal(e.Extra)
		if err != nil {
			return fmt.Errorf("marshal activity extra: %w", err)
		}
		extra = string(data)
	}
	_, err := w.DB.ExecContext(ctx, `INSERT INTO activities(ts,actor_id,type,project_id,project_name,task_id,task_name,new_status,extra_json) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.TS, e.ActorID, e.Type, e.ProjectID, e.ProjectName, e.TaskID, e.TaskName, nullable(string(e.NewStatus)), extra)
	return err
}

type Filter struct {
	ProjectID string
	TaskID    string
	Type      string
	// AfterID returns only entries appended after this id.
	AfterID int64
	Limit   int
	// Tail keeps the newest Limit entries instead of the oldest.
	Tail bool
}

// List returns entries in append order.
func (w Writer) List(ctx context.Context, f Filter) ([]domain.ActivityEntry, error) {
	clauses := []string{"id > ?"}
	args := []any{f.AfterID}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	query := `SELECT id,ts,actor_id,type,project_id,project_name,task_id,task_name,COALESCE(new_status,''),extra_json FROM activities WHERE ` +
		strings.Join(clauses, " AND ")
	if f.Tail {
		query += " ORDER BY id DESC"
	} else {
		query += " ORDER BY id"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		var status string
		var extra sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.ActorID, &e.Type, &e.ProjectID, &e.ProjectName, &e.TaskID, &e.TaskName, &status, &extra); err != nil {
			return nil, err
		}
		e.NewStatus = domain.Status(status)
		if extra.Valid {
			if err := json.Unmarshal([]byte(extra.String), &e.Extra); err != nil {
				return nil, fmt.Errorf("decode activity extra: %w", err)
			}
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if f.Tail {
		slices.Reverse(res)
	}
	return res, nil
}

// ListActivity is the latest limit entries of the project feed, oldest first.
func (w Writer) ListActivity(ctx context.Context, projectID string, limit int) ([]domain.ActivityEntry, error) {
	return w.List(ctx, Filter{ProjectID: projectID, Limit: limit, Tail: true})
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
