package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"onboardline/internal/domain"
)

const (
	KindTask = "task"
	KindTodo = "todo"
)

const itemColumns = `id,kind,COALESCE(audience,''),project_id,session_id,position,title,COALESCE(description,''),status,priority,COALESCE(category,''),
estimated_minutes,due_date,assignee_id,source_type,source_metadata_json,created_at,updated_at,completed_at`

// InsertItemTx stores a task (audience empty) or a todo.
func (r Repo) InsertItemTx(ctx context.Context, tx *sql.Tx, kind string, t domain.Todo) error {
	meta, err := marshalMetadata(t.SourceMetadata)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO items(id,kind,audience,project_id,session_id,position,title,description,status,priority,category,
estimated_minutes,due_date,assignee_id,source_type,source_metadata_json,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, kind, nullable(t.Audience), t.ProjectID, t.SessionID, t.Position, t.Title, nullable(t.Description), t.Status, t.Priority,
		nullable(t.Category), nullableIntPtr(t.EstimatedMinutes), nullableStringPtr(t.DueDate), nullableStringPtr(t.AssigneeID),
		t.SourceType, meta, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

// UpdateItemTx persists status, assignment and timestamps of an existing item.
func (r Repo) UpdateItemTx(ctx context.Context, tx *sql.Tx, t domain.Todo) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE items SET status=?, assignee_id=?, priority=?, due_date=?, updated_at=?, completed_at=? WHERE id=?`,
		t.Status, nullableStringPtr(t.AssigneeID), t.Priority, nullableStringPtr(t.DueDate), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSessionItemsTx removes previously generated items of one kind for a session.
func (r Repo) DeleteSessionItemsTx(ctx context.Context, tx *sql.Tx, sessionID, kind string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM items WHERE session_id=? AND kind=?`, sessionID, kind)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) AddDependenciesTx(ctx context.Context, tx *sql.Tx, itemID string, deps []string) error {
	for _, dep := range deps {
		if _, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO item_dependencies(item_id,depends_on_id) VALUES (?,?)`, itemID, dep); err != nil {
			return fmt.Errorf("add dependency %s -> %s: %w", itemID, dep, err)
		}
	}
	return nil
}

func (r Repo) listDependencies(ctx context.Context, q querier, itemID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT d.depends_on_id FROM item_dependencies d JOIN items i ON i.id=d.depends_on_id
WHERE d.item_id=? ORDER BY i.position`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// GetItemTx loads one item with its dependencies. kind may be empty to accept either.
func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id, kind string) (domain.Todo, error) {
	q := r.q(tx)
	query := `SELECT ` + itemColumns + ` FROM items WHERE id=?`
	args := []any{id}
	if kind != "" {
		query += ` AND kind=?`
		args = append(args, kind)
	}
	t, _, err := scanItem(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return t, err
	}
	t.DependsOn, err = r.listDependencies(ctx, q, t.ID)
	return t, err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := r.GetItemTx(ctx, nil, id, KindTask)
	return t.Task, err
}

func (r Repo) GetTodo(ctx context.Context, id string) (domain.Todo, error) {
	return r.GetItemTx(ctx, nil, id, KindTodo)
}

type ItemFilters struct {
	ProjectID  string
	SessionID  string
	Status     string
	Audience   string
	AssigneeID string
	Limit      int
}

func (r Repo) listItems(ctx context.Context, kind string, f ItemFilters) ([]domain.Todo, error) {
	clauses := []string{"kind=?"}
	args := []any{kind}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Audience != "" {
		clauses = append(clauses, "audience=?")
		args = append(args, f.Audience)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY session_id, COALESCE(audience,''), position`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Todo
	for rows.Next() {
		t, _, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		deps, err := r.listDependencies(ctx, r.DB, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].DependsOn = deps
	}
	return res, nil
}

func (r Repo) ListTasks(ctx context.Context, f ItemFilters) ([]domain.Task, error) {
	f.Audience = ""
	items, err := r.listItems(ctx, KindTask, f)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, len(items))
	for i, it := range items {
		out[i] = it.Task
	}
	return out, nil
}

func (r Repo) ListTodos(ctx context.Context, f ItemFilters) ([]domain.Todo, error) {
	return r.listItems(ctx, KindTodo, f)
}

// CountItemsByStatus groups a project's items of one kind by status.
func (r Repo) CountItemsByStatus(ctx context.Context, projectID, kind string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(1) FROM items WHERE project_id=? AND kind=? GROUP BY status`, projectID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{domain.StatusTodo: 0, domain.StatusInProgress: 0, domain.StatusDone: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanItem(row interface{ Scan(...any) error }) (domain.Todo, string, error) {
	var t domain.Todo
	var kind string
	var minutes sql.NullInt64
	var due, assignee, meta, completed sql.NullString
	err := row.Scan(&t.ID, &kind, &t.Audience, &t.ProjectID, &t.SessionID, &t.Position, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.Category, &minutes, &due, &assignee, &t.SourceType, &meta, &t.CreatedAt, &t.UpdatedAt, &completed)
	if err == sql.ErrNoRows {
		return t, "", ErrNotFound
	}
	if err != nil {
		return t, "", err
	}
	if minutes.Valid {
		m := int(minutes.Int64)
		t.EstimatedMinutes = &m
	}
	if due.Valid {
		t.DueDate = &due.String
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	if completed.Valid {
		t.CompletedAt = &completed.String
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &t.SourceMetadata); err != nil {
			return t, "", fmt.Errorf("decode metadata for %s: %w", t.ID, err)
		}
	}
	return t, kind, nil
}

func marshalMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode source metadata: %w", err)
	}
	return string(data), nil
}
