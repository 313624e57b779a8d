// Package events appends to the project event log. Every state change is
// recorded in the same transaction that made it.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	ProjectCreated   = "project.created"
	SessionSubmitted = "session.submitted"
	TasksGenerated   = "tasks.generated"
	TodosGenerated   = "todos.generated"
	TaskUpdated      = "task.updated"
	TodoUpdated      = "todo.updated"
)

// Types lists every event type the engine emits.
func Types() []string {
	return []string{ProjectCreated, SessionSubmitted, TasksGenerated, TodosGenerated, TaskUpdated, TodoUpdated}
}

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Entry is one event row before it is written.
type Entry struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if e.Type == "" || e.EntityKind == "" {
		return fmt.Errorf("event type and entity kind are required")
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}
	payload := e.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), e.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", e.Type, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
