package server

import (
	"time"

	"onboardline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID        string `json:"id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	Name      string `json:"name"`
	TypeLabel string `json:"type_label,omitempty" example:"web_design"`
}

type SubmitSessionRequest struct {
	ID          string         `json:"id,omitempty"`
	Responses   map[string]any `json:"responses"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" format:"date-time"`
}

type GenerateRequest struct {
	TypeLabel string `json:"type_label,omitempty"`
}

// SynthesizeRequest drives the stateless synthesis endpoints.
type SynthesizeRequest struct {
	ProjectTypeLabel string                   `json:"project_type_label,omitempty" example:"web_design"`
	Responses        map[string]any           `json:"responses"`
	Context          domain.GenerationContext `json:"context"`
}

type UpdateItemRequest struct {
	Status     *string `json:"status,omitempty" enum:"todo,in_progress,done"`
	AssigneeID *string `json:"assignee_id,omitempty"`
	Force      bool    `json:"force,omitempty"`
}

type TokenRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	TTL     string `json:"ttl,omitempty" example:"1h"`
}

// Response payloads

type RuleResponse struct {
	ID           string   `json:"id"`
	Set          string   `json:"set"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	ResponseKeys []string `json:"response_keys,omitempty"`
	Priority     int      `json:"priority"`
}

type RuleSetResponse struct {
	Name     string         `json:"name"`
	Keywords []string       `json:"keywords,omitempty"`
	Rules    []RuleResponse `json:"rules"`
}

type ProjectStatusResponse struct {
	Project    domain.Project `json:"project"`
	Sessions   int            `json:"sessions"`
	TaskCounts map[string]int `json:"task_counts"`
	TodoCounts map[string]int `json:"todo_counts"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    evt.Payload,
	}
}

func nonNilTasks(items []domain.Task) []domain.Task {
	if items == nil {
		return []domain.Task{}
	}
	return items
}

func nonNilTodos(items []domain.Todo) []domain.Todo {
	if items == nil {
		return []domain.Todo{}
	}
	return items
}
