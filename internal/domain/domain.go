package domain

type Project struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	TypeLabel string `json:"type_label"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Session is a completed onboarding questionnaire for a project.
type Session struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	Responses     map[string]any `json:"responses"`
	CompletedAt   string         `json:"completed_at" format:"date-time"`
	SubmittedBy   string         `json:"submitted_by"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
	GeneratedRuns int            `json:"generated_runs"`
}

// Task is a persisted project board task produced from a rule-path item.
type Task struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	SessionID        string         `json:"session_id"`
	Position         int            `json:"position"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Status           string         `json:"status" enum:"todo,in_progress,done"`
	Priority         string         `json:"priority" enum:"low,medium,high"`
	Category         string         `json:"category,omitempty"`
	EstimatedMinutes *int           `json:"estimated_minutes,omitempty"`
	DueDate          *string        `json:"due_date,omitempty" format:"date-time"`
	AssigneeID       *string        `json:"assignee_id,omitempty"`
	SourceType       string         `json:"source_type"`
	SourceMetadata   map[string]any `json:"source_metadata,omitempty"`
	DependsOn        []string       `json:"depends_on,omitempty"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	UpdatedAt        string         `json:"updated_at" format:"date-time"`
	CompletedAt      *string        `json:"completed_at,omitempty" format:"date-time"`
}

// Todo is a persisted admin or client todo produced from the AI or fallback path.
type Todo struct {
	Task
	Audience string `json:"audience" enum:"admin,client"`
}

// GenerationRun records one synthesis hand-off for a session.
type GenerationRun struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind" enum:"tasks,todos"`
	Path      string    `json:"path" enum:"rule,ai,fallback"`
	Analysis  *Analysis `json:"analysis,omitempty"`
	Findings  []string  `json:"findings,omitempty"`
	Stats     Stats     `json:"stats"`
	ActorID   string    `json:"actor_id"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
