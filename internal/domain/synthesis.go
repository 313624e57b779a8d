package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	SourceRule     = "rule"
	SourceAI       = "ai"
	SourceFallback = "fallback"

	AudienceAdmin  = "admin"
	AudienceClient = "client"

	MaxTitleLength = 200
)

// ErrInvalidContext marks a generation context that cannot be synthesized against.
var ErrInvalidContext = errors.New("invalid generation context")

// GenerationContext is supplied fresh by the caller for every synthesis run.
type GenerationContext struct {
	ProjectID           string    `json:"project_id" required:"false"`
	ProjectName         string    `json:"project_name" required:"false"`
	ProjectTypeLabel    string    `json:"project_type_label" required:"false"`
	OrganizationID      string    `json:"organization_id" required:"false"`
	SessionID           string    `json:"session_id" required:"false"`
	CompletionTimestamp time.Time `json:"completion_timestamp" format:"date-time" required:"false"`
}

// Validate reports whether the context is usable. A missing session id or
// completion timestamp is a caller bug, not a generation failure.
func (c GenerationContext) Validate() error {
	if strings.TrimSpace(c.SessionID) == "" {
		return errors.Join(ErrInvalidContext, errors.New("session id is required"))
	}
	if c.CompletionTimestamp.IsZero() {
		return errors.Join(ErrInvalidContext, errors.New("completion timestamp is required"))
	}
	return nil
}

// DaysAfter returns the completion timestamp shifted by n days.
func (c GenerationContext) DaysAfter(n int) *time.Time {
	t := c.CompletionTimestamp.AddDate(0, 0, n)
	return &t
}

// Item is the shared output contract of the rule, AI and fallback paths.
// Dependencies are indices of earlier siblings in the same batch.
type Item struct {
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Status           string         `json:"status,omitempty"`
	Priority         string         `json:"priority,omitempty"`
	Category         string         `json:"category,omitempty"`
	EstimatedMinutes *int           `json:"estimated_minutes,omitempty"`
	DueDate          *time.Time     `json:"due_date,omitempty"`
	AssignedTo       string         `json:"assigned_to,omitempty"`
	Dependencies     []int          `json:"dependencies,omitempty"`
	SourceType       string         `json:"source_type"`
	SourceID         string         `json:"source_id"`
	SourceMetadata   map[string]any `json:"source_metadata,omitempty"`
}

// Clone returns a copy that shares nothing mutable with the receiver.
func (it Item) Clone() Item {
	out := it
	if it.EstimatedMinutes != nil {
		v := *it.EstimatedMinutes
		out.EstimatedMinutes = &v
	}
	if it.DueDate != nil {
		v := *it.DueDate
		out.DueDate = &v
	}
	if it.Dependencies != nil {
		out.Dependencies = append([]int(nil), it.Dependencies...)
	}
	if it.SourceMetadata != nil {
		out.SourceMetadata = make(map[string]any, len(it.SourceMetadata))
		for k, v := range it.SourceMetadata {
			out.SourceMetadata[k] = v
		}
	}
	return out
}

// Minutes is a small helper for optional estimates.
func Minutes(n int) *int {
	return &n
}

// Analysis is produced only on the todo path.
type Analysis struct {
	Complexity         string   `json:"complexity" enum:"low,medium,high"`
	EstimatedSetupTime string   `json:"estimatedSetupTime"`
	CriticalIssues     []string `json:"criticalIssues"`
	Recommendations    []string `json:"recommendations"`
}

// Stats summarizes a finished batch.
type Stats struct {
	Total            int            `json:"total"`
	ByPriority       map[string]int `json:"by_priority"`
	ByCategory       map[string]int `json:"by_category"`
	BySource         map[string]int `json:"by_source"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	WithDependencies int            `json:"with_dependencies"`
}

// TaskBatch is the result of the task consumer (rule path only).
type TaskBatch struct {
	Items    []Item   `json:"items"`
	Findings []string `json:"findings,omitempty"`
	Stats    Stats    `json:"stats"`
}

// SynthesisResult is the result of the todo consumer. Its shape does not
// depend on whether the AI or the fallback path produced it.
type SynthesisResult struct {
	AdminTodos  []Item    `json:"adminTodos"`
	ClientTodos []Item    `json:"clientTodos"`
	Analysis    *Analysis `json:"analysis,omitempty"`
	Findings    []string  `json:"findings,omitempty"`
	Stats       Stats     `json:"stats"`
	Path        string    `json:"path,omitempty"`
}
